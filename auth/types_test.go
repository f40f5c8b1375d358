package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/auth/authtest"
)

func TestTokenUsersResolvesCallerToken(t *testing.T) {
	user := &auth.User{ID: "u-1"}
	backend := authtest.New(user)
	users := auth.TokenUsers{Verifier: backend}

	got, err := users.GetUser(auth.ContextWithAccessToken(context.Background(), authtest.TokenFor(user)))
	if err != nil || got == nil || got.ID != "u-1" {
		t.Fatalf("expected u-1, got %+v err=%v", got, err)
	}

	for name, ctx := range map[string]context.Context{
		"no token":      context.Background(),
		"empty token":   auth.ContextWithAccessToken(context.Background(), ""),
		"foreign token": auth.ContextWithAccessToken(context.Background(), "token-u-2"),
	} {
		if got, err := users.GetUser(ctx); err != nil || got != nil {
			t.Fatalf("%s: expected no user, got %+v err=%v", name, got, err)
		}
	}
	if calls := backend.Calls(); calls != 0 {
		t.Fatalf("TokenUsers must not fall back to the process session, saw %d GetUser calls", calls)
	}
}

func TestTokenUsersPropagatesErrors(t *testing.T) {
	backend := authtest.New(&auth.User{ID: "u-1"})
	backend.SetError(errors.New("down"))
	ctx := auth.ContextWithAccessToken(context.Background(), "token-u-1")

	if _, err := (auth.TokenUsers{Verifier: backend}).GetUser(ctx); err == nil {
		t.Fatal("expected verifier failure to surface")
	}
	if got, err := (auth.TokenUsers{}).GetUser(ctx); err != nil || got != nil {
		t.Fatalf("nil verifier: expected no user, got %+v err=%v", got, err)
	}
}
