package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, New(rdb, cfg)
}

func TestSignInBudget(t *testing.T) {
	_, l := newTestLimiter(t, Config{MaxSignInAttempts: 3, SignInCooldown: time.Minute})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if err := l.FailSignIn(ctx, "ada@example.com", ""); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if err := l.CheckSignIn(ctx, "ada@example.com", ""); err != nil {
			t.Fatalf("check after failure %d: %v", i, err)
		}
	}
	if err := l.FailSignIn(ctx, "ada@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third failure: expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckSignIn(ctx, "ADA@example.com ", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit to apply regardless of case, got %v", err)
	}
	if err := l.CheckSignIn(ctx, "bob@example.com", ""); err != nil {
		t.Fatalf("other account must not be limited: %v", err)
	}

	n, err := l.SignInFailures(ctx, "ada@example.com")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 failures, got %d (%v)", n, err)
	}
	if err := l.ResetSignIn(ctx, "ada@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckSignIn(ctx, "ada@example.com", ""); err != nil {
		t.Fatalf("check after reset: %v", err)
	}
}

func TestSignInWindowExpires(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxSignInAttempts: 1, SignInCooldown: time.Minute})
	ctx := context.Background()

	_ = l.FailSignIn(ctx, "ada@example.com", "")
	if err := l.CheckSignIn(ctx, "ada@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}

	mr.FastForward(20 * time.Second)
	err := l.CheckSignIn(ctx, "ada@example.com", "")
	if wait, ok := RetryAfter(err); !ok || wait != 40*time.Second {
		t.Fatalf("expected 40s left on the window, got %v ok=%v (%v)", wait, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckSignIn(ctx, "ada@example.com", ""); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestSignInPerIP(t *testing.T) {
	_, l := newTestLimiter(t, Config{MaxSignInAttempts: 2, SignInCooldown: time.Minute, PerIP: true})
	ctx := context.Background()

	_ = l.FailSignIn(ctx, "a@example.com", "10.0.0.1")
	_ = l.FailSignIn(ctx, "b@example.com", "10.0.0.1")

	if err := l.CheckSignIn(ctx, "c@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected address limit, got %v", err)
	}
	if err := l.CheckSignIn(ctx, "c@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("other address must pass: %v", err)
	}
}

func TestAllowSignUp(t *testing.T) {
	_, l := newTestLimiter(t, Config{MaxSignUps: 2, SignUpWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.AllowSignUp(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("sign-up %d: %v", i, err)
		}
	}
	err := l.AllowSignUp(ctx, "10.0.0.1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if wait, ok := RetryAfter(err); !ok || wait != time.Minute {
		t.Fatalf("expected the sign-up window as retry hint, got %v ok=%v", wait, ok)
	}
	if err := l.AllowSignUp(ctx, ""); err != nil {
		t.Fatalf("empty address is not limited: %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, l := newTestLimiter(t, Config{})
	mr.Close()

	if err := l.CheckSignIn(context.Background(), "ada@example.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.AllowSignUp(context.Background(), "10.0.0.1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestRetryAfterIgnoresOtherErrors(t *testing.T) {
	if _, ok := RetryAfter(ErrRedisUnavailable); ok {
		t.Fatal("redis failures carry no retry hint")
	}
	if _, ok := RetryAfter(&LimitError{}); ok {
		t.Fatal("a limit with unknown window carries no retry hint")
	}
}
