package auth

import (
	"context"
	"time"
)

// User is the authenticated identity as reported by the backend.
type User struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"display_name,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of u. A nil receiver yields nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Metadata != nil {
		out.Metadata = make(map[string]string, len(u.Metadata))
		for k, v := range u.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Session is a live authenticated session held by a backend client.
type Session struct {
	ID          string    `json:"id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// UserOrNil returns the session's user, or nil for a nil session.
func (s *Session) UserOrNil() *User {
	if s == nil {
		return nil
	}
	return s.User
}

// Event names an auth-state transition.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Listener receives auth-state-change notifications. session is nil when the
// transition ended the session.
type Listener func(event Event, session *Session)

// Subscription is a registered [Listener]. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// UserQuerier answers "who is logged in right now". A nil user with a nil error
// means no session.
type UserQuerier interface {
	GetUser(ctx context.Context) (*User, error)
}

// Backend is the hosted auth service as seen by goBlog.
type Backend interface {
	UserQuerier
	OnAuthStateChange(fn Listener) Subscription
}

// SubscriptionFunc adapts a plain function to [Subscription].
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// TokenVerifier resolves an access token issued by the backend to its user.
// It has the same nil-user conventions as [UserQuerier].
type TokenVerifier interface {
	UserForToken(ctx context.Context, accessToken string) (*User, error)
}

type accessTokenContextKey struct{}

// ContextWithAccessToken scopes ctx to the caller holding token. An empty
// token marks an anonymous caller.
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenContextKey{}, token)
}

// AccessTokenFromContext returns the token set by [ContextWithAccessToken].
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenContextKey{}).(string)
	return token, ok
}

// TokenUsers answers GetUser for the caller whose token rides in ctx rather
// than for a process-wide session. A ctx without a token has no user, and so
// does a nil Verifier.
type TokenUsers struct {
	Verifier TokenVerifier
}

func (t TokenUsers) GetUser(ctx context.Context) (*User, error) {
	token, _ := AccessTokenFromContext(ctx)
	if token == "" || t.Verifier == nil {
		return nil, nil
	}
	return t.Verifier.UserForToken(ctx, token)
}
