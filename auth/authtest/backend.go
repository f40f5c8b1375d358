// Package authtest provides an in-memory [auth.Backend] for tests.
package authtest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/goBlog/auth"
)

// Backend is a scriptable [auth.Backend]. The zero value reports no user.
type Backend struct {
	mu        sync.Mutex
	user      *auth.User
	err       error
	gate      chan struct{}
	listeners map[uint64]auth.Listener
	nextID    uint64

	calls atomic.Int64
}

// New returns a Backend that reports user from GetUser.
func New(user *auth.User) *Backend {
	return &Backend{user: user}
}

// SetUser changes what GetUser returns without emitting a notification.
func (b *Backend) SetUser(user *auth.User) {
	b.mu.Lock()
	b.user = user
	b.err = nil
	b.mu.Unlock()
}

// SetError makes GetUser fail with err until SetUser is called.
func (b *Backend) SetError(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Hold makes subsequent GetUser calls block until Release or ctx cancellation.
func (b *Backend) Hold() {
	b.mu.Lock()
	if b.gate == nil {
		b.gate = make(chan struct{})
	}
	b.mu.Unlock()
}

// Release unblocks every GetUser call parked by Hold.
func (b *Backend) Release() {
	b.mu.Lock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
	b.mu.Unlock()
}

// Calls reports how many times GetUser was invoked.
func (b *Backend) Calls() int64 {
	return b.calls.Load()
}

// Listeners reports the number of live subscriptions.
func (b *Backend) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Backend) GetUser(ctx context.Context) (*auth.User, error) {
	b.calls.Add(1)

	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.user.Clone(), nil
}

func (b *Backend) OnAuthStateChange(fn auth.Listener) auth.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[uint64]auth.Listener)
	}
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn

	var once sync.Once
	return auth.SubscriptionFunc(func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	})
}

// Emit delivers a notification to every listener synchronously and updates the
// user GetUser reports to match the session.
func (b *Backend) Emit(event auth.Event, session *auth.Session) {
	b.mu.Lock()
	b.user = session.UserOrNil().Clone()
	b.err = nil
	fns := make([]auth.Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

// UserForToken returns the current user when token is TokenFor that user, and
// no user otherwise. Errors set by SetError apply here too.
func (b *Backend) UserForToken(_ context.Context, token string) (*auth.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if b.user == nil || token != TokenFor(b.user) {
		return nil, nil
	}
	return b.user.Clone(), nil
}

// SessionFor wraps user in a minimal session for Emit.
func SessionFor(user *auth.User) *auth.Session {
	if user == nil {
		return nil
	}
	return &auth.Session{ID: "sess-" + user.ID, AccessToken: TokenFor(user), User: user}
}

// TokenFor is the access token UserForToken accepts for user.
func TokenFor(user *auth.User) string {
	if user == nil {
		return ""
	}
	return "token-" + user.ID
}
