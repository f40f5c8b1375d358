package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/goBlog/auth"
)

// FailureMode decides a guarded navigation whose user query failed.
type FailureMode uint8

const (
	// FailClosed redirects to the login path.
	FailClosed FailureMode = iota
	// FailOpen lets the navigation proceed.
	FailOpen
)

func (m FailureMode) String() string {
	if m == FailOpen {
		return "open"
	}
	return "closed"
}

// Outcome is the terminal state of one guard run.
type Outcome uint8

const (
	// OutcomeAllowed means the navigation proceeds to its target.
	OutcomeAllowed Outcome = iota + 1
	// OutcomeRedirected means the navigation is sent to Decision.Redirect.
	OutcomeRedirected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeRedirected:
		return "redirected"
	default:
		return "pending"
	}
}

// Request is a single navigation: where it goes and where it came from.
type Request struct {
	To   Location
	From Location
}

// Decision is the guard's verdict for one Request.
type Decision struct {
	Outcome  Outcome
	Redirect string
	Target   Location
	// User is what the query returned; nil for no session or a failed query.
	User *auth.User
	// Err is the query failure, if any. The decision already accounts for it.
	Err     error
	Elapsed time.Duration
}

// Allowed reports whether the navigation proceeds.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// Next continues a navigation. An empty redirect proceeds; anything else is the
// path to go to instead.
type Next func(redirect string)

// GuardConfig tunes a [Guard].
type GuardConfig struct {
	// LoginPath is the only redirect target. Default "/login".
	LoginPath string
	// OnQueryError resolves guarded navigations whose query failed. Default FailClosed.
	OnQueryError FailureMode
	// QueryTimeout bounds the user query. Zero waits as long as ctx allows.
	QueryTimeout time.Duration
	Logger       *slog.Logger
}

// Guard gates navigations into routes that require authentication.
type Guard struct {
	users auth.UserQuerier
	cfg   GuardConfig
	log   *slog.Logger
}

// NewGuard returns a Guard that asks users on every navigation. Pass the auth
// backend for a fresh check per navigation, or the session store to trust its
// cached value.
func NewGuard(users auth.UserQuerier, cfg GuardConfig) *Guard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Guard{users: users, cfg: cfg, log: cfg.Logger.With("component", "guard")}
}

// LoginPath returns the redirect target.
func (g *Guard) LoginPath() string {
	return g.cfg.LoginPath
}

// Decide runs the guard for req. It never returns without a decision: query
// failures are folded in according to OnQueryError and reported in Decision.Err.
func (g *Guard) Decide(ctx context.Context, req Request) Decision {
	start := time.Now()
	user, err := g.query(ctx)

	d := Decision{Target: req.To, User: user, Err: err}
	switch {
	case !req.To.RequiresAuth():
		d.Outcome = OutcomeAllowed
	case err != nil && g.cfg.OnQueryError == FailOpen:
		d.Outcome = OutcomeAllowed
	case err != nil || user == nil:
		d.Outcome = OutcomeRedirected
		d.Redirect = g.cfg.LoginPath
	default:
		d.Outcome = OutcomeAllowed
	}
	d.Elapsed = time.Since(start)

	if err != nil {
		g.log.WarnContext(ctx, "user query failed during navigation",
			"path", req.To.Path,
			"requires_auth", req.To.RequiresAuth(),
			"fail_mode", g.cfg.OnQueryError.String(),
			"outcome", d.Outcome.String(),
			"error", err,
		)
	}
	return d
}

// BeforeEach is Decide in continuation style: next("") proceeds and
// next(path) redirects.
func (g *Guard) BeforeEach(ctx context.Context, req Request, next Next) {
	d := g.Decide(ctx, req)
	next(d.Redirect)
}

func (g *Guard) query(ctx context.Context) (*auth.User, error) {
	if g.users == nil {
		return nil, nil
	}
	if g.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.QueryTimeout)
		defer cancel()
	}
	return g.users.GetUser(ctx)
}
