package goBlog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/backend"
	"github.com/MrEthical07/goBlog/internal/audit"
	"github.com/MrEthical07/goBlog/middleware"
	"github.com/MrEthical07/goBlog/posts"
	"github.com/MrEthical07/goBlog/router"
	"github.com/MrEthical07/goBlog/session"
	"github.com/redis/go-redis/v9"
)

// App is an assembled blog client. Its methods are safe for concurrent use.
type App struct {
	cfg Config
	log *slog.Logger

	backend   auth.Backend
	client    *backend.Client
	rdb       redis.UniversalClient
	ownsRedis bool

	store  *session.Store
	router *router.Router
	// httpRouter shares router's table but guards on the caller's token.
	httpRouter *router.Router
	posts      *posts.Repo

	metrics     *Metrics
	audit       *audit.Dispatcher
	stopObserve func()

	closeOnce sync.Once
	closeErr  error
}

// Start begins session synchronization: it subscribes to auth state changes
// and issues the initial user query in the background.
func (a *App) Start(ctx context.Context) error {
	err := a.store.Start(ctx)
	if errors.Is(err, session.ErrClosed) {
		return ErrAppClosed
	}
	return err
}

// Ready is closed once the initial session query has settled.
func (a *App) Ready() <-chan struct{} {
	return a.store.Ready()
}

func (a *App) Config() Config { return a.cfg }

func (a *App) Store() *session.Store { return a.store }

func (a *App) Router() *router.Router { return a.router }

// Backend is the auth backend the App reads from.
func (a *App) Backend() auth.Backend { return a.backend }

// Client is the Redis-backed auth client, or nil when the App was built with
// an injected backend.
func (a *App) Client() *backend.Client { return a.client }

// Posts is nil when the App has no Redis connection.
func (a *App) Posts() *posts.Repo { return a.posts }

// Navigate pushes path through the router.
func (a *App) Navigate(ctx context.Context, path string) (router.Result, error) {
	res, err := a.router.Push(ctx, path)
	switch {
	case err == nil:
	case errors.Is(err, router.ErrNavigationSuperseded):
		a.metrics.Inc(MetricNavigationSuperseded)
	case errors.Is(err, router.ErrNoRoute):
		a.metrics.Inc(MetricNavigationNotFound)
	case errors.Is(err, router.ErrRedirectLoop):
		a.metrics.Inc(MetricRedirectLoop)
		a.log.WarnContext(ctx, "navigation aborted", "path", path, "error", err)
	}
	return res, err
}

// Handler serves the route table over HTTP. Each request is guarded on its
// own access token, never on the App's local session. Paths outside the table
// get 404.
func (a *App) Handler() http.Handler {
	return middleware.Navigate(a.httpRouter)(http.NotFoundHandler())
}

func (a *App) MetricsSnapshot() MetricsSnapshot {
	return a.metrics.Snapshot()
}

// AuditDropped reports audit events lost to backpressure.
func (a *App) AuditDropped() uint64 {
	return a.audit.Dropped()
}

// Close releases the store's subscription, flushes audit events and closes the
// auth client and any Redis connection the App dialed. It is idempotent.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.stopObserve != nil {
			a.stopObserve()
		}
		a.store.Close()
		a.audit.Close()
		a.closeErr = a.closeBackend()
	})
	return a.closeErr
}

func (a *App) closeBackend() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	errs = append(errs, a.closeRedis())
	return errors.Join(errs...)
}

func (a *App) closeRedis() error {
	if !a.ownsRedis || a.rdb == nil {
		return nil
	}
	return a.rdb.Close()
}

func (a *App) onNavigation(ctx context.Context, res router.Result) {
	for _, d := range res.Decisions {
		a.metrics.Observe(MetricGuardLatency, d.Elapsed)
		if d.Allowed() {
			a.metrics.Inc(MetricNavigationAllowed)
		} else {
			a.metrics.Inc(MetricNavigationRedirected)
		}
		if d.Err != nil {
			a.metrics.Inc(MetricGuardQueryError)
			if d.Allowed() && d.Target.RequiresAuth() {
				a.metrics.Inc(MetricGuardFailOpen)
			}
		}

		ev := audit.Event{
			Type:     audit.TypeNavigation,
			Path:     d.Target.Path,
			From:     res.From.Path,
			Outcome:  d.Outcome.String(),
			Redirect: d.Redirect,
		}
		if d.User != nil {
			ev.UserID = d.User.ID
		}
		if d.Err != nil {
			ev.Error = d.Err.Error()
		}
		a.audit.Emit(ctx, ev)
	}
}

func (a *App) onSessionChange(c session.Change) {
	switch c.Source {
	case session.SourceInitial:
		a.metrics.Inc(MetricSessionInitialSync)
	case session.SourceEvent:
		switch c.Event {
		case auth.EventSignedIn:
			a.metrics.Inc(MetricSessionSignedIn)
		case auth.EventSignedOut:
			a.metrics.Inc(MetricSessionSignedOut)
		case auth.EventTokenRefreshed:
			a.metrics.Inc(MetricSessionTokenRefreshed)
		case auth.EventUserUpdated:
			a.metrics.Inc(MetricSessionUserUpdated)
		}
	}

	ev := audit.Event{
		Type:      audit.TypeSessionChange,
		AuthEvent: string(c.Event),
		Metadata:  map[string]string{"source": c.Source.String()},
	}
	if c.User != nil {
		ev.UserID = c.User.ID
	}
	a.audit.Emit(context.Background(), ev)
}

func (a *App) onInitialError(err error) {
	a.metrics.Inc(MetricSessionInitialError)
	a.audit.Emit(context.Background(), audit.Event{
		Type:  audit.TypeSessionInitialError,
		Error: err.Error(),
	})
}
