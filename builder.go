package goBlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/backend"
	"github.com/MrEthical07/goBlog/internal/audit"
	"github.com/MrEthical07/goBlog/internal/rate"
	"github.com/MrEthical07/goBlog/jwt"
	"github.com/MrEthical07/goBlog/posts"
	"github.com/MrEthical07/goBlog/router"
	"github.com/MrEthical07/goBlog/session"
	"github.com/MrEthical07/goBlog/views"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [App]. Configure it once and call Build.
type Builder struct {
	config  Config
	redis   redis.UniversalClient
	backend auth.Backend
	storage backend.Storage
	logger  *slog.Logger

	auditSink AuditSink
	routes    []router.Route

	built bool
}

func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the Redis client for the auth backend and posts. Without
// it Build dials Config.Backend.URL and owns the connection.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBackend replaces the Redis-backed auth client. Config.Backend need not
// be set, account views are served only if backend also implements
// views.Accounts, and HTTP callers are recognised only if it implements
// auth.TokenVerifier.
func (b *Builder) WithBackend(backend auth.Backend) *Builder {
	b.backend = backend
	return b
}

// WithStorage persists the local session, for example in a file between CLI runs.
func (b *Builder) WithStorage(s backend.Storage) *Builder {
	b.storage = s
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRoutes replaces DefaultRoutes.
func (b *Builder) WithRoutes(routes []router.Route) *Builder {
	b.routes = routes
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the App. It connects to the
// backend but does not start session synchronization; call App.Start.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	cfg := b.config
	if b.backend == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else if err := cfg.validateLocal(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		cfg:     cfg,
		log:     logger,
		metrics: NewMetrics(cfg.Metrics),
		rdb:     b.redis,
	}

	if a.rdb == nil && b.backend == nil {
		opts, err := redis.ParseURL(cfg.Backend.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: backend.url: %v", ErrInvalidConfig, err)
		}
		a.rdb = redis.NewClient(opts)
		a.ownsRedis = true
	}

	var accounts views.Accounts
	if b.backend != nil {
		a.backend = b.backend
		if acc, ok := b.backend.(views.Accounts); ok {
			accounts = acc
		}
	} else {
		client, err := b.newClient(ctx, a.rdb, cfg, logger)
		if err != nil {
			return nil, errors.Join(err, a.closeRedis())
		}
		a.client = client
		a.backend = client
		accounts = client
	}

	routes := b.routes
	if a.rdb != nil {
		a.posts = posts.NewRepo(a.rdb, cfg.Backend.Prefix)
		if routes == nil {
			v := views.New(accounts, a.posts, logger)
			if cfg.Throttle.Enabled {
				v.WithThrottle(rate.New(a.rdb, rate.Config{
					Prefix:            cfg.Backend.Prefix,
					MaxSignInAttempts: cfg.Throttle.MaxSignInAttempts,
					SignInCooldown:    cfg.Throttle.SignInCooldown,
					PerIP:             cfg.Throttle.PerIP,
					MaxSignUps:        cfg.Throttle.MaxSignUps,
					SignUpWindow:      cfg.Throttle.SignUpWindow,
				}))
			}
			routes = DefaultRoutes(v)
		}
	}
	if routes == nil {
		routes = DefaultRoutes(nil)
	}

	table, err := router.Compile(routes, router.WithBase(cfg.Router.Base))
	if err != nil {
		return nil, errors.Join(err, a.closeBackend())
	}

	a.store = session.NewStore(a.backend, session.Options{
		Logger:         logger,
		InitialRetries: cfg.Session.InitialRetries,
		RetryBase:      cfg.Session.RetryBase,
		InitialTimeout: cfg.Session.InitialTimeout,
		OnInitialError: a.onInitialError,
	})

	var users auth.UserQuerier = a.backend
	if cfg.Guard.Source == GuardSourceStore {
		users = a.store
	}
	mode := router.FailClosed
	if cfg.Guard.FailMode == "open" {
		mode = router.FailOpen
	}
	guardCfg := router.GuardConfig{
		LoginPath:    cfg.Router.LoginPath,
		OnQueryError: mode,
		QueryTimeout: cfg.Guard.QueryTimeout,
		Logger:       logger,
	}
	routerOpts := router.Options{MaxRedirects: cfg.Router.MaxRedirects}

	a.router = router.New(table, router.NewGuard(users, guardCfg), routerOpts)
	a.router.AfterEach(a.onNavigation)

	// HTTP callers never share the local session. A backend that cannot
	// verify tokens leaves every HTTP caller anonymous.
	verifier, _ := a.backend.(auth.TokenVerifier)
	a.httpRouter = router.New(table, router.NewGuard(auth.TokenUsers{Verifier: verifier}, guardCfg), routerOpts)
	a.httpRouter.AfterEach(a.onNavigation)
	a.stopObserve = a.store.Observe(a.onSessionChange)

	a.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	return a, nil
}

func (b *Builder) newClient(ctx context.Context, rdb redis.UniversalClient, cfg Config, logger *slog.Logger) (*backend.Client, error) {
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:    cfg.Backend.TokenTTL,
		Secret: []byte(cfg.Backend.Key),
		Issuer: cfg.Backend.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: backend.key: %v", ErrInvalidConfig, err)
	}

	storage := b.storage
	if storage == nil && cfg.Backend.SessionFile != "" {
		storage = backend.FileStorage{Path: cfg.Backend.SessionFile}
	}

	client, err := backend.NewClient(ctx, rdb, tokens, backend.Config{
		Prefix:     cfg.Backend.Prefix,
		SessionTTL: cfg.Backend.SessionTTL,
		Storage:    storage,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect auth backend: %w", err)
	}
	return client, nil
}
