package goBlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: GOBLOG_BACKEND__URL sets backend.url.
const EnvPrefix = "GOBLOG_"

// Config is the full runtime configuration. Start from [DefaultConfig].
type Config struct {
	Backend  BackendConfig  `koanf:"backend"`
	Router   RouterConfig   `koanf:"router"`
	Guard    GuardConfig    `koanf:"guard"`
	Session  SessionConfig  `koanf:"session"`
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Audit    AuditConfig    `koanf:"audit"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Throttle ThrottleConfig `koanf:"throttle"`
}

// BackendConfig locates the hosted auth service. URL is a redis:// URL and Key
// is the HS256 signing key for access tokens.
type BackendConfig struct {
	URL        string        `koanf:"url"`
	Key        string        `koanf:"key"`
	Prefix     string        `koanf:"prefix"`
	SessionTTL time.Duration `koanf:"session_ttl"`
	TokenTTL   time.Duration `koanf:"token_ttl"`
	// SessionFile persists the local session between runs. Empty keeps it in memory.
	SessionFile string `koanf:"session_file"`
}

type RouterConfig struct {
	// Base is the public path prefix the app is served under.
	Base         string `koanf:"base"`
	LoginPath    string `koanf:"login_path"`
	MaxRedirects int    `koanf:"max_redirects"`
}

// GuardSource picks what the navigation guard asks for the current user.
type GuardSource string

const (
	// GuardSourceBackend queries the auth backend on every navigation.
	GuardSourceBackend GuardSource = "backend"
	// GuardSourceStore reads the session store's cached value.
	GuardSourceStore GuardSource = "store"
)

type GuardConfig struct {
	Source GuardSource `koanf:"source"`
	// FailMode is "closed" (redirect on query error) or "open" (allow).
	FailMode     string        `koanf:"fail_mode"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

type SessionConfig struct {
	InitialRetries uint64        `koanf:"initial_retries"`
	RetryBase      time.Duration `koanf:"retry_base"`
	InitialTimeout time.Duration `koanf:"initial_timeout"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// MetricsPath serves Prometheus metrics when metrics are enabled.
	MetricsPath string `koanf:"metrics_path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

// ThrottleConfig limits password guessing and account creation through the
// HTTP views. Counters live in the backend's Redis.
type ThrottleConfig struct {
	Enabled           bool          `koanf:"enabled"`
	MaxSignInAttempts int           `koanf:"max_sign_in_attempts"`
	SignInCooldown    time.Duration `koanf:"sign_in_cooldown"`
	// PerIP also counts sign-in failures per client address.
	PerIP        bool          `koanf:"per_ip"`
	MaxSignUps   int           `koanf:"max_sign_ups"`
	SignUpWindow time.Duration `koanf:"sign_up_window"`
}

// DefaultConfig returns the reference configuration. Backend URL and Key have
// no defaults.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			Prefix:     "goblog",
			SessionTTL: 7 * 24 * time.Hour,
			TokenTTL:   time.Hour,
		},
		Router: RouterConfig{
			Base:         "/vue-blog/",
			LoginPath:    "/login",
			MaxRedirects: 5,
		},
		Guard: GuardConfig{
			Source:   GuardSourceBackend,
			FailMode: "closed",
		},
		Session: SessionConfig{
			RetryBase: 100 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MetricsPath:       "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Throttle: ThrottleConfig{
			Enabled:           true,
			MaxSignInAttempts: 5,
			SignInCooldown:    15 * time.Minute,
			PerIP:             true,
			MaxSignUps:        10,
			SignUpWindow:      time.Hour,
		},
	}
}

// Validate checks c. Missing backend settings report ErrMissingBackendConfig;
// everything else wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.URL) == "" || strings.TrimSpace(c.Backend.Key) == "" {
		return ErrMissingBackendConfig
	}
	if c.Backend.TokenTTL <= 0 {
		return fmt.Errorf("%w: backend.token_ttl must be > 0", ErrInvalidConfig)
	}
	return c.validateLocal()
}

// validateLocal checks everything except the backend location, which an
// injected backend does not need.
func (c *Config) validateLocal() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}

	if c.Backend.SessionTTL < 0 || c.Backend.TokenTTL < 0 {
		return invalid("backend TTLs must not be negative")
	}
	if !strings.HasPrefix(c.Router.Base, "/") || !strings.HasSuffix(c.Router.Base, "/") {
		return invalid("router.base must start and end with /")
	}
	if !strings.HasPrefix(c.Router.LoginPath, "/") {
		return invalid("router.login_path must start with /")
	}
	if c.Router.MaxRedirects < 1 {
		return invalid("router.max_redirects must be >= 1")
	}
	switch c.Guard.Source {
	case GuardSourceBackend, GuardSourceStore:
	default:
		return invalid("unsupported guard.source %q", c.Guard.Source)
	}
	switch c.Guard.FailMode {
	case "closed", "open":
	default:
		return invalid("unsupported guard.fail_mode %q", c.Guard.FailMode)
	}
	if c.Guard.QueryTimeout < 0 || c.Session.InitialTimeout < 0 || c.Session.RetryBase < 0 {
		return invalid("timeouts must not be negative")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("unsupported log.format %q", c.Log.Format)
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("audit.buffer_size must be > 0 when audit is enabled")
	}
	if c.Throttle.Enabled {
		if c.Throttle.MaxSignInAttempts < 1 || c.Throttle.MaxSignUps < 1 {
			return invalid("throttle limits must be >= 1")
		}
		if c.Throttle.SignInCooldown <= 0 || c.Throttle.SignUpWindow <= 0 {
			return invalid("throttle windows must be > 0")
		}
	}
	return nil
}

// LoadConfig layers DefaultConfig, the YAML file at path (if path is set),
// GOBLOG_ environment variables and the changed flags in fs, in that order.
// flagKeys maps flag names to config keys; unmapped flags are ignored.
func LoadConfig(path string, fs *pflag.FlagSet, flagKeys map[string]string) (Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return cfg, fmt.Errorf("load environment: %w", err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return cfg, fmt.Errorf("load flags: %w", err)
		}
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
