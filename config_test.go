package goBlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend.URL = "redis://localhost:6379/0"
	cfg.Backend.Key = "config-test-signing-key"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.Backend.URL = "" }, wantErr: ErrMissingBackendConfig},
		{name: "missing key", mutate: func(c *Config) { c.Backend.Key = "  " }, wantErr: ErrMissingBackendConfig},
		{name: "zero token ttl", mutate: func(c *Config) { c.Backend.TokenTTL = 0 }, wantErr: ErrInvalidConfig},
		{name: "base without slash", mutate: func(c *Config) { c.Router.Base = "vue-blog" }, wantErr: ErrInvalidConfig},
		{name: "login path relative", mutate: func(c *Config) { c.Router.LoginPath = "login" }, wantErr: ErrInvalidConfig},
		{name: "no redirects", mutate: func(c *Config) { c.Router.MaxRedirects = 0 }, wantErr: ErrInvalidConfig},
		{name: "guard store source", mutate: func(c *Config) { c.Guard.Source = GuardSourceStore }},
		{name: "guard bad source", mutate: func(c *Config) { c.Guard.Source = "cache" }, wantErr: ErrInvalidConfig},
		{name: "fail open", mutate: func(c *Config) { c.Guard.FailMode = "open" }},
		{name: "bad fail mode", mutate: func(c *Config) { c.Guard.FailMode = "ajar" }, wantErr: ErrInvalidConfig},
		{name: "negative timeout", mutate: func(c *Config) { c.Guard.QueryTimeout = -time.Second }, wantErr: ErrInvalidConfig},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: ErrInvalidConfig},
		{name: "throttle zero budget", mutate: func(c *Config) { c.Throttle.MaxSignInAttempts = 0 }, wantErr: ErrInvalidConfig},
		{name: "throttle off ignores budget", mutate: func(c *Config) { c.Throttle.Enabled, c.Throttle.SignUpWindow = false, 0 }},
		{name: "audit without buffer", mutate: func(c *Config) { c.Audit.Enabled, c.Audit.BufferSize = true, 0 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goblog.yaml")
	yaml := []byte(`
backend:
  url: redis://file:6379/1
  key: file-signing-key-0123
  session_ttl: 48h
guard:
  query_timeout: 750ms
server:
  addr: ":7000"
log:
  format: text
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("GOBLOG_GUARD__FAIL_MODE", "open")
	t.Setenv("GOBLOG_SERVER__ADDR", ":7100")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", ":8080", "")
	fs.String("log-level", "info", "")
	if err := fs.Parse([]string{"--addr", ":7200"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadConfig(path, fs, map[string]string{"addr": "server.addr", "log-level": "log.level"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Backend.URL != "redis://file:6379/1" || cfg.Backend.SessionTTL != 48*time.Hour {
		t.Fatalf("file layer not applied: %+v", cfg.Backend)
	}
	if cfg.Guard.QueryTimeout != 750*time.Millisecond || cfg.Guard.FailMode != "open" {
		t.Fatalf("guard layers not applied: %+v", cfg.Guard)
	}
	if cfg.Server.Addr != ":7200" {
		t.Fatalf("flag should win over env and file, got %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unchanged flag must not override: %+v", cfg.Log)
	}
	if cfg.Router.Base != "/vue-blog/" || cfg.Backend.Prefix != "goblog" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Router, cfg.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil, nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigDefaultsRequireBackend(t *testing.T) {
	cfg, err := LoadConfig("", nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingBackendConfig) {
		t.Fatalf("expected ErrMissingBackendConfig, got %v", err)
	}
}
