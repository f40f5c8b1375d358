package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	goBlog "github.com/MrEthical07/goBlog"
	"github.com/MrEthical07/goBlog/internal/logging"
	"github.com/spf13/cobra"
)

// Global flag for the config file path.
var configFile string

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"redis-url":     "backend.url",
	"key":           "backend.key",
	"session-file":  "backend.session_file",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"base":          "router.base",
	"guard-source":  "guard.source",
	"fail-mode":     "guard.fail_mode",
	"query-timeout": "guard.query_timeout",
	"addr":          "server.addr",
}

// NewRootCmd creates the root command for the goblog CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goblog",
		Short: "goBlog - authenticated blog client",
		Long: `goblog serves the blog route table over HTTP and drives the same
session store and navigation guard from the command line.

Configuration is layered: defaults, the --config YAML file, GOBLOG_
environment variables (GOBLOG_BACKEND__URL sets backend.url), then flags.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path")
	pf.String("redis-url", "", "auth backend redis URL")
	pf.String("key", "", "auth backend token signing key")
	pf.String("session-file", "", "file that persists the local session (default: user config dir)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "json", "log format: json or text")
	pf.String("guard-source", string(goBlog.GuardSourceBackend), "guard user source: backend or store")
	pf.String("fail-mode", "closed", "guard behavior on query error: closed or open")
	pf.Duration("query-timeout", 0, "bound on each guard user query (0 waits)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewNavigateCmd())
	cmd.AddCommand(NewSignUpCmd())
	cmd.AddCommand(NewSignInCmd())
	cmd.AddCommand(NewSignOutCmd())
	cmd.AddCommand(NewWhoAmICmd())
	cmd.AddCommand(NewLoadTestCmd())

	return cmd
}

// loadConfig resolves the layered configuration for cmd.
func loadConfig(cmd *cobra.Command) (goBlog.Config, error) {
	cfg, err := goBlog.LoadConfig(configFile, cmd.Flags(), flagKeys)
	if err != nil {
		return cfg, err
	}
	if cfg.Backend.SessionFile == "" {
		cfg.Backend.SessionFile = defaultSessionFile()
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg goBlog.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.Setup("goblog", cfg.Log.Format, level, cmd.ErrOrStderr()), nil
}

// openApp builds the App for cmd. Callers must Close it.
func openApp(ctx context.Context, cmd *cobra.Command) (*goBlog.App, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	app, err := goBlog.New().WithConfig(cfg).WithLogger(logger).Build(ctx)
	if err != nil {
		return nil, nil, err
	}
	return app, logger, nil
}

// startApp opens the App and waits for the initial session query.
func startApp(ctx context.Context, cmd *cobra.Command) (*goBlog.App, *slog.Logger, error) {
	app, logger, err := openApp(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Start(ctx); err != nil {
		_ = app.Close()
		return nil, nil, err
	}
	select {
	case <-app.Ready():
	case <-ctx.Done():
		_ = app.Close()
		return nil, nil, ctx.Err()
	}
	return app, logger, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "goblog", "session.json")
	}
	return filepath.Join(dir, "goblog", "session.json")
}

func requireClient(app *goBlog.App) error {
	if app.Client() == nil {
		return fmt.Errorf("account commands need the redis auth backend")
	}
	return nil
}
