package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/goBlog/internal/logging"
	otelexport "github.com/MrEthical07/goBlog/metrics/export/otel"
	promexport "github.com/MrEthical07/goBlog/metrics/export/prometheus"
	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the blog over HTTP",
		Long: `Serve the blog route table over HTTP. Every request is a navigation:
guarded routes redirect signed-out visitors to the login path. Visitors
sign in with their own access token (bearer header or session cookie).
Prometheus metrics are served on server.metrics_path when enabled.`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, logger, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		return err
	}
	cfg := app.Config()

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled && cfg.Server.MetricsPath != "" {
		mux.Handle(cfg.Server.MetricsPath, promexport.Handler(app))
		exp, err := otelexport.NewExporter(otel.Meter("github.com/MrEthical07/goBlog"), app)
		if err != nil {
			return err
		}
		defer exp.Close()
	}
	mux.Handle("/", app.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           gzhttp.GzipHandler(mux),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", cfg.Server.Addr, "base", cfg.Router.Base)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logging.LogError(ctx, logger, "server stopped", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
