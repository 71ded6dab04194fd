package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/sessionmesh/config"
	"github.com/hupe1980/sessionmesh/httpsession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session admin API",
	Long: `Build the configured handler chain, install it on an HTTP session
runtime and serve the admin API on server.listen until interrupted.

Examples:
  sessionmesh serve --config /etc/sessionmesh/config.yaml
  SESSIONMESH_LOGGING_LEVEL=DEBUG sessionmesh serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, logCloser, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	logger = logger.WithContext("store", cfg.Store.Type)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt := httpsession.NewRuntime(func(o *httpsession.Options) {
		o.SavePath = cfg.Session.SavePath
		o.Name = cfg.Session.Name
		o.CookieName = cfg.Session.CookieName
		o.MaxLifetime = cfg.Session.MaxLifetime
		o.GCProbability = cfg.Session.GCProbability
		o.Logger = logger.WithComponent("runtime")
	})

	if _, err := config.Build(ctx, cfg, func(o *config.BuildOptions) {
		o.Logger = logger.WithComponent("manager")
		o.Registerer = reg
		o.Host = rt
	}); err != nil {
		return err
	}
	if err := rt.Start(); err != nil {
		return err
	}
	defer func() { _ = rt.Stop() }()

	srv := &http.Server{
		Addr: cfg.Server.Listen,
		Handler: httpsession.NewRouter(rt, func(o *httpsession.RouterOptions) {
			if cfg.Server.Metrics {
				o.Gatherer = reg
			}
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe()
	}()
	logger.Info("Server is running. Press Ctrl+C to stop.", "listen", cfg.Server.Listen, "metrics", cfg.Server.Metrics)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("Server stopped gracefully")
		return nil
	case err := <-serverDone:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
