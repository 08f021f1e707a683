package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcpsek/guardian/internal/api"
	"github.com/mcpsek/guardian/internal/scheduler"
	"github.com/mcpsek/guardian/internal/web"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, web UI and background cache maintenance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c)
		},
	}
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().Duration("purge-interval", time.Hour, "interval between cache purges; 0 disables the scheduler")
	cmd.Flags().StringSlice("warm", nil, "queries re-run on every purge tick to keep the cache hot")
	c.bind(cmd, "http_addr", "addr")
	c.bind(cmd, "purge_interval", "purge-interval")
	c.bind(cmd, "warm_queries", "warm")
	return cmd
}

func runServe(ctx context.Context, c *cli) error {
	cfg, logger := c.cfg, c.logger
	logger.Info("guardian starting", zap.String("version", version))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// Initialize scheduler
	sched := scheduler.New(a.purger(), a.pipeline, cfg.PurgeInterval,
		scheduler.WithWarmQueries(cfg.WarmQueries, scheduler.DefaultWarmMaxResults),
		scheduler.WithWorkers(cfg.WarmWorkers),
		scheduler.WithPurgeHook(a.purged),
		scheduler.WithLogger(logger.Named("scheduler")),
	)

	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()

	go func() {
		if err := sched.Start(schedCtx); err != nil {
			logger.Error("scheduler error", zap.Error(err))
		}
	}()

	// Initialize API
	opts := []api.Option{api.WithLogger(logger.Named("api"))}
	for name, check := range a.checks {
		opts = append(opts, api.WithHealthCheck(name, check))
	}
	if a.metrics != nil {
		opts = append(opts, api.WithMetrics(a.metrics.Handler()))
	}
	apiHandler := api.New(a.pipeline, a.recorder, a.purger(), opts...)

	// Initialize web UI
	webHandler, err := web.New(a.pipeline, logger.Named("web"))
	if err != nil {
		return err
	}

	// Setup router
	r := chi.NewRouter()
	r.Mount("/api/v1", apiHandler.Router())
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}
	r.Mount("/", webHandler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info("shutdown signal received, stopping")
		schedCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("guardian listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Duration("purge_interval", cfg.PurgeInterval),
		zap.Int("warm_queries", len(cfg.WarmQueries)),
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped

	logger.Info("guardian stopped")
	return nil
}
