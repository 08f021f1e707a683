package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mcpsek/guardian/internal/api"
	"github.com/mcpsek/guardian/internal/cache"
	"github.com/mcpsek/guardian/internal/config"
	"github.com/mcpsek/guardian/internal/database"
	"github.com/mcpsek/guardian/internal/discovery"
	"github.com/mcpsek/guardian/internal/metrics"
	"github.com/mcpsek/guardian/internal/pipeline"
	"github.com/mcpsek/guardian/internal/provider"
	"github.com/mcpsek/guardian/internal/runs"
	"github.com/mcpsek/guardian/internal/sqlite"
)

// cacheDialTimeout bounds the startup connection attempt to a remote cache
const cacheDialTimeout = 5 * time.Second

// app holds the components shared by every subcommand
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	cache    *cache.Cache
	recorder *runs.Recorder
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	checks   map[string]api.HealthCheck
	closers  []func()
}

// newApp connects the configured backends and assembles the pipeline
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		checks: make(map[string]api.HealthCheck),
	}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	var (
		pg  *database.DB
		sq  *sqlite.DB
		err error
	)
	if cfg.CacheBackend == config.BackendPostgres || cfg.RunsBackend == config.BackendPostgres {
		pg, err = connectPostgres(ctx, cfg.DatabaseURL)
		switch {
		case err != nil && cfg.RunsBackend == config.BackendPostgres:
			return nil, err
		case err != nil:
			logger.Warn("cache database unreachable, running uncached", zap.Error(err))
		default:
			a.closers = append(a.closers, pg.Close)
			a.checks["postgres"] = pg.Health
			logger.Info("database connected")
		}
	}
	if cfg.CacheBackend == config.BackendSQLite || cfg.RunsBackend == config.BackendSQLite {
		sq, err = sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = sq.Close() })
		a.checks["sqlite"] = sq.Health
		logger.Info("sqlite opened", zap.String("path", cfg.SQLitePath))
	}

	var store cache.Store
	switch cfg.CacheBackend {
	case config.BackendRedis:
		dialCtx, cancel := context.WithTimeout(ctx, cacheDialTimeout)
		client, err := cache.DialRedis(dialCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, running uncached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			break
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		store = cache.NewRedisStore(client, cfg.RedisPrefix)
	case config.BackendPostgres:
		if pg != nil {
			store = database.NewCacheStore(pg)
		}
	case config.BackendSQLite:
		store = sqlite.NewCacheStore(sq)
	default:
		store = cache.NewMemoryStore()
	}
	if store != nil {
		a.cache = cache.New(store, cache.WithTTL(cfg.CacheTTL), cache.WithLogger(logger))
	}

	var runStore runs.Store
	switch cfg.RunsBackend {
	case config.BackendPostgres:
		runStore = database.NewRunStore(pg)
	case config.BackendSQLite:
		runStore = sqlite.NewRunStore(sq)
	default:
		runStore = runs.NewMemoryStore()
	}
	a.recorder = runs.NewRecorder(runStore, nil)

	providers, err := provider.Build(provider.Options{
		Names:       cfg.Providers,
		CatalogPath: cfg.CatalogPath,
		NPMURL:      cfg.NPMURL,
		GitHubURL:   cfg.GitHubURL,
		GitHubToken: cfg.GitHubToken,
		RegistryURL: cfg.RegistryURL,
		HTTP: provider.HTTPOptions{
			Client:            &http.Client{Timeout: cfg.TimeBudget},
			RequestsPerSecond: cfg.RequestsPerSecond,
			UserAgent:         "mcp-guardian/" + version,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	orchestrator := discovery.NewOrchestrator(providers,
		discovery.WithTimeBudget(cfg.TimeBudget),
		discovery.WithConcurrency(cfg.ProviderConcurrency),
		discovery.WithLogger(logger),
	)

	observers := pipeline.MultiObserver{pipeline.LogObserver{Logger: logger}}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
		observers = append(observers, a.metrics)
	}

	a.pipeline = pipeline.New(orchestrator, a.cache, a.recorder,
		pipeline.WithTTL(cfg.CacheTTL),
		pipeline.WithObserver(observers),
		pipeline.WithLogger(logger),
	)

	logger.Info("pipeline ready",
		zap.Strings("providers", orchestrator.Providers()),
		zap.String("cache", cfg.CacheBackend),
		zap.Bool("cached", a.cache != nil),
		zap.String("runs", cfg.RunsBackend),
		zap.Duration("time_budget", cfg.TimeBudget),
	)
	ready = true
	return a, nil
}

// connectPostgres opens the pool and makes sure the schema exists
func connectPostgres(ctx context.Context, url string) (*database.DB, error) {
	pg, err := database.New(ctx, url, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

// purger returns the cache as a purge target, or nil when running uncached
func (a *app) purger() cachePurger {
	if a.cache == nil {
		return nil
	}
	return a.cache
}

type cachePurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// purged records a scheduler purge in metrics when they are enabled
func (a *app) purged(n int) {
	if a.metrics != nil {
		a.metrics.Purged(n)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
