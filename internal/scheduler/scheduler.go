// Package scheduler runs guardian's background maintenance: purging expired
// cache entries and refreshing warm-up queries so common lookups stay cached
// with current results.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpsek/guardian/internal/logging"
	"github.com/mcpsek/guardian/internal/pipeline"
)

// DefaultWarmMaxResults is the max_results used for warm-up queries
const DefaultWarmMaxResults = 10

// Purger removes expired cache entries
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Runner re-executes a discovery request, bypassing and overwriting any
// cached entry
type Runner interface {
	Refresh(ctx context.Context, query string, maxResults int) (*pipeline.Result, error)
}

// Report summarizes one maintenance tick
type Report struct {
	Purged int
	Warmed int
	Failed int
}

// Scheduler manages cache purging and warm-up
type Scheduler struct {
	purger         Purger
	runner         Runner
	interval       time.Duration
	warmQueries    []string
	warmMaxResults int
	workerCount    int
	onPurge        func(int)
	logger         *zap.Logger
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithWarmQueries sets the queries refreshed on every tick
func WithWarmQueries(queries []string, maxResults int) Option {
	return func(s *Scheduler) {
		s.warmQueries = append([]string(nil), queries...)
		if maxResults > 0 {
			s.warmMaxResults = maxResults
		}
	}
}

// WithWorkers sets the number of concurrent warm-up workers
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithPurgeHook registers a callback receiving each purge count
func WithPurgeHook(fn func(int)) Option {
	return func(s *Scheduler) { s.onPurge = fn }
}

// WithLogger sets the scheduler logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = logging.OrNop(l) }
}

// New creates a new scheduler. runner may be nil when no warm-up is wanted.
func New(purger Purger, runner Runner, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		purger:         purger,
		runner:         runner,
		interval:       interval,
		warmMaxResults: DefaultWarmMaxResults,
		workerCount:    2,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs an initial tick, then one per interval until ctx is done. A
// non-positive interval disables the loop and Start returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduler disabled")
		return nil
	}
	s.logger.Info("scheduler starting",
		zap.Duration("interval", s.interval),
		zap.Int("warm_queries", len(s.warmQueries)),
	)

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick purges expired entries, then runs the warm-up queries
func (s *Scheduler) Tick(ctx context.Context) Report {
	var r Report
	r.Purged = s.purge(ctx)
	if ctx.Err() != nil {
		return r
	}
	r.Warmed, r.Failed = s.warm(ctx)
	return r
}

func (s *Scheduler) purge(ctx context.Context) int {
	if s.purger == nil {
		return 0
	}
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("cache purge failed", zap.Error(err))
		return 0
	}
	if s.onPurge != nil {
		s.onPurge(n)
	}
	if n > 0 {
		s.logger.Info("purged expired cache entries", zap.Int("count", n))
	}
	return n
}

// warm runs the warm-up queries through a bounded worker pool
func (s *Scheduler) warm(ctx context.Context) (warmed, failed int) {
	if s.runner == nil || len(s.warmQueries) == 0 {
		return 0, 0
	}

	jobs := make(chan string, len(s.warmQueries))
	for _, q := range s.warmQueries {
		jobs <- q
	}
	close(jobs)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	workers := min(s.workerCount, len(s.warmQueries))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range jobs {
				ok := s.warmQuery(ctx, q)
				mu.Lock()
				if ok {
					warmed++
				} else {
					failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.logger.Debug("warm-up complete", zap.Int("warmed", warmed), zap.Int("failed", failed))
	return warmed, failed
}

func (s *Scheduler) warmQuery(ctx context.Context, query string) bool {
	if ctx.Err() != nil {
		return false
	}
	res, err := s.runner.Refresh(ctx, query, s.warmMaxResults)
	if err != nil {
		s.logger.Warn("warm-up query failed", zap.String("query", query), zap.Error(err))
		return false
	}
	s.logger.Debug("warm-up query done",
		zap.String("query", query),
		zap.Int("results", len(res.Ranked)),
	)
	return true
}
