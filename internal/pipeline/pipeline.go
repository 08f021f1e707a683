// Package pipeline drives one discovery request end to end: fingerprint,
// cache lookup, provider fan-out, merge, score, rank, cache store and audit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/mcpsek/guardian/internal/cache"
	"github.com/mcpsek/guardian/internal/discovery"
	"github.com/mcpsek/guardian/internal/fingerprint"
	"github.com/mcpsek/guardian/internal/merge"
	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/ranking"
	"github.com/mcpsek/guardian/internal/runs"
	"github.com/mcpsek/guardian/internal/scoring"
)

// DefaultProviderLimit is the smallest per-provider limit requested. Merging
// collapses duplicates, so providers are asked for more than the caller wants.
const DefaultProviderLimit = 20

// Discoverer fans a query out to source providers
type Discoverer interface {
	Discover(ctx context.Context, query string, limit int) (*discovery.Result, error)
}

// Result is what a pipeline invocation returns to the boundary layer
type Result struct {
	Ranked       []model.RankedResult `json:"ranked"`
	Cached       bool                 `json:"cached"`
	TotalFound   int                  `json:"total_found"`
	RunID        *uuid.UUID           `json:"run_id,omitempty"`
	Fingerprint  string               `json:"fingerprint"`
	SourceErrors []*model.SourceError `json:"source_errors,omitempty"`
}

// Pipeline wires the discovery stages together. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	discoverer    Discoverer
	cache         *cache.Cache
	recorder      *runs.Recorder
	ttl           time.Duration
	providerLimit int
	clock         clock.PassiveClock
	observer      Observer
	logger        *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithTTL overrides the cache default TTL for entries written by the pipeline
func WithTTL(ttl time.Duration) Option {
	return func(p *Pipeline) { p.ttl = ttl }
}

// WithProviderLimit sets the minimum number of candidates asked of each provider
func WithProviderLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.providerLimit = n
		}
	}
}

// WithClock sets the clock used for latency measurement
func WithClock(c clock.PassiveClock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithObserver sets the per-invocation event sink
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the pipeline logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pipeline. cache and recorder may be nil, which disables
// caching and auditing respectively.
func New(d Discoverer, c *cache.Cache, r *runs.Recorder, opts ...Option) *Pipeline {
	p := &Pipeline{
		discoverer:    d,
		cache:         c,
		recorder:      r,
		providerLimit: DefaultProviderLimit,
		clock:         clock.RealClock{},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline for query. Failures wrap exactly one of
// model.ErrInvalidArgument, model.ErrNoSourcesAvailable or model.ErrCancelled.
func (p *Pipeline) Run(ctx context.Context, query string, maxResults int) (*Result, error) {
	return p.run(ctx, query, maxResults, true)
}

// Refresh runs the pipeline without consulting the cache and replaces any
// entry stored for query, live or not. Failures leave the existing entry.
func (p *Pipeline) Refresh(ctx context.Context, query string, maxResults int) (*Result, error) {
	return p.run(ctx, query, maxResults, false)
}

func (p *Pipeline) run(ctx context.Context, query string, maxResults int, useCache bool) (res *Result, err error) {
	start := p.clock.Now()
	ev := Event{Query: query}
	defer func() {
		ev.TotalLatency = p.clock.Since(start)
		ev.Outcome = outcomeOf(err)
		if res != nil {
			ev.ResultCount = len(res.Ranked)
		}
		if p.observer != nil {
			p.observer.Observe(ev)
		}
	}()

	if maxResults < 1 {
		return nil, fmt.Errorf("%w: max_results must be at least 1, got %d", model.ErrInvalidArgument, maxResults)
	}
	normalized := fingerprint.Normalize(query)
	if normalized == "" {
		return nil, fmt.Errorf("%w: query is empty", model.ErrInvalidArgument)
	}
	fp := fingerprint.Compute(query, maxResults)
	ev.Fingerprint = fp

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCancelled, err)
	}

	if useCache {
		if hit := p.lookup(ctx, fp); hit != nil {
			ev.CacheHit = true
			return &Result{
				Ranked:      hit.Results,
				Cached:      true,
				TotalFound:  hit.TotalFound,
				Fingerprint: fp,
			}, nil
		}
	}

	runID := p.startRun(ctx, query, maxResults, fp)
	finalized := false
	defer func() {
		if runID == uuid.Nil || finalized {
			return
		}
		msg := "pipeline aborted"
		if err != nil {
			msg = err.Error()
		}
		// Finalization must survive the caller cancelling ctx.
		p.completeRun(context.WithoutCancel(ctx), runID, runs.Completion{Status: model.RunFailed, Error: msg})
	}()

	found, err := p.discoverer.Discover(ctx, normalized, max(maxResults, p.providerLimit))
	if found != nil {
		ev.ProviderErrorCount = len(found.Errors)
	}
	if err != nil {
		return nil, p.discoveryError(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCancelled, err)
	}

	servers := merge.Merge(found.Candidates)
	scored := make([]ranking.Scored, len(servers))
	for i, s := range servers {
		scored[i] = ranking.Scored{Server: s, Score: scoring.Score(s)}
	}
	ranked, err := ranking.Rank(scored, maxResults)
	if err != nil {
		return nil, err
	}

	// A cancelled request must not leave a cache entry behind.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCancelled, err)
	}
	p.store(ctx, fp, ranked, len(servers))

	if runID != uuid.Nil {
		ref := fp
		p.completeRun(ctx, runID, runs.Completion{
			Status:      model.RunCompleted,
			ResultRef:   &ref,
			ResultCount: len(ranked),
		})
		finalized = true
	}

	res = &Result{
		Ranked:       ranked,
		TotalFound:   len(servers),
		Fingerprint:  fp,
		SourceErrors: found.Errors,
	}
	if runID != uuid.Nil {
		id := runID
		res.RunID = &id
	}
	return res, nil
}

// lookup returns a live cache entry or nil. Cache faults count as misses.
func (p *Pipeline) lookup(ctx context.Context, fp string) *model.CacheEntry {
	if p.cache == nil {
		return nil
	}
	entry, hit, err := p.cache.Get(ctx, fp)
	if err != nil {
		p.logger.Warn("cache lookup failed, continuing uncached", zap.String("fingerprint", fp), zap.Error(err))
		return nil
	}
	if !hit {
		return nil
	}
	return entry
}

func (p *Pipeline) store(ctx context.Context, fp string, ranked []model.RankedResult, total int) {
	if p.cache == nil {
		return
	}
	if _, err := p.cache.Put(ctx, fp, ranked, total, p.ttl); err != nil {
		p.logger.Warn("cache store failed, result not cached", zap.String("fingerprint", fp), zap.Error(err))
	}
}

func (p *Pipeline) startRun(ctx context.Context, query string, maxResults int, fp string) uuid.UUID {
	if p.recorder == nil {
		return uuid.Nil
	}
	id, err := p.recorder.Start(ctx, query, maxResults, fp)
	if err != nil {
		p.logger.Warn("failed to record run start", zap.String("fingerprint", fp), zap.Error(err))
		return uuid.Nil
	}
	return id
}

func (p *Pipeline) completeRun(ctx context.Context, id uuid.UUID, c runs.Completion) {
	if err := p.recorder.Complete(ctx, id, c); err != nil {
		p.logger.Warn("failed to record run completion",
			zap.Stringer("run_id", id),
			zap.String("status", string(c.Status)),
			zap.Error(err),
		)
	}
}

// discoveryError maps orchestrator failures onto the pipeline taxonomy
func (p *Pipeline) discoveryError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrCancelled), ctx.Err() != nil:
		if errors.Is(err, model.ErrCancelled) {
			return err
		}
		return fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
	case errors.Is(err, model.ErrNoSourcesAvailable):
		return err
	default:
		return fmt.Errorf("%w: %w", model.ErrNoSourcesAvailable, err)
	}
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, model.ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, model.ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeNoSources
	}
}
