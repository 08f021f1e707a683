package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mcpsek/guardian/internal/model"
)

const (
	// DefaultTimeBudget bounds each provider call when no budget is configured
	DefaultTimeBudget = 10 * time.Second

	// DefaultConcurrency caps outbound provider calls in flight
	DefaultConcurrency = 8
)

// Result is the union of everything the providers returned
type Result struct {
	Candidates []model.RawCandidate
	Errors     []*model.SourceError
	Succeeded  int
}

// Orchestrator runs providers concurrently under a per-call time budget
type Orchestrator struct {
	providers   []Provider
	budget      time.Duration
	concurrency int
	logger      *zap.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTimeBudget sets the deadline applied to every provider call
func WithTimeBudget(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.budget = d
		}
	}
}

// WithConcurrency caps the number of provider calls in flight
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger used for per-provider diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an orchestrator over the given providers
func NewOrchestrator(providers []Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers:   append([]Provider(nil), providers...),
		budget:      DefaultTimeBudget,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Providers returns the names of the registered providers in order
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}

// Discover invokes every provider and merges their candidates in registration
// order. Individual failures are reported in Result.Errors; only the failure of
// every provider, or cancellation of ctx, fails the call.
func (o *Orchestrator) Discover(ctx context.Context, query string, limit int) (*Result, error) {
	if len(o.providers) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", model.ErrNoSourcesAvailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCancelled, err)
	}

	type outcome struct {
		candidates []model.RawCandidate
		err        *model.SourceError
	}
	outcomes := make([]outcome, len(o.providers))

	// A plain group: a failing provider must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(min(len(o.providers), o.concurrency))

	for i, p := range o.providers {
		g.Go(func() error {
			candidates, err := o.call(ctx, p, query, limit)
			outcomes[i] = outcome{candidates: candidates, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCancelled, err)
	}

	result := &Result{
		Candidates: make([]model.RawCandidate, 0),
		Errors:     make([]*model.SourceError, 0),
	}
	for _, out := range outcomes {
		if out.err != nil {
			result.Errors = append(result.Errors, out.err)
			continue
		}
		result.Succeeded++
		result.Candidates = append(result.Candidates, out.candidates...)
	}

	if result.Succeeded == 0 {
		errs := make([]error, len(result.Errors))
		for i, se := range result.Errors {
			errs[i] = se
		}
		return result, fmt.Errorf("%w: %w", model.ErrNoSourcesAvailable, errors.Join(errs...))
	}

	o.logger.Debug("discovery complete",
		zap.Int("providers", len(o.providers)),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Errors)),
		zap.Int("candidates", len(result.Candidates)),
	)
	return result, nil
}

// call runs one provider under its own deadline. A provider that ignores the
// deadline is abandoned; its goroutine drains into a buffered channel.
func (o *Orchestrator) call(ctx context.Context, p Provider, query string, limit int) ([]model.RawCandidate, *model.SourceError) {
	name := p.Name()
	callCtx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	type reply struct {
		candidates []model.RawCandidate
		err        error
	}
	replies := make(chan reply, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- reply{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		candidates, err := p.FetchCandidates(callCtx, query, limit)
		replies <- reply{candidates: candidates, err: err}
	}()

	select {
	case r := <-replies:
		if r.err != nil {
			se := &model.SourceError{Source: name, Reason: r.err.Error(), Err: r.err}
			o.logger.Warn("provider failed", zap.String("source", name), zap.Error(r.err))
			return nil, se
		}
		candidates := stamp(r.candidates, name, limit)
		o.logger.Debug("provider returned",
			zap.String("source", name),
			zap.Int("candidates", len(candidates)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return candidates, nil
	case <-callCtx.Done():
		err := callCtx.Err()
		reason := "cancelled"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("deadline exceeded after %s", o.budget)
		}
		o.logger.Warn("provider abandoned", zap.String("source", name), zap.String("reason", reason))
		return nil, &model.SourceError{Source: name, Reason: reason, Err: err}
	}
}

// stamp fills in missing source identifiers and enforces the per-provider limit
func stamp(candidates []model.RawCandidate, source string, limit int) []model.RawCandidate {
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]model.RawCandidate, len(candidates))
	for i, c := range candidates {
		if c.Source == "" {
			c.Source = source
		}
		c.Evidence = c.Evidence.Clone()
		out[i] = c
	}
	return out
}
