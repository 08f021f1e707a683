package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// Outcome classifies how a pipeline invocation ended
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeInvalidArgument Outcome = "invalid_argument"
	OutcomeNoSources       Outcome = "no_sources"
	OutcomeCancelled       Outcome = "cancelled"
)

// Event is emitted once per pipeline invocation
type Event struct {
	Fingerprint        string
	Query              string
	CacheHit           bool
	ProviderErrorCount int
	TotalLatency       time.Duration
	ResultCount        int
	Outcome            Outcome
}

// Observer receives pipeline events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe implements Observer
func (f ObserverFunc) Observe(e Event) { f(e) }

// MultiObserver fans an event out to several observers
type MultiObserver []Observer

// Observe implements Observer
func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

// LogObserver writes one structured log line per invocation
type LogObserver struct {
	Logger *zap.Logger
}

// Observe implements Observer
func (l LogObserver) Observe(e Event) {
	if l.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("fingerprint", e.Fingerprint),
		zap.Bool("cache_hit", e.CacheHit),
		zap.Int("provider_errors", e.ProviderErrorCount),
		zap.Duration("latency", e.TotalLatency),
		zap.Int("results", e.ResultCount),
		zap.String("outcome", string(e.Outcome)),
	}
	if e.Outcome == OutcomeOK {
		l.Logger.Info("pipeline run", fields...)
		return
	}
	l.Logger.Warn("pipeline run", fields...)
}
