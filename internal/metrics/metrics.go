// Package metrics exports pipeline events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpsek/guardian/internal/pipeline"
)

const namespace = "guardian"

// Metrics implements pipeline.Observer on a private registry
type Metrics struct {
	registry       *prometheus.Registry
	runs           *prometheus.CounterVec
	providerErrors prometheus.Counter
	latency        *prometheus.HistogramVec
	results        prometheus.Histogram
	purged         prometheus.Counter
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline invocations by cache result and outcome.",
		}, []string{"cache", "outcome"}),
		providerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider calls that failed or missed the time budget.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "latency_seconds",
			Help:      "End-to-end pipeline latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"cache"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "results",
			Help:      "Ranked results returned per invocation.",
			Buckets:   prometheus.LinearBuckets(0, 5, 11),
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "purged_total",
			Help:      "Expired cache entries removed by sweeps.",
		}),
	}
	m.registry.MustRegister(
		m.runs, m.providerErrors, m.latency, m.results, m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe implements pipeline.Observer
func (m *Metrics) Observe(e pipeline.Event) {
	cache := "miss"
	if e.CacheHit {
		cache = "hit"
	}
	m.runs.WithLabelValues(cache, string(e.Outcome)).Inc()
	m.providerErrors.Add(float64(e.ProviderErrorCount))
	m.latency.WithLabelValues(cache).Observe(e.TotalLatency.Seconds())
	if e.Outcome == pipeline.OutcomeOK {
		m.results.Observe(float64(e.ResultCount))
	}
}

// Purged records entries removed by a cache sweep
func (m *Metrics) Purged(n int) {
	if n > 0 {
		m.purged.Add(float64(n))
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
