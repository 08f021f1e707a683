// Package api exposes the discovery pipeline and run audit log over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcpsek/guardian/internal/logging"
	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/pipeline"
)

// DefaultMaxResults is used when a discover request omits max_results
const DefaultMaxResults = 10

// StatusClientClosedRequest is returned when the caller went away mid-request
const StatusClientClosedRequest = 499

const maxBodyBytes = 64 << 10

// Runner executes discovery requests
type Runner interface {
	Run(ctx context.Context, query string, maxResults int) (*pipeline.Result, error)
}

// RunLog reads recorded pipeline runs
type RunLog interface {
	Get(ctx context.Context, id uuid.UUID) (*model.RunRecord, error)
	List(ctx context.Context, limit int) ([]*model.RunRecord, error)
}

// Purger removes expired cache entries
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// API handles HTTP API requests
type API struct {
	runner  Runner
	runs    RunLog
	purger  Purger
	checks  map[string]HealthCheck
	metrics http.Handler
	logger  *zap.Logger
}

// Option configures an API
type Option func(*API)

// WithHealthCheck adds a named dependency check to GET /health
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(a *API) { a.checks[name] = check }
}

// WithMetrics mounts a metrics handler at /metrics
func WithMetrics(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}

// WithLogger sets the request logger
func WithLogger(l *zap.Logger) Option {
	return func(a *API) { a.logger = logging.OrNop(l) }
}

// New creates a new API handler. runs and purger may be nil, in which case
// their routes answer 501.
func New(runner Runner, runs RunLog, purger Purger, opts ...Option) *API {
	a := &API{
		runner: runner,
		runs:   runs,
		purger: purger,
		checks: make(map[string]HealthCheck),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router creates the API router
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Post("/discover", a.discover)
	r.Get("/runs", a.listRuns)
	r.Get("/runs/{id}", a.getRun)
	r.Post("/cache/purge", a.purgeCache)
	r.Get("/health", a.health)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics)
	}

	return r
}

// Response wraps API responses
type Response struct {
	Data  any       `json:"data,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
	Error *ErrorMsg `json:"error,omitempty"`
}

// Meta contains listing metadata
type Meta struct {
	Total int    `json:"total"`
	Time  string `json:"timestamp"`
}

// ErrorMsg represents an error response
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DiscoverRequest is the body of POST /discover
type DiscoverRequest struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results,omitempty"`
}

// discover handles POST /discover
func (a *API) discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Request body must be a JSON object with query and max_results")
		return
	}

	maxResults := DefaultMaxResults
	if req.MaxResults != nil {
		maxResults = *req.MaxResults
	}

	res, err := a.runner.Run(r.Context(), req.Query, maxResults)
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			a.logger.Warn("discover failed", zap.String("query", req.Query), zap.Error(err))
		}
		respondError(w, status, code, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{Data: res})
}

// listRuns handles GET /runs
func (a *API) listRuns(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		respondError(w, http.StatusNotImplemented, "runs_disabled", "Run recording is disabled")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	records, err := a.runs.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Data: records,
		Meta: &Meta{Total: len(records), Time: time.Now().UTC().Format(time.RFC3339)},
	})
}

// getRun handles GET /runs/{id}
func (a *API) getRun(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		respondError(w, http.StatusNotImplemented, "runs_disabled", "Run recording is disabled")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid run ID")
		return
	}

	run, err := a.runs.Get(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "Run not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{Data: run})
}

// purgeCache handles POST /cache/purge
func (a *API) purgeCache(w http.ResponseWriter, r *http.Request) {
	if a.purger == nil {
		respondError(w, http.StatusNotImplemented, "cache_disabled", "Caching is disabled")
		return
	}

	n, err := a.purger.PurgeExpired(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "cache_unavailable", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{Data: map[string]int{"purged": n}})
}

// health handles GET /health
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, Response{Data: map[string]any{"status": state, "checks": checks}})
}

// statusFor maps pipeline failure kinds onto HTTP statuses
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, model.ErrNoSourcesAvailable):
		return http.StatusServiceUnavailable, "no_sources_available"
	case errors.Is(err, model.ErrCancelled):
		return StatusClientClosedRequest, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// requestLogger logs one line per request
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, Response{
		Error: &ErrorMsg{
			Code:    code,
			Message: message,
		},
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
