// Package web serves a small HTML front end over the discovery pipeline.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mcpsek/guardian/internal/logging"
	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultMaxResults = 10

// Runner executes discovery requests
type Runner interface {
	Run(ctx context.Context, query string, maxResults int) (*pipeline.Result, error)
}

// Web handles web UI requests
type Web struct {
	runner    Runner
	templates *template.Template
	logger    *zap.Logger
}

// New creates a new web handler
func New(runner Runner, logger *zap.Logger) (*Web, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"join": strings.Join,
		"tierClass": func(t model.Tier) string {
			return "tier-" + strings.ToLower(string(t))
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Web{
		runner:    runner,
		templates: tmpl,
		logger:    logging.OrNop(logger),
	}, nil
}

// Router creates the web router
func (w *Web) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", w.home)
	r.Get("/search", w.search)

	return r
}

// home renders the search form
func (w *Web) home(wr http.ResponseWriter, _ *http.Request) {
	w.render(wr, http.StatusOK, "home.html", map[string]any{"Query": "", "Max": defaultMaxResults})
}

// search renders ranked results for ?q=
func (w *Web) search(wr http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		http.Redirect(wr, r, "/", http.StatusSeeOther)
		return
	}

	maxResults := defaultMaxResults
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(wr, "Invalid max", http.StatusBadRequest)
			return
		}
		maxResults = n
	}

	data := map[string]any{
		"Query": query,
		"Max":   maxResults,
	}

	res, err := w.runner.Run(r.Context(), query, maxResults)
	if err != nil {
		w.logger.Debug("web search failed", zap.String("query", query), zap.Error(err))
		data["Error"] = err.Error()
		w.render(wr, http.StatusOK, "search.html", data)
		return
	}

	data["Result"] = res
	w.render(wr, http.StatusOK, "search.html", data)
}

func (w *Web) render(wr http.ResponseWriter, status int, name string, data any) {
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	wr.WriteHeader(status)
	if err := w.templates.ExecuteTemplate(wr, name, data); err != nil {
		w.logger.Error("render template", zap.String("template", name), zap.Error(err))
	}
}
