package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/pipeline"
)

type stubRunner struct {
	res    *pipeline.Result
	err    error
	gotMax int
}

func (s *stubRunner) Run(_ context.Context, _ string, maxResults int) (*pipeline.Result, error) {
	s.gotMax = maxResults
	return s.res, s.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHome(t *testing.T) {
	t.Parallel()
	w, err := New(&stubRunner{}, nil)
	require.NoError(t, err)

	rec := get(t, w.Router(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<form action="/search"`)
	assert.NotContains(t, rec.Body.String(), "no value")
}

func TestSearchRendersRankedResults(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{res: &pipeline.Result{
		TotalFound: 3,
		Cached:     true,
		Ranked: []model.RankedResult{{
			Rank:   1,
			Server: model.CanonicalServer{Name: "google-drive-mcp", Sources: []string{"catalog", "npm"}},
			Score:  model.ScoreBreakdown{Total: 56, Tier: model.TierFair, Reasons: []string{"authentication: oauth2"}},
		}},
		SourceErrors: []*model.SourceError{{Source: "github", Reason: "rate limited"}},
	}}
	w, err := New(runner, nil)
	require.NoError(t, err)

	rec := get(t, w.Router(), "/search?q=file+operations&max=3")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "google-drive-mcp")
	assert.Contains(t, body, `class="tier-fair"`)
	assert.Contains(t, body, "catalog, npm")
	assert.Contains(t, body, "1 of 3 servers (cached)")
	assert.Contains(t, body, "github: rate limited")
	assert.Equal(t, 3, runner.gotMax)
}

func TestSearchShowsFailure(t *testing.T) {
	t.Parallel()
	w, err := New(&stubRunner{err: fmt.Errorf("all providers failed: %w", model.ErrNoSourcesAvailable)}, nil)
	require.NoError(t, err)

	rec := get(t, w.Router(), "/search?q=slack")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no sources available")
}

func TestSearchInput(t *testing.T) {
	t.Parallel()
	w, err := New(&stubRunner{}, nil)
	require.NoError(t, err)

	rec := get(t, w.Router(), "/search?q=+")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = get(t, w.Router(), "/search?q=slack&max=lots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
