package provider

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mcpsek/guardian/internal/model"
)

// DefaultNPMURL is the public npm registry
const DefaultNPMURL = "https://registry.npmjs.org"

// NPMProvider searches the npm registry for MCP server packages
type NPMProvider struct {
	baseURL string
	http    *fetcher
}

// NewNPMProvider creates a new npm provider
func NewNPMProvider(baseURL string, opts HTTPOptions) *NPMProvider {
	if baseURL == "" {
		baseURL = DefaultNPMURL
	}
	return &NPMProvider{baseURL: strings.TrimSuffix(baseURL, "/"), http: newFetcher(opts)}
}

// Name implements discovery.Provider
func (p *NPMProvider) Name() string { return "npm" }

// FetchCandidates implements discovery.Provider
func (p *NPMProvider) FetchCandidates(ctx context.Context, query string, limit int) ([]model.RawCandidate, error) {
	size := min(max(limit, 1), 250)
	searchURL := fmt.Sprintf("%s/-/v1/search?text=%s&size=%d",
		p.baseURL, url.QueryEscape(query+" keywords:mcp"), size)

	body, err := p.http.get(ctx, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("npm search: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("npm search: invalid JSON response")
	}

	candidates := make([]model.RawCandidate, 0)
	gjson.GetBytes(body, "objects").ForEach(func(_, obj gjson.Result) bool {
		pkg := obj.Get("package")
		name := pkg.Get("name").String()
		if name == "" {
			return true
		}
		description := pkg.Get("description").String()

		var keywords []string
		for _, k := range pkg.Get("keywords").Array() {
			keywords = append(keywords, k.String())
		}

		ev := extractSignals(append([]string{description}, keywords...)...)
		ev[model.EvidenceRegistry] = "npm"
		if v := pkg.Get("version").String(); v != "" {
			ev[model.EvidenceVersion] = v
		}

		endpoint := pkg.Get("links.npm").String()
		if repo := normalizeGitHubURL(pkg.Get("links.repository").String()); repo != "" {
			ev[model.EvidenceRepository] = repo
			endpoint = repo
		}
		if endpoint == "" {
			endpoint = "https://www.npmjs.com/package/" + name
		}

		if m := obj.Get("score.detail.maintenance"); m.Exists() {
			ev[model.EvidenceActivity] = int(math.Round(m.Float() * 10))
		}

		candidates = append(candidates, model.RawCandidate{
			Name:        name,
			Endpoint:    endpoint,
			Description: description,
			Source:      p.Name(),
			Evidence:    ev,
		})
		return len(candidates) < limit
	})

	return candidates, nil
}
