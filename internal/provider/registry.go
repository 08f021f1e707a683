package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mcpsek/guardian/internal/model"
)

// DefaultRegistryURL is the official MCP registry
const DefaultRegistryURL = "https://registry.modelcontextprotocol.io"

// RegistryProvider queries the official MCP registry
type RegistryProvider struct {
	baseURL string
	http    *fetcher
}

// NewRegistryProvider creates a new registry provider
func NewRegistryProvider(baseURL string, opts HTTPOptions) *RegistryProvider {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	return &RegistryProvider{baseURL: strings.TrimSuffix(baseURL, "/"), http: newFetcher(opts)}
}

// Name implements discovery.Provider
func (p *RegistryProvider) Name() string { return "registry" }

// FetchCandidates implements discovery.Provider
func (p *RegistryProvider) FetchCandidates(ctx context.Context, query string, limit int) ([]model.RawCandidate, error) {
	searchURL := fmt.Sprintf("%s/v0/servers?search=%s&limit=%d",
		p.baseURL, url.QueryEscape(query), min(max(limit, 1), 100))

	body, err := p.http.get(ctx, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("registry search: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("registry search: invalid JSON response")
	}

	candidates := make([]model.RawCandidate, 0)
	gjson.GetBytes(body, "servers").ForEach(func(_, item gjson.Result) bool {
		// Newer registry versions wrap each record in a "server" object.
		srv := item.Get("server")
		if !srv.Exists() {
			srv = item
		}
		name := srv.Get("name").String()
		if name == "" {
			return true
		}
		description := srv.Get("description").String()

		repo := srv.Get("repository.url").String()
		if r := srv.Get("repository"); repo == "" && r.Type == gjson.String {
			repo = r.String()
		}
		repo = normalizeGitHubURL(repo)

		endpoint := srv.Get("remotes.0.url").String()
		if endpoint == "" {
			endpoint = repo
		}
		if endpoint == "" {
			return true
		}

		ev := extractSignals(description)
		ev[model.EvidenceRegistry] = "mcp-registry"
		if repo != "" {
			ev[model.EvidenceRepository] = repo
		}
		version := srv.Get("version").String()
		if version == "" {
			version = srv.Get("version_detail.version").String()
		}
		if version != "" {
			ev[model.EvidenceVersion] = version
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
