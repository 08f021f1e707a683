package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"k8s.io/utils/clock"

	"github.com/mcpsek/guardian/internal/model"
)

// DefaultGitHubURL is the public GitHub REST API
const DefaultGitHubURL = "https://api.github.com"

// GitHubProvider searches GitHub repositories for MCP servers
type GitHubProvider struct {
	baseURL string
	token   string
	http    *fetcher
	clock   clock.PassiveClock
}

// NewGitHubProvider creates a new GitHub provider. token may be empty, at the
// cost of a much lower rate limit.
func NewGitHubProvider(baseURL, token string, opts HTTPOptions, clk clock.PassiveClock) *GitHubProvider {
	if baseURL == "" {
		baseURL = DefaultGitHubURL
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &GitHubProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    newFetcher(opts),
		clock:   clk,
	}
}

// Name implements discovery.Provider
func (p *GitHubProvider) Name() string { return "github" }

// FetchCandidates implements discovery.Provider
func (p *GitHubProvider) FetchCandidates(ctx context.Context, query string, limit int) ([]model.RawCandidate, error) {
	perPage := min(max(limit, 1), 100)
	q := query + " mcp in:name,description,topics"
	searchURL := fmt.Sprintf("%s/search/repositories?q=%s&sort=updated&per_page=%d",
		p.baseURL, url.QueryEscape(q), perPage)

	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if p.token != "" {
		headers["Authorization"] = "Bearer " + p.token
	}

	body, err := p.http.get(ctx, searchURL, headers)
	if err != nil {
		return nil, fmt.Errorf("github search: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("github search: invalid JSON response")
	}

	now := p.clock.Now()
	candidates := make([]model.RawCandidate, 0)
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		repoURL := item.Get("html_url").String()
		if repoURL == "" {
			return true
		}
		description := item.Get("description").String()

		var topics []string
		for _, t := range item.Get("topics").Array() {
			topics = append(topics, t.String())
		}

		ev := extractSignals(append([]string{description}, topics...)...)
		ev[model.EvidenceRepository] = repoURL
		ev[model.EvidenceStars] = int(item.Get("stargazers_count").Int())
		if lic := item.Get("license.spdx_id").String(); lic != "" && lic != "NOASSERTION" {
			ev[model.EvidenceLicense] = lic
		}

		archived := item.Get("archived").Bool()
		ev[model.EvidenceArchived] = archived
		if pushed := item.Get("pushed_at").Time(); !pushed.IsZero() {
			ev[model.EvidencePushedAt] = pushed.UTC().Format(time.RFC3339)
			if archived {
				ev[model.EvidenceActivity] = 0
			} else {
				ev[model.EvidenceActivity] = activityFromDays(int(now.Sub(pushed).Hours() / 24))
			}
		}

		candidates = append(candidates, model.RawCandidate{
			Name:        item.Get("name").String(),
			Endpoint:    repoURL,
			Description: description,
			Source:      p.Name(),
			Evidence:    ev,
		})
		return len(candidates) < limit
	})

	return candidates, nil
}
