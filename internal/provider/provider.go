// Package provider holds the concrete candidate sources: a curated catalog
// and searches against npm, GitHub and the official MCP registry.
package provider

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/mcpsek/guardian/internal/discovery"
)

// Options selects and configures providers
type Options struct {
	// Names lists providers to enable, in registration order.
	Names       []string
	CatalogPath string
	NPMURL      string
	GitHubURL   string
	GitHubToken string
	RegistryURL string
	HTTP        HTTPOptions
	Clock       clock.PassiveClock
}

// Known lists every provider name Build accepts
var Known = []string{"catalog", "npm", "github", "registry"}

// Build creates the providers named in opts
func Build(opts Options, logger *zap.Logger) ([]discovery.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[string]bool)
	providers := make([]discovery.Provider, 0, len(opts.Names))
	for _, raw := range opts.Names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var p discovery.Provider
		switch name {
		case "catalog":
			c, err := LoadCatalog(opts.CatalogPath)
			if err != nil {
				return nil, err
			}
			logger.Info("loaded catalog", zap.Int("entries", c.Len()), zap.String("path", opts.CatalogPath))
			p = c
		case "npm":
			p = NewNPMProvider(opts.NPMURL, opts.HTTP)
		case "github":
			if opts.GitHubToken == "" {
				logger.Warn("github provider has no token, search rate limits will be low")
			}
			p = NewGitHubProvider(opts.GitHubURL, opts.GitHubToken, opts.HTTP, opts.Clock)
		case "registry":
			p = NewRegistryProvider(opts.RegistryURL, opts.HTTP)
		default:
			return nil, fmt.Errorf("unknown provider %q (known: %s)", raw, strings.Join(Known, ", "))
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return providers, nil
}
