// Package discovery fans a query out to every configured source provider and
// collects whatever comes back inside the time budget.
package discovery

import (
	"context"

	"github.com/mcpsek/guardian/internal/model"
)

// Provider is a pluggable source of candidate servers. Implementations must
// honour the deadline carried by ctx; the orchestrator abandons calls that
// outlive it.
type Provider interface {
	// Name identifies the provider in source lists and error reports.
	Name() string

	// FetchCandidates returns at most limit candidates relevant to query.
	// An empty result with a nil error is a valid answer.
	FetchCandidates(ctx context.Context, query string, limit int) ([]model.RawCandidate, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc struct {
	ID    string
	Fetch func(ctx context.Context, query string, limit int) ([]model.RawCandidate, error)
}

// Name implements Provider
func (f ProviderFunc) Name() string { return f.ID }

// FetchCandidates implements Provider
func (f ProviderFunc) FetchCandidates(ctx context.Context, query string, limit int) ([]model.RawCandidate, error) {
	return f.Fetch(ctx, query, limit)
}
