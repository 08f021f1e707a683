// Package ranking orders scored servers into the final response.
package ranking

import (
	"fmt"
	"sort"

	"github.com/mcpsek/guardian/internal/model"
)

// Scored pairs a canonical server with its rubric breakdown
type Scored struct {
	Server model.CanonicalServer
	Score  model.ScoreBreakdown
}

// Rank sorts by total score descending, then activity descending, then
// identity key ascending, assigns 1-based ranks and truncates to maxResults.
func Rank(items []Scored, maxResults int) ([]model.RankedResult, error) {
	if maxResults < 1 {
		return nil, fmt.Errorf("%w: max_results must be at least 1, got %d", model.ErrInvalidArgument, maxResults)
	}

	sorted := make([]Scored, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score.Total != b.Score.Total {
			return a.Score.Total > b.Score.Total
		}
		if a.Server.Activity != b.Server.Activity {
			return a.Server.Activity > b.Server.Activity
		}
		return a.Server.Key < b.Server.Key
	})

	n := min(len(sorted), maxResults)
	results := make([]model.RankedResult, n)
	for i := range n {
		results[i] = model.RankedResult{
			Rank:   i + 1,
			Server: sorted[i].Server,
			Score:  sorted[i].Score,
		}
	}
	return results, nil
}
