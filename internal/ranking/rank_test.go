package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpsek/guardian/internal/model"
)

func scored(key string, total, activity int) Scored {
	return Scored{
		Server: model.CanonicalServer{Key: key, Activity: activity},
		Score:  model.ScoreBreakdown{Total: total, Tier: model.TierFor(total)},
	}
}

func keys(results []model.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Server.Key
	}
	return out
}

func TestRankOrdering(t *testing.T) {
	t.Parallel()
	results, err := Rank([]Scored{
		scored("c", 50, 3),
		scored("a", 70, 1),
		scored("b", 50, 9),
		scored("d", 50, 3),
		scored("e", 10, 10),
	}, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keys(results))
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		if i > 0 {
			assert.LessOrEqual(t, r.Score.Total, results[i-1].Score.Total)
		}
	}
}

func TestRankTruncates(t *testing.T) {
	t.Parallel()
	results, err := Rank([]Scored{scored("a", 1, 0), scored("b", 2, 0), scored("c", 3, 0)}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, keys(results))
}

func TestRankRejectsBadLimit(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, -1} {
		_, err := Rank([]Scored{scored("a", 1, 0)}, n)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	}
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()
	results, err := Rank(nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRankDoesNotReorderInput(t *testing.T) {
	t.Parallel()
	input := []Scored{scored("a", 1, 0), scored("b", 2, 0)}
	_, err := Rank(input, 5)
	require.NoError(t, err)
	assert.Equal(t, "a", input[0].Server.Key)
}
