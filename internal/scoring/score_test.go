package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcpsek/guardian/internal/model"
)

func TestScoreEmptyServer(t *testing.T) {
	t.Parallel()
	b := Score(model.CanonicalServer{})
	assert.Equal(t, 0, b.Total)
	assert.Equal(t, model.TierPoor, b.Tier)
	assert.Empty(t, b.Reasons)
}

func TestScoreCategories(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		server model.CanonicalServer
		check  func(t *testing.T, b model.ScoreBreakdown)
	}{
		{
			name:   "oauth2",
			server: model.CanonicalServer{Auth: model.AuthOAuth2},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 25, b.Auth) },
		},
		{
			name:   "api key",
			server: model.CanonicalServer{Auth: model.AuthAPIKey},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 15, b.Auth) },
		},
		{
			name:   "basic",
			server: model.CanonicalServer{Auth: model.AuthBasic},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 5, b.Auth) },
		},
		{
			name:   "none",
			server: model.CanonicalServer{Auth: model.AuthNone},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 0, b.Auth) },
		},
		{
			name:   "aibom counts as sbom",
			server: model.CanonicalServer{Evidence: model.Evidence{model.EvidenceAIBOM: "present"}},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 10, b.SBOM) },
		},
		{
			name: "operational flags",
			server: model.CanonicalServer{Evidence: model.Evidence{
				model.EvidenceRateLimiting:  true,
				model.EvidenceObservability: "true",
				model.EvidenceHashPinning:   false,
			}},
			check: func(t *testing.T, b model.ScoreBreakdown) {
				assert.Equal(t, 10, b.RateLimiting)
				assert.Equal(t, 10, b.Observability)
				assert.Equal(t, 0, b.HashPinning)
			},
		},
		{
			name:   "description in runes",
			server: model.CanonicalServer{Description: strings.Repeat("é", 50)},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 5, b.Documentation) },
		},
		{
			name:   "long description",
			server: model.CanonicalServer{Description: strings.Repeat("a", 200)},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 10, b.Documentation) },
		},
		{
			name:   "short description",
			server: model.CanonicalServer{Description: strings.Repeat("a", 49)},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 0, b.Documentation) },
		},
		{
			name:   "three sources",
			server: model.CanonicalServer{Sources: []string{"a", "b", "c", "d"}},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 10, b.CommunityTrust) },
		},
		{
			name:   "one source",
			server: model.CanonicalServer{Sources: []string{"a"}},
			check:  func(t *testing.T, b model.ScoreBreakdown) { assert.Equal(t, 3, b.CommunityTrust) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, Score(tt.server))
		})
	}
}

func TestCadencePoints(t *testing.T) {
	t.Parallel()
	cases := map[int]int{0: 0, 1: 0, 2: 3, 4: 3, 5: 6, 7: 6, 8: 10, 10: 10}
	for activity, want := range cases {
		assert.Equal(t, want, cadencePoints(activity), "activity %d", activity)
	}
}

func TestScoreCVEPenaltyFloor(t *testing.T) {
	t.Parallel()
	one := Score(model.CanonicalServer{
		Auth:     model.AuthOAuth2,
		Evidence: model.Evidence{model.EvidenceCVEs: []string{"CVE-2025-0001"}},
	})
	assert.Equal(t, -10, one.CVEPenalty)
	assert.Equal(t, 15, one.Total)

	many := Score(model.CanonicalServer{
		Auth:     model.AuthOAuth2,
		Evidence: model.Evidence{model.EvidenceCVEs: []any{"a", "b", "c", "d", "e"}},
	})
	assert.Equal(t, -30, many.CVEPenalty)
	assert.Equal(t, 0, many.Total, "total is clamped at zero")
}

func TestScoreClampedToHundred(t *testing.T) {
	t.Parallel()
	b := Score(model.CanonicalServer{
		Auth:        model.AuthOAuth2,
		Description: strings.Repeat("d", 250),
		Sources:     []string{"a", "b", "c"},
		Activity:    10,
		Evidence: model.Evidence{
			model.EvidenceHashPinning:   true,
			model.EvidenceSBOM:          true,
			model.EvidenceRateLimiting:  true,
			model.EvidenceObservability: true,
		},
	})
	assert.Equal(t, 100, b.Total)
	assert.Equal(t, model.TierExcellent, b.Tier)
	assert.Len(t, b.Reasons, 8)
}

func TestScoreMergedDriveServer(t *testing.T) {
	t.Parallel()
	b := Score(model.CanonicalServer{
		Key:     "google-drive-mcp@drive.example.com",
		Auth:    model.AuthOAuth2,
		Sources: []string{"a", "b"},
		Evidence: model.Evidence{
			model.EvidenceAuthModel:   "oauth2",
			model.EvidenceHashPinning: true,
			model.EvidenceSBOM:        true,
		},
	})
	assert.Equal(t, 25, b.Auth)
	assert.Equal(t, 15, b.HashPinning)
	assert.Equal(t, 10, b.SBOM)
	assert.Equal(t, 6, b.CommunityTrust)
	assert.Equal(t, 56, b.Total)
	assert.Equal(t, model.TierFair, b.Tier)
}

func TestScoreIsPure(t *testing.T) {
	t.Parallel()
	s := model.CanonicalServer{
		Auth:     model.AuthAPIKey,
		Sources:  []string{"a"},
		Evidence: model.Evidence{model.EvidenceCVEs: []string{"CVE-1"}},
	}
	assert.Equal(t, Score(s), Score(s))
}
