// Package scoring applies the fixed security rubric to canonical servers.
package scoring

import (
	"fmt"
	"unicode/utf8"

	"github.com/mcpsek/guardian/internal/model"
)

// Category caps and point values of the rubric
const (
	AuthOAuth2Points = 25
	AuthAPIKeyPoints = 15
	AuthBasicPoints  = 5

	HashPinningPoints   = 15
	SBOMPoints          = 10
	RateLimitingPoints  = 10
	ObservabilityPoints = 10

	CVEPenaltyEach  = -10
	CVEPenaltyFloor = -30

	MinScore = 0
	MaxScore = 100
)

// Score computes the rubric breakdown for a server. Missing evidence always
// takes the absent branch of its rule, so scoring cannot fail.
func Score(s model.CanonicalServer) model.ScoreBreakdown {
	var b model.ScoreBreakdown

	b.Auth = authPoints(s.Auth)
	if b.Auth > 0 {
		b.Reasons = append(b.Reasons, fmt.Sprintf("authentication: %s", s.Auth))
	}

	if s.Evidence.Flag(model.EvidenceHashPinning) {
		b.HashPinning = HashPinningPoints
		b.Reasons = append(b.Reasons, "hash-pinned releases")
	}

	// AI-BOM satisfies the same category
	if s.Evidence.Flag(model.EvidenceSBOM) || s.Evidence.Flag(model.EvidenceAIBOM) {
		b.SBOM = SBOMPoints
		b.Reasons = append(b.Reasons, "publishes SBOM")
	}

	if s.Evidence.Flag(model.EvidenceRateLimiting) {
		b.RateLimiting = RateLimitingPoints
		b.Reasons = append(b.Reasons, "rate limiting")
	}

	if s.Evidence.Flag(model.EvidenceObservability) {
		b.Observability = ObservabilityPoints
		b.Reasons = append(b.Reasons, "observability hooks")
	}

	b.UpdateCadence = cadencePoints(s.Activity)
	if b.UpdateCadence > 0 {
		b.Reasons = append(b.Reasons, fmt.Sprintf("activity level %d/10", s.Activity))
	}

	b.Documentation = documentationPoints(s.Description)
	if b.Documentation > 0 {
		b.Reasons = append(b.Reasons, "documented")
	}

	b.CommunityTrust = trustPoints(len(s.Sources))
	if b.CommunityTrust > 0 {
		b.Reasons = append(b.Reasons, fmt.Sprintf("listed by %d source(s)", len(s.Sources)))
	}

	cves := s.Evidence.List(model.EvidenceCVEs)
	b.CVEPenalty = max(CVEPenaltyFloor, CVEPenaltyEach*len(cves))
	if len(cves) > 0 {
		b.Reasons = append(b.Reasons, fmt.Sprintf("%d known CVE(s)", len(cves)))
	}

	total := b.Auth + b.HashPinning + b.SBOM + b.RateLimiting + b.Observability +
		b.UpdateCadence + b.Documentation + b.CommunityTrust + b.CVEPenalty
	b.Total = max(MinScore, min(MaxScore, total))
	b.Tier = model.TierFor(b.Total)
	return b
}

func authPoints(a model.AuthModel) int {
	switch a {
	case model.AuthOAuth2:
		return AuthOAuth2Points
	case model.AuthAPIKey:
		return AuthAPIKeyPoints
	case model.AuthBasic:
		return AuthBasicPoints
	default:
		return 0
	}
}

func cadencePoints(activity int) int {
	switch {
	case activity >= 8:
		return 10
	case activity >= 5:
		return 6
	case activity >= 2:
		return 3
	default:
		return 0
	}
}

// documentationPoints counts characters, not bytes
func documentationPoints(description string) int {
	n := utf8.RuneCountInString(description)
	switch {
	case n >= 200:
		return 10
	case n >= 50:
		return 5
	default:
		return 0
	}
}

func trustPoints(sources int) int {
	switch {
	case sources >= 3:
		return 10
	case sources == 2:
		return 6
	case sources == 1:
		return 3
	default:
		return 0
	}
}
