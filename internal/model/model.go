package model

import (
	"time"

	"github.com/google/uuid"
)

// RawCandidate is one provider's view of one server. It only lives for the
// duration of a single pipeline run.
type RawCandidate struct {
	Name        string   `json:"name"`
	Endpoint    string   `json:"endpoint"`
	Description string   `json:"description,omitempty"`
	Source      string   `json:"source"`
	Evidence    Evidence `json:"evidence,omitempty"`
}

// AuthModel is the authentication scheme a server expects from its clients
type AuthModel string

const (
	AuthOAuth2  AuthModel = "oauth2"
	AuthAPIKey  AuthModel = "api_key"
	AuthBasic   AuthModel = "basic"
	AuthNone    AuthModel = "none"
	AuthUnknown AuthModel = "unknown"
)

// CanonicalServer is the merged, de-duplicated view of a logical server
type CanonicalServer struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Sources     []string  `json:"sources"`
	Evidence    Evidence  `json:"evidence,omitempty"`
	Activity    int       `json:"activity"`
	Auth        AuthModel `json:"auth_model"`
}

// Tier is the coarse recommendation label derived from a total score
type Tier string

const (
	TierExcellent Tier = "EXCELLENT"
	TierGood      Tier = "GOOD"
	TierFair      Tier = "FAIR"
	TierPoor      Tier = "POOR"
)

// TierFor maps a clamped total score onto its recommendation tier
func TierFor(total int) Tier {
	switch {
	case total >= 80:
		return TierExcellent
	case total >= 60:
		return TierGood
	case total >= 40:
		return TierFair
	default:
		return TierPoor
	}
}

// ScoreBreakdown holds the per-category contributions of the security rubric
type ScoreBreakdown struct {
	Auth           int      `json:"auth"`
	HashPinning    int      `json:"hash_pinning"`
	SBOM           int      `json:"sbom"`
	RateLimiting   int      `json:"rate_limiting"`
	Observability  int      `json:"observability"`
	UpdateCadence  int      `json:"update_cadence"`
	Documentation  int      `json:"documentation"`
	CommunityTrust int      `json:"community_trust"`
	CVEPenalty     int      `json:"cve_penalty"`
	Total          int      `json:"total"`
	Tier           Tier     `json:"tier"`
	Reasons        []string `json:"reasons,omitempty"`
}

// RankedResult is a scored server at its final position
type RankedResult struct {
	Rank   int             `json:"rank"`
	Server CanonicalServer `json:"server"`
	Score  ScoreBreakdown  `json:"score"`
}

// CacheEntry is a ranked result set stored under a query fingerprint
type CacheEntry struct {
	Fingerprint string         `json:"fingerprint"`
	Results     []RankedResult `json:"results"`
	TotalFound  int            `json:"total_found"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// Expired reports whether the entry must no longer be served at now
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Clone returns a deep copy of the entry
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Results = CloneResults(e.Results)
	return &out
}

// CloneResults deep-copies a ranked result slice
func CloneResults(in []RankedResult) []RankedResult {
	if in == nil {
		return nil
	}
	out := make([]RankedResult, len(in))
	for i, r := range in {
		r.Server.Sources = cloneStrings(r.Server.Sources)
		r.Server.Evidence = r.Server.Evidence.Clone()
		r.Score.Reasons = cloneStrings(r.Score.Reasons)
		out[i] = r
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

// RunStatus is the lifecycle state of a pipeline run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the audit record of a single pipeline invocation
type RunRecord struct {
	ID          uuid.UUID  `json:"id"`
	Query       string     `json:"query"`
	MaxResults  int        `json:"max_results"`
	Fingerprint string     `json:"fingerprint"`
	Status      RunStatus  `json:"status"`
	ResultRef   *string    `json:"result_ref,omitempty"`
	ResultCount int        `json:"result_count"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
