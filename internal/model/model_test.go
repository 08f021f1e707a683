package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		total int
		want  Tier
	}{
		{100, TierExcellent},
		{80, TierExcellent},
		{79, TierGood},
		{60, TierGood},
		{59, TierFair},
		{40, TierFair},
		{39, TierPoor},
		{0, TierPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.total), "total %d", tt.total)
	}
}

func TestEvidenceAccessors(t *testing.T) {
	t.Parallel()
	ev := Evidence{
		"hash_pinning":  true,
		"sbom":          "yes",
		"observability": "false",
		"activity":      float64(7),
		"stars":         "42",
		"capabilities":  []any{"read", " ", "write"},
		"cves":          []string{"CVE-2024-1"},
		"license":       "MIT",
	}

	assert.True(t, ev.Flag("hash_pinning"))
	assert.True(t, ev.Flag("sbom"))
	assert.False(t, ev.Flag("observability"))
	assert.False(t, ev.Flag("rate_limiting"))

	n, ok := ev.Int("activity")
	assert.True(t, ok)
	assert.Equal(t, 7, n)
	n, ok = ev.Int("stars")
	assert.True(t, ok)
	assert.Equal(t, 42, n)
	_, ok = ev.Int("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"read", "write"}, ev.List("capabilities"))
	assert.Equal(t, []string{"CVE-2024-1"}, ev.List("cves"))
	assert.Equal(t, []string{"MIT"}, ev.List("license"))
	assert.Nil(t, ev.List("missing"))
	assert.Equal(t, "MIT", ev.String("license"))
	assert.Equal(t, "", ev.String("missing"))
}

func TestEvidenceCloneIsDeep(t *testing.T) {
	t.Parallel()
	ev := Evidence{"capabilities": []string{"a", "b"}}
	cp := ev.Clone()
	cp["capabilities"].([]string)[0] = "z"
	assert.Equal(t, "a", ev["capabilities"].([]string)[0])
	assert.Nil(t, Evidence(nil).Clone())
}

func TestParseAuthModel(t *testing.T) {
	t.Parallel()
	tests := map[string]AuthModel{
		"oauth2":              AuthOAuth2,
		"OAuth":               AuthOAuth2,
		"OAuth 2.0 with PKCE": AuthOAuth2,
		"api_key":             AuthAPIKey,
		"Bearer":              AuthAPIKey,
		"basic":               AuthBasic,
		"none":                AuthNone,
		"public":              AuthNone,
		"":                    AuthUnknown,
		"mtls":                AuthUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseAuthModel(in), "input %q", in)
	}
}

func TestUnionStrings(t *testing.T) {
	t.Parallel()
	got := UnionStrings([]string{"b", "a"}, []string{"a", "", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, []string{}, UnionStrings())
}

func TestCacheEntryExpiredAndClone(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := &CacheEntry{
		Fingerprint: "fp",
		Results: []RankedResult{{
			Rank:   1,
			Server: CanonicalServer{Key: "k", Sources: []string{"a"}},
			Score:  ScoreBreakdown{Reasons: []string{"r"}},
		}},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	assert.False(t, entry.Expired(now))
	assert.False(t, entry.Expired(now.Add(time.Hour)))
	assert.True(t, entry.Expired(now.Add(time.Hour+time.Nanosecond)))

	cp := entry.Clone()
	require.NotNil(t, cp)
	cp.Results[0].Server.Sources[0] = "mutated"
	cp.Results[0].Score.Reasons[0] = "mutated"
	assert.Equal(t, "a", entry.Results[0].Server.Sources[0])
	assert.Equal(t, "r", entry.Results[0].Score.Reasons[0])
}

func TestSourceErrorUnwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := error(&SourceError{Source: "npm", Reason: "boom", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "source npm: boom", err.Error())

	var se *SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "npm", se.Source)
}
