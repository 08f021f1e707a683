package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Well-known evidence keys reported by providers
const (
	EvidenceAuthModel     = "auth_model"
	EvidenceActivity      = "activity"
	EvidenceHashPinning   = "hash_pinning"
	EvidenceSBOM          = "sbom"
	EvidenceAIBOM         = "aibom"
	EvidenceRateLimiting  = "rate_limiting"
	EvidenceObservability = "observability"
	EvidenceCVEs          = "cves"
	EvidenceCapabilities  = "capabilities"
	EvidenceStars         = "stars"
	EvidenceLicense       = "license"
	EvidenceRepository    = "repository"
	EvidenceRegistry      = "registry"
	EvidenceVersion       = "version"
	EvidenceArchived      = "archived"
	EvidencePushedAt      = "pushed_at"
)

// additiveKeys are unioned on merge instead of replaced
var additiveKeys = map[string]bool{
	EvidenceCapabilities: true,
	EvidenceCVEs:         true,
}

// IsAdditive reports whether values for key accumulate across providers
func IsAdditive(key string) bool {
	return additiveKeys[key]
}

// Evidence is a free-form bag of signals about a server. Values are whatever
// the provider (or a JSON round-trip) produced: bool, string, numbers,
// []string or []any.
type Evidence map[string]any

// Clone returns a copy that shares no slices with e
func (e Evidence) Clone() Evidence {
	if e == nil {
		return nil
	}
	out := make(Evidence, len(e))
	for k, v := range e {
		switch t := v.(type) {
		case []string:
			out[k] = append(make([]string, 0, len(t)), t...)
		case []any:
			out[k] = append(make([]any, 0, len(t)), t...)
		default:
			out[k] = v
		}
	}
	return out
}

// Flag reports whether key holds a truthy value. Missing keys are false.
func (e Evidence) Flag(key string) bool {
	v, ok := e[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err == nil {
			return b
		}
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "y", "present", "on":
			return true
		}
		return false
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []string:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return false
}

// Int returns key as an integer if it holds a number or numeric string
func (e Evidence) Int(key string) (int, bool) {
	v, ok := e[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// String returns key rendered as a string, or "" when absent
func (e Evidence) String(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// List returns key as a list of non-empty strings. A plain string counts as a
// single-element list.
func (e Evidence) List(key string) []string {
	v, ok := e[key]
	if !ok || v == nil {
		return nil
	}
	var out []string
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// UnionStrings merges string sets into a sorted list without duplicates
func UnionStrings(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, list := range lists {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ParseAuthModel maps free-text authentication hints onto an AuthModel
func ParseAuthModel(hint string) AuthModel {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch h {
	case "":
		return AuthUnknown
	case "oauth2", "oauth", "oauth 2.0", "oauth2.0", "openid", "openid connect", "oidc":
		return AuthOAuth2
	case "api_key", "apikey", "api key", "api-key", "x-api-key", "bearer", "token", "static_key":
		return AuthAPIKey
	case "basic", "basic auth", "basic_auth":
		return AuthBasic
	case "none", "no auth", "public", "anonymous":
		return AuthNone
	}
	switch {
	case strings.Contains(h, "oauth"):
		return AuthOAuth2
	case strings.Contains(h, "api key"), strings.Contains(h, "api_key"), strings.Contains(h, "bearer"):
		return AuthAPIKey
	case strings.Contains(h, "basic"):
		return AuthBasic
	}
	return AuthUnknown
}
