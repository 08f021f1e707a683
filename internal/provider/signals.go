package provider

import (
	"regexp"
	"strings"

	"github.com/mcpsek/guardian/internal/model"
)

var capabilityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(calendar|scheduling|appointment)\b`),
	regexp.MustCompile(`\b(email|mail|smtp|imap)\b`),
	regexp.MustCompile(`\b(webscraping|scraping|crawling|extraction)\b`),
	regexp.MustCompile(`\b(database|sql|nosql|storage)\b`),
	regexp.MustCompile(`\b(file|files|document|pdf|image)\b`),
	regexp.MustCompile(`\b(api|rest|graphql|rpc)\b`),
	regexp.MustCompile(`\b(notification|alert|push|sms)\b`),
	regexp.MustCompile(`\b(analytics|metrics|logging|monitoring)\b`),
	regexp.MustCompile(`\b(search|indexing)\b`),
	regexp.MustCompile(`\b(messaging|chat)\b`),
}

var cvePattern = regexp.MustCompile(`(?i)\bcve-\d{4}-\d{4,}\b`)

// securityTerms maps evidence flags to the phrases that imply them
var securityTerms = map[string][]string{
	model.EvidenceHashPinning:   {"checksum", "sha256", "hash-pinned", "hash pinned", "pinned digest", "sigstore"},
	model.EvidenceSBOM:          {"sbom", "bill of materials", "cyclonedx", "spdx"},
	model.EvidenceRateLimiting:  {"rate limit", "rate-limit", "throttl", "quota"},
	model.EvidenceObservability: {"opentelemetry", "observability", "tracing", "prometheus", "structured logging"},
}

// authHints are checked in order; the first hit wins
var authHints = []struct {
	model model.AuthModel
	terms []string
}{
	{model.AuthOAuth2, []string{"oauth", "openid connect", "oidc"}},
	{model.AuthAPIKey, []string{"api key", "api-key", "apikey", "x-api-key", "bearer token", "access token"}},
	{model.AuthBasic, []string{"basic auth", "username and password", "username/password"}},
	{model.AuthNone, []string{"no auth", "no authentication", "anonymous access"}},
}

// extractSignals derives evidence from free text such as descriptions,
// keywords and topics. Only positive findings are recorded.
func extractSignals(texts ...string) model.Evidence {
	doc := strings.ToLower(strings.Join(texts, " "))
	ev := model.Evidence{}

	var caps []string
	for _, re := range capabilityPatterns {
		caps = append(caps, re.FindAllString(doc, -1)...)
	}
	if len(caps) > 0 {
		ev[model.EvidenceCapabilities] = model.UnionStrings(caps)
	}

	for flag, terms := range securityTerms {
		if containsAny(doc, terms) {
			ev[flag] = true
		}
	}

	for _, hint := range authHints {
		if containsAny(doc, hint.terms) {
			ev[model.EvidenceAuthModel] = string(hint.model)
			break
		}
	}

	if cves := cvePattern.FindAllString(doc, -1); len(cves) > 0 {
		for i := range cves {
			cves[i] = strings.ToUpper(cves[i])
		}
		ev[model.EvidenceCVEs] = model.UnionStrings(cves)
	}
	return ev
}

func containsAny(doc string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(doc, t) {
			return true
		}
	}
	return false
}

// activityFromDays maps the age of the last push onto the 0-10 activity scale
func activityFromDays(days int) int {
	switch {
	case days < 30:
		return 9
	case days < 90:
		return 7
	case days < 180:
		return 5
	case days < 365:
		return 3
	default:
		return 1
	}
}
