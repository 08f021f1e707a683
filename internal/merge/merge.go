// Package merge collapses raw provider records that describe the same logical
// server into canonical records.
//
// Two candidates belong to the same server when their normalized names match
// OR their endpoint identities match. Servers republished under a renamed
// alias collapse into one record; unrelated servers sharing a generic name do
// too. On code-hosting and package-registry hosts the identity includes the
// owner/repo or package path, since the host alone names thousands of servers.
package merge

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mcpsek/guardian/internal/model"
)

const (
	minActivity = 0
	maxActivity = 10
)

// Merge groups candidates by identity and returns one canonical server per
// group, sorted by identity key. The output does not depend on input order.
func Merge(candidates []model.RawCandidate) []model.CanonicalServer {
	if len(candidates) == 0 {
		return []model.CanonicalServer{}
	}

	sorted := make([]model.RawCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Endpoint != b.Endpoint {
			return a.Endpoint < b.Endpoint
		}
		return a.Description < b.Description
	})

	groups := group(sorted)

	servers := make([]model.CanonicalServer, 0, len(groups))
	for _, members := range groups {
		servers = append(servers, canonicalize(members))
	}
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].Key < servers[j].Key
	})
	return servers
}

// group partitions candidates with a union-find over name and endpoint keys.
// Groups keep the candidates in sorted order.
func group(sorted []model.RawCandidate) [][]model.RawCandidate {
	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// Lower index wins so roots stay stable for a given sorted input.
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	byName := make(map[string]int)
	byEndpoint := make(map[string]int)
	for i, c := range sorted {
		if name := NormalizeName(c.Name); name != "" {
			if j, ok := byName[name]; ok {
				union(i, j)
			} else {
				byName[name] = i
			}
		}
		if id := EndpointIdentity(c.Endpoint); id != "" {
			if j, ok := byEndpoint[id]; ok {
				union(i, j)
			} else {
				byEndpoint[id] = i
			}
		}
	}

	index := make(map[int]int)
	groups := make([][]model.RawCandidate, 0)
	for i, c := range sorted {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], c)
	}
	return groups
}

// canonicalize folds one group of candidates into a canonical server
func canonicalize(members []model.RawCandidate) model.CanonicalServer {
	var (
		name, description, identity string
		sources                     []string
		evidence                    = model.Evidence{}
		additive                    = make(map[string][]string)
	)

	for _, c := range members {
		name = longer(name, strings.TrimSpace(c.Name))
		description = longer(description, strings.TrimSpace(c.Description))
		if id := EndpointIdentity(c.Endpoint); id != "" && (identity == "" || id < identity) {
			identity = id
		}
		if c.Source != "" {
			sources = append(sources, c.Source)
		}

		keys := make([]string, 0, len(c.Evidence))
		for k := range c.Evidence {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := c.Evidence[k]
			if model.IsAdditive(k) {
				additive[k] = append(additive[k], model.Evidence{k: v}.List(k)...)
				continue
			}
			if v == nil {
				continue
			}
			// Whole-value replacement: later candidates in sorted order win.
			evidence[k] = model.Evidence{k: v}.Clone()[k]
		}
	}
	for k, values := range additive {
		evidence[k] = model.UnionStrings(values)
	}

	endpoint := ""
	for _, c := range members {
		if identity != "" && EndpointIdentity(c.Endpoint) == identity {
			endpoint = strings.TrimSpace(c.Endpoint)
			break
		}
	}

	key := NormalizeName(name)
	if identity != "" {
		if key == "" {
			key = identity
		} else {
			key = key + "@" + identity
		}
	}

	activity, _ := evidence.Int(model.EvidenceActivity)
	activity = max(minActivity, min(maxActivity, activity))

	return model.CanonicalServer{
		Key:         key,
		Name:        name,
		Description: description,
		Endpoint:    endpoint,
		Sources:     model.UnionStrings(sources),
		Evidence:    evidence,
		Activity:    activity,
		Auth:        model.ParseAuthModel(evidence.String(model.EvidenceAuthModel)),
	}
}

// longer returns the longer of two strings, breaking ties lexicographically
func longer(current, candidate string) string {
	cl, nl := utf8.RuneCountInString(current), utf8.RuneCountInString(candidate)
	switch {
	case nl > cl:
		return candidate
	case nl == cl && candidate != "" && candidate < current:
		return candidate
	}
	return current
}

// NormalizeName canonicalizes a provider-local server name
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '_' || r == '\t' || r == '-'
	})
	return strings.Join(fields, "-")
}

// EndpointHost extracts the lower-cased host of an endpoint URI. Bare hosts
// and scheme-less URIs are accepted; a leading "www." is dropped.
func EndpointHost(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// sharedHosts serve many unrelated servers; the first path segments identify
// the server on them
var sharedHosts = map[string]bool{
	"github.com":     true,
	"gitlab.com":     true,
	"bitbucket.org":  true,
	"codeberg.org":   true,
	"npmjs.com":      true,
	"npmjs.org":      true,
	"pypi.org":       true,
	"hub.docker.com": true,
	"crates.io":      true,
	"pkg.go.dev":     true,
}

// packageHosts name a server by a single path segment
var packageHosts = map[string]bool{
	"npmjs.com": true,
	"npmjs.org": true,
	"pypi.org":  true,
	"crates.io": true,
}

// registryPrefixes are path segments that precede a package name
var registryPrefixes = map[string]bool{
	"package": true, "packages": true, "project": true, "crates": true, "r": true, "_": true,
}

// EndpointIdentity returns the part of an endpoint that identifies a single
// server. It is the host for dedicated hosts. On shared code-hosting and
// registry hosts it is host plus owner/repo or package name, and empty when
// the path does not name one.
func EndpointIdentity(endpoint string) string {
	host := EndpointHost(endpoint)
	if host == "" || !sharedHosts[host] {
		return host
	}

	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}

	var segments []string
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) > 0 && registryPrefixes[segments[0]] {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return ""
	}

	// owner/repo on forges, @scope/name on npm, a bare name elsewhere
	n := 2
	if packageHosts[host] && !strings.HasPrefix(segments[0], "@") {
		n = 1
	}
	n = min(n, len(segments))
	segments = segments[:n]
	segments[n-1] = strings.TrimSuffix(segments[n-1], ".git")
	return host + "/" + strings.Join(segments, "/")
}
