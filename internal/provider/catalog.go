package provider

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/mcpsek/guardian/internal/fingerprint"
	"github.com/mcpsek/guardian/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogEntry is one curated server
type CatalogEntry struct {
	Name         string          `yaml:"name"`
	Endpoint     string          `yaml:"endpoint"`
	Description  string          `yaml:"description"`
	Publisher    string          `yaml:"publisher"`
	AuthModel    string          `yaml:"auth_model"`
	Activity     int             `yaml:"activity"`
	Capabilities []string        `yaml:"capabilities"`
	Security     map[string]bool `yaml:"security"`
	CVEs         []string        `yaml:"cves"`
}

type catalogFile struct {
	Servers []CatalogEntry `yaml:"servers"`
}

// stopwords never count as a match on their own
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "for": true,
	"to": true, "of": true, "with": true, "in": true, "on": true,
	"agent": true, "server": true, "servers": true, "mcp": true, "tool": true, "tools": true,
}

// CatalogProvider matches queries against a static list of servers
type CatalogProvider struct {
	entries []CatalogEntry
	index   []map[string]bool
}

// NewCatalogProvider builds a provider over entries
func NewCatalogProvider(entries []CatalogEntry) *CatalogProvider {
	p := &CatalogProvider{
		entries: entries,
		index:   make([]map[string]bool, len(entries)),
	}
	for i, e := range entries {
		terms := make(map[string]bool)
		text := strings.Join(append([]string{e.Name, e.Description}, e.Capabilities...), " ")
		for _, t := range tokenize(text) {
			terms[t] = true
		}
		p.index[i] = terms
	}
	return p
}

// LoadCatalog reads a catalog file, or the embedded catalog when path is empty
func LoadCatalog(path string) (*CatalogProvider, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
	}
	entries, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	return NewCatalogProvider(entries), nil
}

// ParseCatalog decodes catalog YAML
func ParseCatalog(data []byte) ([]CatalogEntry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, e := range f.Servers {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("parse catalog: entry %d has no name", i)
		}
	}
	return f.Servers, nil
}

// Name implements discovery.Provider
func (p *CatalogProvider) Name() string { return "catalog" }

// Len returns the number of catalog entries
func (p *CatalogProvider) Len() int { return len(p.entries) }

// FetchCandidates implements discovery.Provider. Entries are ordered by the
// number of query terms they match, then by name.
func (p *CatalogProvider) FetchCandidates(ctx context.Context, query string, limit int) ([]model.RawCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var terms []string
	for _, t := range tokenize(query) {
		if !stopwords[t] {
			terms = append(terms, t)
		}
	}

	type hit struct {
		entry int
		score int
	}
	var hits []hit
	for i, idx := range p.index {
		score := 0
		for _, t := range terms {
			if idx[t] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{entry: i, score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return p.entries[hits[i].entry].Name < p.entries[hits[j].entry].Name
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	candidates := make([]model.RawCandidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, p.entries[h.entry].candidate(p.Name()))
	}
	return candidates, nil
}

func (e CatalogEntry) candidate(source string) model.RawCandidate {
	ev := model.Evidence{model.EvidenceActivity: e.Activity}
	if e.AuthModel != "" {
		ev[model.EvidenceAuthModel] = e.AuthModel
	}
	if len(e.Capabilities) > 0 {
		ev[model.EvidenceCapabilities] = append([]string(nil), e.Capabilities...)
	}
	if len(e.CVEs) > 0 {
		ev[model.EvidenceCVEs] = append([]string(nil), e.CVEs...)
	}
	if e.Publisher != "" {
		ev["publisher"] = e.Publisher
	}
	for flag, on := range e.Security {
		if on {
			ev[flag] = true
		}
	}
	return model.RawCandidate{
		Name:        e.Name,
		Endpoint:    e.Endpoint,
		Description: e.Description,
		Source:      source,
		Evidence:    ev,
	}
}

// tokenize splits text into normalized terms with a trailing plural "s"
// removed, so "operations" matches "operation"
func tokenize(text string) []string {
	fields := strings.FieldsFunc(fingerprint.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = strings.TrimSuffix(f, "s")
		}
		out = append(out, f)
	}
	return out
}
