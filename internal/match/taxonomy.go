// Package match implements the deterministic matching core: the industry
// taxonomy expander, the weighted scorers and the two-phase matcher.
package match

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Taxonomy relates broad industry categories to alias terms so that
// lexically different labels ("film", "entertainment finance") can be
// recognised as thematically related. Pure lookups, no external calls.
type Taxonomy struct {
	categories map[string][]string
}

// defaultCategories is the built-in category table. Aliases are matched
// case-insensitively with whitespace normalisation and symmetric substring
// containment, so "construction-tech" hits the "construction" category.
var defaultCategories = map[string][]string{
	"fintech":       {"finance", "financial services", "payments", "banking", "insurtech", "lending", "wealth management", "entertainment finance"},
	"real estate":   {"proptech", "property technology", "housing", "commercial real estate", "built world", "construction"},
	"entertainment": {"film", "media", "music", "gaming", "entertainment finance", "streaming", "content creation"},
	"construction":  {"construction tech", "contech", "infrastructure", "built world", "real estate development"},
	"healthcare":    {"health tech", "digital health", "biotech", "medical devices", "life sciences", "wellness"},
	"ai":            {"artificial intelligence", "machine learning", "deep learning", "generative ai", "computer vision", "nlp"},
	"climate":       {"climate tech", "clean energy", "sustainability", "renewables", "carbon markets", "greentech"},
	"consumer":      {"consumer goods", "d2c", "direct to consumer", "ecommerce", "retail", "marketplace"},
	"logistics":     {"supply chain", "freight", "shipping", "last mile delivery", "mobility", "transportation"},
	"cybersecurity": {"security", "infosec", "identity management", "privacy", "fraud prevention"},
	"edtech":        {"education", "learning platforms", "corporate training", "upskilling"},
	"agtech":        {"agriculture", "farming", "food tech", "foodtech", "vertical farming"},
}

// NewTaxonomy builds a taxonomy from the given category table. Passing nil
// uses the built-in default table.
func NewTaxonomy(categories map[string][]string) *Taxonomy {
	if categories == nil {
		categories = defaultCategories
	}
	return &Taxonomy{categories: categories}
}

// LoadTaxonomyFile reads a YAML category table (category -> alias list) and
// returns a taxonomy built from it.
func LoadTaxonomyFile(path string) (*Taxonomy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=taxonomy.load: %w", err)
	}
	var categories map[string][]string
	if err := yaml.Unmarshal(b, &categories); err != nil {
		return nil, fmt.Errorf("op=taxonomy.parse: %w", err)
	}
	return NewTaxonomy(categories), nil
}

// normalize lowercases and collapses interior whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// termMatches reports whether two normalised terms are equal or one contains
// the other. The symmetric containment is deliberate: sparse CRM labels are
// frequently truncations or elaborations of each other.
func termMatches(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// matchesCategory reports whether label matches the category name or any of
// its aliases.
func (t *Taxonomy) matchesCategory(label, category string) bool {
	l := normalize(label)
	if l == "" {
		return false
	}
	if termMatches(l, normalize(category)) {
		return true
	}
	for _, alias := range t.categories[category] {
		if termMatches(l, normalize(alias)) {
			return true
		}
	}
	return false
}

// Categories returns the sorted set of categories the label matches.
func (t *Taxonomy) Categories(label string) []string {
	var out []string
	for cat := range t.categories {
		if t.matchesCategory(label, cat) {
			out = append(out, cat)
		}
	}
	sort.Strings(out)
	return out
}

// Related reports whether two labels independently match a common category.
// The labels need not share any literal term; this is what relates "film"
// to "entertainment finance". The relation is symmetric. The lowest-sorting
// common category is returned so annotations are deterministic.
func (t *Taxonomy) Related(a, b string) (string, bool) {
	for _, cat := range t.sortedCategories() {
		if t.matchesCategory(a, cat) && t.matchesCategory(b, cat) {
			return cat, true
		}
	}
	return "", false
}

func (t *Taxonomy) sortedCategories() []string {
	out := make([]string, 0, len(t.categories))
	for cat := range t.categories {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}
