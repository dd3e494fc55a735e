package reference

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// IngredientRisk is one entry of the ingredient risk reference document.
// Risk is on the 0-10 scale: 0 = no known harm, 10 = maximum known harm.
type IngredientRisk struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`
	Risk    int      `yaml:"risk"`
}

// AllergenEntry maps ingredient aliases to one canonical allergen.
type AllergenEntry struct {
	Allergen string   `yaml:"allergen"`
	Aliases  []string `yaml:"aliases"`
}

type riskDocument struct {
	Version     string           `yaml:"version"`
	Ingredients []IngredientRisk `yaml:"ingredients"`
}

type allergenDocument struct {
	Version   string          `yaml:"version"`
	Allergens []AllergenEntry `yaml:"allergens"`
}

// Tables is an immutable snapshot of the scoring reference data. It is built
// once and never mutated; updates are published by swapping the whole value
// through a Provider.
type Tables struct {
	version   string
	risks     map[string]int
	allergens []allergenMatcher
}

type allergenMatcher struct {
	name    string
	aliases []string
}

// Build validates the raw reference entries and produces a Tables snapshot.
// Risk values outside [0, 10] are rejected so a bad upstream document can
// never leak out-of-range scores into responses.
func Build(version string, risks []IngredientRisk, allergens []AllergenEntry) (*Tables, error) {
	t := &Tables{
		version: version,
		risks:   make(map[string]int, len(risks)*2),
	}
	for _, r := range risks {
		if r.Risk < 0 || r.Risk > 10 {
			return nil, fmt.Errorf("ingredient %q: risk %d out of range [0,10]", r.Name, r.Risk)
		}
		name := Normalize(r.Name)
		if name == "" {
			return nil, fmt.Errorf("ingredient with blank name in reference data")
		}
		t.risks[name] = r.Risk
		for _, a := range r.Aliases {
			if alias := Normalize(a); alias != "" {
				t.risks[alias] = r.Risk
			}
		}
	}
	for _, e := range allergens {
		if e.Allergen == "" || len(e.Aliases) == 0 {
			return nil, fmt.Errorf("allergen entry %q has no aliases", e.Allergen)
		}
		m := allergenMatcher{name: strings.ToLower(e.Allergen)}
		for _, a := range e.Aliases {
			if alias := Normalize(a); alias != "" {
				m.aliases = append(m.aliases, alias)
			}
		}
		t.allergens = append(t.allergens, m)
	}
	sort.Slice(t.allergens, func(i, j int) bool { return t.allergens[i].name < t.allergens[j].name })
	return t, nil
}

// Version identifies this snapshot of the reference data. Scoring output is
// deterministic for a fixed version.
func (t *Tables) Version() string { return t.version }

// RiskFor looks up the risk score for an ingredient name by canonical name or
// alias. The second return value reports whether the name was matched; the
// caller decides what an unmatched name defaults to.
func (t *Tables) RiskFor(name string) (int, bool) {
	risk, ok := t.risks[Normalize(name)]
	return risk, ok
}

// AllergensFor returns the canonical allergens triggered by an ingredient
// name, in stable (sorted) order. Matching is alias-aware: single-word
// aliases match at word boundaries ("almond" matches "Roasted Almonds" but
// "fish" does not match "Shellfish"), multi-word aliases match as substrings
// of the normalized name.
func (t *Tables) AllergensFor(name string) []string {
	norm := Normalize(name)
	if norm == "" {
		return nil
	}
	words := strings.Fields(norm)
	var hits []string
	for _, m := range t.allergens {
		if m.matches(norm, words) {
			hits = append(hits, m.name)
		}
	}
	return hits
}

func (m allergenMatcher) matches(norm string, words []string) bool {
	for _, alias := range m.aliases {
		if strings.ContainsRune(alias, ' ') {
			if strings.Contains(norm, alias) {
				return true
			}
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, alias) {
				return true
			}
		}
	}
	return false
}

// Normalize canonicalizes an ingredient name for lookup: trimmed, lowercased,
// inner whitespace collapsed.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// Provider publishes the current Tables snapshot. Swap is atomic, so an
// in-flight scoring call keeps the snapshot it started with and never sees a
// half-updated table.
type Provider struct {
	current atomic.Pointer[Tables]
}

// NewProvider creates a provider seeded with an initial snapshot.
func NewProvider(t *Tables) *Provider {
	p := &Provider{}
	p.current.Store(t)
	return p
}

// Current returns the active snapshot.
func (p *Provider) Current() *Tables { return p.current.Load() }

// Swap publishes a new snapshot.
func (p *Provider) Swap(t *Tables) { p.current.Store(t) }
