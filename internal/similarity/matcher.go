// Package similarity resolves scent notes to canonical groups and scores
// the overlap between two note lists.
package similarity

import (
	"sort"
	"strings"
	"sync"
)

// Tier records which lookup resolved a token.
type Tier string

const (
	TierExact     Tier = "exact"
	TierVariant   Tier = "variant"
	TierSubstring Tier = "substring"
	TierNone      Tier = "none"
)

// Expansion is the result of resolving one token.
type Expansion struct {
	Token     string   `json:"token"`
	Tier      Tier     `json:"tier"`
	Canonical string   `json:"canonical,omitempty"`
	Tokens    []string `json:"tokens"`
}

// Result is the overlap between two note lists.
type Result struct {
	Common []string `json:"common"`
	Count  int      `json:"count"`
}

// Matcher holds the ordered synonym table. It is safe for concurrent use.
type Matcher struct {
	mu     sync.RWMutex
	groups []Group
}

// NewMatcher creates a matcher over the given groups, or the default table
// when groups is nil.
func NewMatcher(groups []Group) *Matcher {
	if groups == nil {
		groups = DefaultGroups()
	}
	m := &Matcher{}
	for _, g := range groups {
		m.groups = append(m.groups, normalizeGroup(g))
	}
	return m
}

// Groups returns a copy of the current table.
func (m *Matcher) Groups() []Group {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Group, len(m.groups))
	for i, g := range m.groups {
		out[i] = Group{Canonical: g.Canonical, Variants: append([]string(nil), g.Variants...)}
	}
	return out
}

// AddGroup adds a canonical group. An existing canonical key is replaced in
// place and keeps its lookup position.
func (m *Matcher) AddGroup(canonical string, variants []string) {
	g := normalizeGroup(Group{Canonical: canonical, Variants: variants})
	if g.Canonical == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.groups {
		if m.groups[i].Canonical == g.Canonical {
			m.groups[i] = g
			return
		}
	}
	m.groups = append(m.groups, g)
}

// Expand resolves a token to its canonical group. Lookups are tried in order:
// exact canonical key, variant membership, then substring containment in
// either direction against any variant. Substring matching is loose on
// purpose and over-matches short tokens ("lime" inside "limetta").
func (m *Matcher) Expand(token string) Expansion {
	norm := normalize(token)
	if norm == "" {
		return Expansion{Token: token, Tier: TierNone}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.groups {
		if g.Canonical == norm {
			return expansion(token, TierExact, g)
		}
	}

	for _, g := range m.groups {
		for _, v := range g.Variants {
			if v == norm {
				return expansion(token, TierVariant, g)
			}
		}
	}

	for _, g := range m.groups {
		for _, v := range g.Variants {
			if v == "" {
				continue
			}
			if strings.Contains(norm, v) || strings.Contains(v, norm) {
				return expansion(token, TierSubstring, g)
			}
		}
	}

	return Expansion{Token: token, Tier: TierNone, Tokens: []string{norm}}
}

// Similarity expands both lists, intersects the expansions case-insensitively
// and maps every common token back to its canonical key.
func (m *Matcher) Similarity(a, b []string) Result {
	left := m.expandAll(a)
	right := m.expandAll(b)

	seen := make(map[string]struct{})
	var common []string
	for token := range left {
		if _, ok := right[token]; !ok {
			continue
		}
		canonical := m.canonicalOf(token)
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		common = append(common, canonical)
	}

	sort.Strings(common)
	if common == nil {
		common = []string{}
	}

	return Result{Common: common, Count: len(common)}
}

func (m *Matcher) expandAll(tokens []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokens {
		for _, e := range m.Expand(t).Tokens {
			set[e] = struct{}{}
		}
	}
	return set
}

// canonicalOf returns the first canonical key whose key or variants equal
// token, or the token itself.
func (m *Matcher) canonicalOf(token string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.groups {
		if g.Canonical == token {
			return g.Canonical
		}
		for _, v := range g.Variants {
			if v == token {
				return g.Canonical
			}
		}
	}
	return token
}

func expansion(token string, tier Tier, g Group) Expansion {
	tokens := make([]string, 0, len(g.Variants)+1)
	tokens = append(tokens, g.Canonical)
	tokens = append(tokens, g.Variants...)
	return Expansion{
		Token:     token,
		Tier:      tier,
		Canonical: g.Canonical,
		Tokens:    tokens,
	}
}

func normalizeGroup(g Group) Group {
	out := Group{Canonical: normalize(g.Canonical)}
	for _, v := range g.Variants {
		if n := normalize(v); n != "" {
			out.Variants = append(out.Variants, n)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
