// Package alias holds the fixed table of place-name abbreviations and
// synonyms consulted during token building and query expansion.
package alias

import "sort"

// Table maps a normalised token to its equivalent normalised tokens. It is
// not symmetric by construction: every direction that should resolve must be
// listed explicitly. A Table is immutable once built.
type Table struct {
	entries map[string][]string
}

var defaultEntries = map[string][]string{
	"nyc":           {"new york", "new york city"},
	"new york city": {"new york", "nyc"},
	"new york":      {"nyc"},
	"dc":            {"washington dc", "washington"},
	"washington dc": {"dc", "washington"},
	"la":            {"los angeles"},
	"sf":            {"san francisco"},
	"uk":            {"united kingdom"},
	"uae":           {"united arab emirates"},
	"us":            {"united states", "usa"},
	"united states": {"us", "usa", "america"},
	"usa":           {"united states", "us"},
	"america":       {"united states", "usa", "us"},
}

// Default returns the built-in alias table.
func Default() Table {
	return New(defaultEntries)
}

// New copies entries into a Table. Keys and values must already be
// normalised.
func New(entries map[string][]string) Table {
	copied := make(map[string][]string, len(entries))
	for key, aliases := range entries {
		copied[key] = append([]string(nil), aliases...)
	}
	return Table{entries: copied}
}

// Lookup returns the aliases registered for token, or nil.
func (t Table) Lookup(token string) []string {
	aliases, ok := t.entries[token]
	if !ok {
		return nil
	}
	return append([]string(nil), aliases...)
}

// Expand adds, in one pass, every alias of every token already in set.
// Aliases of newly added aliases are not followed.
func (t Table) Expand(set map[string]struct{}) {
	seeds := make([]string, 0, len(set))
	for token := range set {
		seeds = append(seeds, token)
	}
	for _, token := range seeds {
		for _, a := range t.entries[token] {
			set[a] = struct{}{}
		}
	}
}

// Close expands set until every alias of every member is itself a member.
func (t Table) Close(set map[string]struct{}) {
	pending := make([]string, 0, len(set))
	for token := range set {
		pending = append(pending, token)
	}
	for len(pending) > 0 {
		token := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		for _, a := range t.entries[token] {
			if _, seen := set[a]; !seen {
				set[a] = struct{}{}
				pending = append(pending, a)
			}
		}
	}
}

// Keys returns the registered tokens in sorted order.
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for key := range t.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered tokens.
func (t Table) Len() int {
	return len(t.entries)
}
