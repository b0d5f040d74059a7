// Package parser expands a user query into the normalised token variants
// that are looked up in the location index.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/tokenizer"
)

type QueryMode int

const (
	// ModeLoose searches the whole query, each word of two or more
	// characters, and their aliases.
	ModeLoose QueryMode = iota
	// ModeStrict searches the whole query and its direct aliases only.
	ModeStrict
)

func (m QueryMode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "loose"
}

type QueryPlan struct {
	RawQuery   string
	Normalized string
	Mode       QueryMode
	Variants   []string
}

// Empty reports whether the plan has nothing to search.
func (p *QueryPlan) Empty() bool {
	return len(p.Variants) == 0
}

type Parser struct {
	builder *tokenizer.Builder
}

func New(builder *tokenizer.Builder) *Parser {
	return &Parser{builder: builder}
}

// Parse builds the plan for query in the given mode.
func (p *Parser) Parse(query string, mode QueryMode) *QueryPlan {
	plan := &QueryPlan{
		RawQuery:   query,
		Normalized: p.builder.Normalize(query),
		Mode:       mode,
		Variants:   make([]string, 0),
	}
	if plan.Normalized == "" {
		return plan
	}

	variants := map[string]struct{}{plan.Normalized: {}}
	switch mode {
	case ModeStrict:
		for _, a := range p.builder.Aliases().Lookup(plan.Normalized) {
			variants[a] = struct{}{}
		}
	default:
		for _, word := range strings.Fields(plan.Normalized) {
			if len(word) >= 2 {
				variants[word] = struct{}{}
			}
		}
		p.builder.Aliases().Expand(variants)
	}
	plan.Variants = tokenizer.SortedTokens(variants)
	return plan
}

// Loose returns the sorted loose variants of query.
func (p *Parser) Loose(query string) []string {
	return p.Parse(query, ModeLoose).Variants
}

// Strict returns the sorted strict variants of query.
func (p *Parser) Strict(query string) []string {
	return p.Parse(query, ModeStrict).Variants
}

var defaultParser = New(tokenizer.Default())

// BuildLoose returns the loose variants of query under the default
// normaliser and alias table.
func BuildLoose(query string) []string {
	return defaultParser.Loose(query)
}

// BuildStrict returns the strict variants of query under the default
// normaliser and alias table.
func BuildStrict(query string) []string {
	return defaultParser.Strict(query)
}

// Sorted returns the non-empty members of values, deduplicated and sorted.
func Sorted(values []string) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return tokenizer.SortedTokens(set)
}
