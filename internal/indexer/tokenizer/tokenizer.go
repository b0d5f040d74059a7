// Package tokenizer derives the exact-match tokens a location string can be
// found under. A comma-separated location such as
// "Madison Square Garden, New York City, New York, United States" yields its
// individual parts, the whole string, every trailing suffix chain, every
// adjacent pair, and their aliases.
package tokenizer

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/alias"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/normalizer"
)

// Builder turns location strings into token sets.
type Builder struct {
	pipeline normalizer.Pipeline
	aliases  alias.Table
}

// NewBuilder creates a Builder using the given normalisation pipeline and
// alias table.
func NewBuilder(pipeline normalizer.Pipeline, aliases alias.Table) *Builder {
	return &Builder{pipeline: pipeline, aliases: aliases}
}

// Default returns a Builder over the default pipeline and alias table.
func Default() *Builder {
	return NewBuilder(normalizer.Default(), alias.Default())
}

// Normalize exposes the Builder's normalisation pipeline.
func (b *Builder) Normalize(value string) string {
	return b.pipeline.Normalize(value)
}

// Aliases returns the Builder's alias table.
func (b *Builder) Aliases() alias.Table {
	return b.aliases
}

// Build returns the sorted token set for location. The set is empty when no
// comma-separated part survives normalisation.
func (b *Builder) Build(location string) []string {
	return SortedTokens(b.BuildSet(location))
}

// BuildSet is Build without the final sort.
func (b *Builder) BuildSet(location string) map[string]struct{} {
	parts := b.Parts(location)
	if len(parts) == 0 {
		return map[string]struct{}{}
	}

	tokens := make(map[string]struct{}, 3*len(parts)+1)
	for _, part := range parts {
		tokens[part] = struct{}{}
	}
	tokens[b.pipeline.Normalize(location)] = struct{}{}

	// "Building, Washington, DC" -> "washington dc"
	for i := 1; i < len(parts); i++ {
		tokens[strings.Join(parts[i:], " ")] = struct{}{}
	}
	for i := 0; i+1 < len(parts); i++ {
		tokens[parts[i]+" "+parts[i+1]] = struct{}{}
	}

	b.aliases.Close(tokens)
	delete(tokens, "")
	return tokens
}

// Parts splits location on commas and normalises each part, dropping parts
// that normalise to nothing.
func (b *Builder) Parts(location string) []string {
	raw := strings.Split(location, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if normalized := b.pipeline.Normalize(part); normalized != "" {
			parts = append(parts, normalized)
		}
	}
	return parts
}

// SortedTokens returns the non-empty members of set in ascending order.
func SortedTokens(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for token := range set {
		if token != "" {
			out = append(out, token)
		}
	}
	sort.Strings(out)
	return out
}
