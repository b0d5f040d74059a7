// Package normalizer canonicalises location and query text into tokens that
// can be compared for exact equality. Normalisation is an ordered pipeline of
// named steps; later steps rely on the output shape of earlier ones.
package normalizer

import (
	"regexp"
	"strings"
)

// Step is a single pure string transform in the pipeline.
type Step struct {
	Name  string
	Apply func(string) string
}

// Pipeline applies its steps in order.
type Pipeline struct {
	steps []Step
}

var separatorReplacer = strings.NewReplacer(",", " ", ".", " ", "-", " ")

// abbreviations collapse spaced-out letter sequences. They run after
// whitespace collapsing, so a single space separates letters. Order matters:
// "u s a" must be tried before "u s".
var abbreviations = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\bd c\b`), "dc"},
	{regexp.MustCompile(`\bu s a\b`), "usa"},
	{regexp.MustCompile(`\bu s\b`), "us"},
	{regexp.MustCompile(`\bu k\b`), "uk"},
	{regexp.MustCompile(`\bu a e\b`), "uae"},
}

var defaultPipeline = Pipeline{steps: []Step{
	{Name: "trim-lower", Apply: func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}},
	{Name: "ampersand", Apply: func(s string) string {
		return strings.ReplaceAll(s, "&", " and ")
	}},
	{Name: "separators", Apply: separatorReplacer.Replace},
	{Name: "strip", Apply: stripDisallowed},
	{Name: "collapse-space", Apply: func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}},
	{Name: "abbreviations", Apply: func(s string) string {
		for _, abbr := range abbreviations {
			s = abbr.pattern.ReplaceAllString(s, abbr.replacement)
		}
		return s
	}},
	{Name: "trim", Apply: strings.TrimSpace},
}}

// Default returns the canonical normalisation pipeline.
func Default() Pipeline {
	return defaultPipeline
}

// Steps returns the ordered step list.
func (p Pipeline) Steps() []Step {
	steps := make([]Step, len(p.steps))
	copy(steps, p.steps)
	return steps
}

// Normalize runs value through every step. An empty result means the value
// carries no searchable text.
func (p Pipeline) Normalize(value string) string {
	for _, step := range p.steps {
		value = step.Apply(value)
	}
	return value
}

// Normalize runs the default pipeline.
func Normalize(value string) string {
	return defaultPipeline.Normalize(value)
}

// stripDisallowed replaces every rune outside [a-z0-9] with a space, so
// "o'hare" and "o hare" normalise alike.
func stripDisallowed(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return b.String()
}
