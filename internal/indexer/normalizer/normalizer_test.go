package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and trim", "  New York City  ", "new york city"},
		{"commas become spaces", "Austin, Texas, United States", "austin texas united states"},
		{"ampersand", "Trinidad & Tobago", "trinidad and tobago"},
		{"dots and hyphens", "Winston-Salem, N.C.", "winston salem n c"},
		{"dc collapse", "Washington, D.C.", "washington dc"},
		{"usa collapse", "U.S.A.", "usa"},
		{"us collapse", "U.S. Capitol", "us capitol"},
		{"uk collapse", "London, U.K.", "london uk"},
		{"uae collapse", "Dubai, U.A.E.", "dubai uae"},
		{"punctuation becomes space", "St. John's (Newfoundland)", "st john s newfoundland"},
		{"non ascii becomes space", "São Paulo", "s o paulo"},
		{"apostrophe splits", "O'Hare Airport", "o hare airport"},
		{"accents and apostrophe", "Côte d'Ivoire", "c te d ivoire"},
		{"whitespace runs", "a\t\tb\n c", "a b c"},
		{"no mid-word abbreviation", "Dudc Cus", "dudc cus"},
		{"empty", "   ", ""},
		{"only punctuation", "?!*", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Madison Square Garden, New York City, New York, United States",
		"U S A",
		"u u s a e",
		"D. C. & U.K.",
		"d c d c",
		"Zürich — Switzerland",
		"",
		"u s s",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestPipelineOrder(t *testing.T) {
	names := make([]string, 0)
	for _, step := range Default().Steps() {
		names = append(names, step.Name)
	}
	assert.Equal(t, []string{
		"trim-lower", "ampersand", "separators", "strip",
		"collapse-space", "abbreviations", "trim",
	}, names)
}

func BenchmarkNormalize(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Normalize("Madison Square Garden, New York City, New York, U.S.A.")
	}
}
