package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/alias"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/normalizer"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/tokenizer"
)

func TestBuildLooseWashingtonDC(t *testing.T) {
	variants := BuildLoose("Washington, DC")
	assert.Contains(t, variants, "washington dc")
	assert.Contains(t, variants, "washington")
	assert.Contains(t, variants, "dc")
	assert.IsIncreasing(t, variants)
}

func TestBuildLooseDropsShortWords(t *testing.T) {
	variants := BuildLoose("a city of x")
	assert.Equal(t, []string{"a city of x", "city", "of"}, variants)
}

func TestBuildStrictAliasesOnly(t *testing.T) {
	assert.Equal(t, []string{"new york", "new york city", "nyc"}, BuildStrict("NYC"))
	assert.Equal(t, []string{"dallas texas united states"}, BuildStrict("Dallas, Texas, United States"))
}

func TestEmptyQuery(t *testing.T) {
	assert.Empty(t, BuildLoose("   "))
	assert.Empty(t, BuildStrict("!!!"))

	plan := New(tokenizer.Default()).Parse("", ModeStrict)
	assert.True(t, plan.Empty())
	assert.Equal(t, "strict", plan.Mode.String())
}

func TestLooseAliasSinglePass(t *testing.T) {
	table := alias.New(map[string][]string{
		"a1": {"b1"},
		"b1": {"c1"},
	})
	p := New(tokenizer.NewBuilder(normalizer.Default(), table))

	plan := p.Parse("A1", ModeLoose)
	require.False(t, plan.Empty())
	assert.Equal(t, "a1", plan.Normalized)
	assert.Equal(t, []string{"a1", "b1"}, plan.Variants)
}

func TestSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Sorted([]string{"b", "", "a", "b"}))
}
