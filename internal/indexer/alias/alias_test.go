package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	table := Default()

	assert.Equal(t, []string{"new york", "new york city"}, table.Lookup("nyc"))
	assert.Equal(t, []string{"washington dc", "washington"}, table.Lookup("dc"))
	assert.Nil(t, table.Lookup("washington"))
	assert.Nil(t, table.Lookup("NYC"))
}

func TestLookupReturnsCopy(t *testing.T) {
	table := Default()
	got := table.Lookup("la")
	got[0] = "mutated"
	assert.Equal(t, []string{"los angeles"}, table.Lookup("la"))
}

func TestNewCopiesEntries(t *testing.T) {
	entries := map[string][]string{"bk": {"brooklyn"}}
	table := New(entries)
	entries["bk"][0] = "changed"
	assert.Equal(t, []string{"brooklyn"}, table.Lookup("bk"))
	assert.Equal(t, 1, table.Len())
}

func TestExpandSinglePass(t *testing.T) {
	set := map[string]struct{}{"new york": {}}
	Default().Expand(set)

	assert.Contains(t, set, "nyc")
	assert.NotContains(t, set, "new york city")
}

func TestCloseReachesFixpoint(t *testing.T) {
	table := Default()
	set := map[string]struct{}{"new york": {}}
	table.Close(set)

	assert.Contains(t, set, "nyc")
	assert.Contains(t, set, "new york city")
	for token := range set {
		for _, a := range table.Lookup(token) {
			assert.Contains(t, set, a)
		}
	}
}
