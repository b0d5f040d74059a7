package merger

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
)

func row(question string, matchedOn ...string) index.Row {
	return index.Row{Record: ingestion.Record{Question: question}, MatchedOn: matchedOn}
}

func questions(rows []index.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Question
	}
	return out
}

func TestMergeExtendsMatchedOn(t *testing.T) {
	merged := Merge([][]index.Row{
		{row("Q1", "A")},
		{row("Q1", "B")},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, "Q1", merged[0].Question)
	assert.Equal(t, []string{"A", "B"}, merged[0].MatchedOn)
}

func TestMergeCommutativeAndIdempotent(t *testing.T) {
	g1 := []index.Row{row("Q2", "A"), row("Q1", "A")}
	g2 := []index.Row{row("Q1", "B"), row("Q3", "C")}

	forward := Merge([][]index.Row{g1, g2})
	backward := Merge([][]index.Row{g2, g1})
	assert.Equal(t, questions(forward), questions(backward))
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, questions(forward))
	assert.ElementsMatch(t, forward[0].MatchedOn, backward[0].MatchedOn)

	twice := Merge([][]index.Row{g1, g1, g2, g2})
	assert.Equal(t, forward, twice)
}

func TestMergeKeysOnTrimmedQuestion(t *testing.T) {
	merged := Merge([][]index.Row{
		{row("Q1 ", "Austin, Texas")},
		{row("Q1", "Dallas, Texas"), row("   ", "El Paso, Texas")},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, "Q1", merged[0].Question)
	assert.Equal(t, []string{"Austin, Texas", "Dallas, Texas"}, merged[0].MatchedOn)
}

func TestMergeDoesNotAliasInput(t *testing.T) {
	g := []index.Row{row("Q1", "A")}
	merged := Merge([][]index.Row{g, {row("Q1", "B")}})
	require.Len(t, merged, 1)
	assert.Equal(t, []string{"A"}, g[0].MatchedOn)
}

func TestPaginateInvariant(t *testing.T) {
	rows := make([]index.Row, 7)
	for i := range rows {
		rows[i] = row(fmt.Sprintf("Q%d", i))
	}
	for offset := 0; offset <= 10; offset++ {
		for limit := 1; limit <= 10; limit++ {
			page, hasMore := Paginate(rows, offset, limit)
			want := limit
			if rem := len(rows) - offset; rem < want {
				want = max(0, rem)
			}
			assert.Len(t, page, want, "offset=%d limit=%d", offset, limit)
			assert.Equal(t, offset+limit < len(rows), hasMore, "offset=%d limit=%d", offset, limit)
		}
	}

	page, hasMore := Paginate(rows, 2, math.MaxInt)
	assert.Len(t, page, 5)
	assert.False(t, hasMore)

	page, hasMore = Paginate(rows, math.MaxInt, math.MaxInt)
	assert.Empty(t, page)
	assert.False(t, hasMore)
}

func TestPaginateEmpty(t *testing.T) {
	page, hasMore := Paginate(nil, 0, 100)
	assert.Empty(t, page)
	assert.False(t, hasMore)
}
