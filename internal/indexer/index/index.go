// Package index is the exact-token location index. It is built once from a
// frozen record set and is read-only afterwards, so concurrent searches need
// no locking.
package index

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
)

type Index struct {
	builder  *tokenizer.Builder
	records  []ingestion.Record
	postings map[string]PostingList
}

// Build indexes every location string of every record under each token the
// builder derives from it.
func Build(records []ingestion.Record, builder *tokenizer.Builder) *Index {
	idx := &Index{
		builder:  builder,
		records:  make([]ingestion.Record, len(records)),
		postings: make(map[string]PostingList),
	}
	for i, r := range records {
		idx.records[i] = r.Clone()
		for _, location := range r.LocationNames() {
			for token := range builder.BuildSet(location) {
				idx.postings[token] = append(idx.postings[token], MatchRef{
					RecordIndex:     i,
					MatchedLocation: location,
				})
			}
		}
	}
	return idx
}

// Search normalises query and returns one row per matching question, sorted
// by question. It returns nil when the query normalises to nothing or the
// token is unknown.
func (idx *Index) Search(query string) []Row {
	token := idx.builder.Normalize(query)
	if token == "" {
		return nil
	}
	return idx.Lookup(token)
}

// Lookup is Search for an already normalised token.
func (idx *Index) Lookup(token string) []Row {
	refs, ok := idx.postings[token]
	if !ok || token == "" {
		return nil
	}

	order := make([]string, 0, len(refs))
	rows := make(map[string]*Row, len(refs))
	for _, ref := range refs {
		record := idx.records[ref.RecordIndex]
		question := strings.TrimSpace(record.Question)
		if question == "" {
			continue
		}
		row, seen := rows[question]
		if !seen {
			row = &Row{Record: record.Clone(), MatchedOn: make([]string, 0, 1)}
			rows[question] = row
			order = append(order, question)
		}
		if !contains(row.MatchedOn, ref.MatchedLocation) {
			row.MatchedOn = append(row.MatchedOn, ref.MatchedLocation)
		}
	}

	sort.Strings(order)
	result := make([]Row, 0, len(order))
	for _, question := range order {
		result = append(result, *rows[question])
	}
	return result
}

// Records returns a copy of the indexed records in load order.
func (idx *Index) Records() []ingestion.Record {
	out := make([]ingestion.Record, len(idx.records))
	for i, r := range idx.records {
		out[i] = r.Clone()
	}
	return out
}

func (idx *Index) TokenCount() int {
	return len(idx.postings)
}

func (idx *Index) RecordCount() int {
	return len(idx.records)
}

// Builder returns the token builder the index was built with.
func (idx *Index) Builder() *tokenizer.Builder {
	return idx.builder
}

// Terms lists every token with its postings, sorted by token.
func (idx *Index) Terms() []TermEntry {
	entries := make([]TermEntry, 0, len(idx.postings))
	for token, postings := range idx.postings {
		entries = append(entries, TermEntry{
			Token:    token,
			Postings: append(PostingList(nil), postings...),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Token < entries[j].Token
	})
	return entries
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
