// Package merger unions per-variant result sets by question and slices the
// merged rows into pages.
package merger

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/index"
)

// Merge unions groups by trimmed question. The first occurrence of a
// question seeds its row; later occurrences only add matched_on entries not
// already present. Rows with a blank question are skipped. The result is
// sorted by question.
func Merge(groups [][]index.Row) []index.Row {
	order := make([]string, 0)
	merged := make(map[string]*index.Row)
	for _, rows := range groups {
		for _, row := range rows {
			key := strings.TrimSpace(row.Question)
			if key == "" {
				continue
			}
			existing, ok := merged[key]
			if !ok {
				seeded := row.Clone()
				seeded.Question = key
				seeded.MatchedOn = dedupe(seeded.MatchedOn)
				merged[key] = &seeded
				order = append(order, key)
				continue
			}
			for _, location := range row.MatchedOn {
				if !contains(existing.MatchedOn, location) {
					existing.MatchedOn = append(existing.MatchedOn, location)
				}
			}
		}
	}

	sort.Strings(order)
	result := make([]index.Row, 0, len(order))
	for _, question := range order {
		result = append(result, *merged[question])
	}
	return result
}

// Paginate returns rows[offset:offset+limit], clamped to the slice, and
// whether rows remain beyond the page. offset and limit must be
// non-negative.
func Paginate(rows []index.Row, offset, limit int) ([]index.Row, bool) {
	hasMore := offset < len(rows) && limit < len(rows)-offset
	if offset >= len(rows) {
		return []index.Row{}, hasMore
	}
	end := len(rows)
	if limit < end-offset {
		end = offset + limit
	}
	return rows[offset:end], hasMore
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
