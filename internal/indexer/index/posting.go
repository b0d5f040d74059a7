package index

import "github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"

// MatchRef points at a record and the exact location string of that record
// which produced a token.
type MatchRef struct {
	RecordIndex     int
	MatchedLocation string
}

// PostingList is the ordered list of references stored under one token.
type PostingList []MatchRef

// Row is one search result: the matched record plus every distinct location
// string that matched, in first-seen order.
type Row struct {
	ingestion.Record
	MatchedOn []string `json:"matched_on"`
}

// Clone returns a deep copy of r.
func (r Row) Clone() Row {
	return Row{
		Record:    r.Record.Clone(),
		MatchedOn: append([]string(nil), r.MatchedOn...),
	}
}

// TermEntry is a token with its postings, used when listing the index.
type TermEntry struct {
	Token    string
	Postings PostingList
}
