// Package source reads geocoded market records from their storage: a JSON
// results list plus a question-keyed JSON cache on disk, or a SQL table.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
)

// CacheItem is one question-keyed cache entry, kept in document order.
type CacheItem struct {
	Question string
	Entry    ingestion.CacheEntry
}

// Source supplies the two record inputs. Either may be absent, in which case
// the method returns a nil slice and a nil error.
type Source interface {
	Primary(ctx context.Context) ([]ingestion.Record, error)
	Cache(ctx context.Context) ([]CacheItem, error)
	Describe() string
}

// decodePrimary decodes a JSON array of records, skipping elements that are
// not record objects. ok is false when data is not a JSON array.
func decodePrimary(data []byte, logger *slog.Logger) (records []ingestion.Record, ok bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	records = make([]ingestion.Record, 0, len(raw))
	for i, item := range raw {
		r, err := decodeRecord(item, logger.With("position", i))
		if err != nil {
			logger.Warn("skipping malformed record", "position", i, "error", err)
			continue
		}
		records = append(records, r)
	}
	return records, true
}

// decodeRecord decodes one record object field by field. A record needs an
// object with a string question; any other field of the wrong type is left
// unset, and locations entries that do not decode are dropped.
func decodeRecord(item json.RawMessage, logger *slog.Logger) (ingestion.Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return ingestion.Record{}, fmt.Errorf("decoding record: %w", err)
	}
	if fields == nil {
		return ingestion.Record{}, fmt.Errorf("decoding record: not an object")
	}
	var r ingestion.Record
	if err := json.Unmarshal(fields["question"], &r.Question); err != nil {
		return ingestion.Record{}, fmt.Errorf("decoding record question: %w", err)
	}

	targets := map[string]any{
		"entity":        &r.Entity,
		"reasoning":     &r.Reasoning,
		"location_name": &r.LocationName,
		"latitude":      &r.Latitude,
		"longitude":     &r.Longitude,
		"category":      &r.Category,
		"link":          &r.Link,
		"source":        &r.Source,
		"error":         &r.Error,
	}
	for name, target := range targets {
		value, present := fields[name]
		if !present {
			continue
		}
		if err := json.Unmarshal(value, target); err != nil {
			logger.Debug("ignoring mistyped record field", "field", name, "error", err)
		}
	}

	if value, present := fields["locations"]; present {
		var entries []json.RawMessage
		if err := json.Unmarshal(value, &entries); err != nil {
			logger.Debug("ignoring mistyped record field", "field", "locations", "error", err)
		}
		for j, entry := range entries {
			var loc ingestion.LocationEntry
			if err := json.Unmarshal(entry, &loc); err != nil {
				logger.Debug("dropping malformed location entry", "entry", j, "error", err)
				continue
			}
			r.Locations = append(r.Locations, loc)
		}
	}
	return r, nil
}

// decodeCache streams a JSON object of question -> partial record, keeping
// key order and skipping values that are not objects. ok is false when data
// is not a JSON object.
func decodeCache(data []byte, logger *slog.Logger) (items []CacheItem, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, isDelim := tok.(json.Delim); !isDelim || delim != '{' {
		return nil, false
	}
	items = make([]CacheItem, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			logger.Warn("cache document truncated", "error", err)
			return items, true
		}
		question, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			logger.Warn("cache document truncated", "error", err)
			return items, true
		}
		var entry ingestion.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			logger.Warn("skipping malformed cache entry", "question", question, "error", err)
			continue
		}
		items = append(items, CacheItem{Question: question, Entry: entry})
	}
	return items, true
}

func decodeCacheEntry(question string, payload []byte) (CacheItem, error) {
	var entry ingestion.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return CacheItem{}, fmt.Errorf("decoding cache payload for %q: %w", question, err)
	}
	return CacheItem{Question: question, Entry: entry}, nil
}
