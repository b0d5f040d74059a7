// Package loader merges the primary record list with the question-keyed
// cache into the canonical in-memory record collection.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/errors"
)

// Cache fields that may be copied over an existing record.
var mergeFields = []string{
	"entity",
	"reasoning",
	"location_name",
	"latitude",
	"longitude",
	"locations",
	"category",
}

// Result is the outcome of a load.
type Result struct {
	Records    []ingestion.Record
	DataSource string
	FromCache  int
}

// Loader reads records from a Source.
type Loader struct {
	src    source.Source
	logger *slog.Logger
}

func New(src source.Source) *Loader {
	return &Loader{
		src:    src,
		logger: slog.Default().With("component", "loader"),
	}
}

// Load reads the primary and cache inputs concurrently and merges them.
// It returns ErrNoData when neither input yields a record.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	var (
		primary []ingestion.Record
		cache   []source.CacheItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := l.src.Primary(gctx)
		if err != nil {
			return fmt.Errorf("reading primary records: %w", err)
		}
		primary = records
		return nil
	})
	g.Go(func() error {
		items, err := l.src.Cache(gctx)
		if err != nil {
			return fmt.Errorf("reading cache: %w", err)
		}
		cache = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range primary {
		if primary[i].Source == "" {
			primary[i].Source = ingestion.SourceResultsFile
		}
	}

	records, err := Merge(primary, cache)
	if err != nil {
		return nil, err
	}

	fromCache := 0
	for i := range records {
		records[i].RoundCoordinates()
		if records[i].Source == ingestion.SourceCache {
			fromCache++
		}
		if err := validator.ValidateRecord(&records[i]); err != nil {
			l.logger.Warn("record failed validation", "question", records[i].Question, "error", err)
		}
	}

	l.logger.Info("records loaded",
		"records", len(records),
		"primary", len(primary),
		"cache_entries", len(cache),
		"from_cache", fromCache,
		"source", l.src.Describe(),
	)
	return &Result{
		Records:    records,
		DataSource: l.src.Describe(),
		FromCache:  fromCache,
	}, nil
}

// Merge combines primary records with cache entries. Primary records are
// keyed by question with the last duplicate winning; output keeps the order
// of first appearance, followed by cache-only questions in cache order.
func Merge(primary []ingestion.Record, cache []source.CacheItem) ([]ingestion.Record, error) {
	order := make([]string, 0, len(primary)+len(cache))
	byQuestion := make(map[string]ingestion.Record, len(primary)+len(cache))

	for _, r := range primary {
		if strings.TrimSpace(r.Question) == "" {
			continue
		}
		if _, seen := byQuestion[r.Question]; !seen {
			order = append(order, r.Question)
		}
		byQuestion[r.Question] = r.Clone()
	}

	for _, item := range cache {
		if strings.TrimSpace(item.Question) == "" {
			continue
		}
		existing, ok := byQuestion[item.Question]
		if !ok {
			r := item.Entry.Record.Clone()
			r.Question = item.Question
			r.Source = ingestion.SourceCache
			byQuestion[item.Question] = r
			order = append(order, item.Question)
			continue
		}
		byQuestion[item.Question] = ApplyCache(existing, item.Entry)
	}

	if len(order) == 0 {
		return nil, apperrors.New(apperrors.ErrNoData, 503,
			"no records found in the results file or the cache")
	}

	records := make([]ingestion.Record, 0, len(order))
	for _, q := range order {
		records = append(records, byQuestion[q])
	}
	return records, nil
}

// ApplyCache copies the fields present in entry over existing when existing
// is incomplete or carries an error. A complete, error-free record is
// returned unchanged.
func ApplyCache(existing ingestion.Record, entry ingestion.CacheEntry) ingestion.Record {
	if existing.State() == ingestion.StateComplete && !existing.HasError() {
		return existing
	}
	merged := existing.Clone()
	src := entry.Record.Clone()
	for _, field := range mergeFields {
		if !entry.Has(field) {
			continue
		}
		switch field {
		case "entity":
			merged.Entity = src.Entity
		case "reasoning":
			merged.Reasoning = src.Reasoning
		case "location_name":
			merged.LocationName = src.LocationName
		case "latitude":
			merged.Latitude = src.Latitude
		case "longitude":
			merged.Longitude = src.Longitude
		case "locations":
			merged.Locations = src.Locations
		case "category":
			merged.Category = src.Category
		}
	}
	merged.Error = ""
	merged.Source = ingestion.SourceCache
	return merged
}
