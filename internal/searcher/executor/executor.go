// Package executor is the caller-facing search engine. It expands queries
// into variants, looks each one up in the location index, optionally widens
// loose queries through the geocoder, and merges the per-variant results.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/geocoder"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/tracing"
)

// Mode reports which variant set produced a location result.
type Mode string

const (
	ModeExact    Mode = "exact"
	ModeFallback Mode = "fallback"
)

type LooseResult struct {
	Query      string
	Rows       []index.Row
	Variants   []string
	Resolution geocoder.Resolution
}

// ResolvedPlace returns the geocoded place, or nil when the query was not
// resolved.
func (r LooseResult) ResolvedPlace() *geocoder.ResolvedPlace {
	return r.Resolution.Place
}

type LocationResult struct {
	Location   string
	Normalized string
	Rows       []index.Row
	Mode       Mode
	Strict     bool
	Variants   []string
}

type Engine struct {
	idx      *index.Index
	parser   *parser.Parser
	resolver geocoder.Resolver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Engine)

// WithResolver enables geocoder widening of loose queries.
func WithResolver(r geocoder.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(idx *index.Index, opts ...Option) *Engine {
	e := &Engine{
		idx:    idx,
		parser: parser.New(idx.Builder()),
		logger: slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics != nil {
		e.metrics.IndexTokens.Set(float64(idx.TokenCount()))
		e.metrics.IndexRecords.Set(float64(idx.RecordCount()))
	}
	return e
}

// Index returns the engine's location index.
func (e *Engine) Index() *index.Index {
	return e.idx
}

// Parser returns the query variant builder bound to the index's normaliser
// and alias table.
func (e *Engine) Parser() *parser.Parser {
	return e.parser
}

// SearchByLooseQuery searches the loose variants of text and, when the
// geocoder resolves text, every candidate token of the resolved place.
func (e *Engine) SearchByLooseQuery(ctx context.Context, text string) LooseResult {
	ctx, span := tracing.StartChildSpan(ctx, "engine.search_loose")
	defer span.End()
	start := time.Now()

	variants := e.parser.Loose(text)
	groups := e.lookupAll(variants)

	res := geocoder.Unresolved(geocoder.ReasonDisabled, nil)
	if e.resolver != nil {
		res = e.resolver.Resolve(ctx, text)
		if res.IsResolved() {
			groups = append(groups, e.lookupAll(res.Place.Candidates)...)
		}
	}
	rows := merger.Merge(groups)

	span.SetAttrs("variants", len(variants), "results", len(rows))
	e.observe("loose", "loose", len(rows), start)
	return LooseResult{
		Query:      text,
		Rows:       rows,
		Variants:   variants,
		Resolution: res,
	}
}

// SearchByLocation searches the strict variants of text. When strict is
// false and the strict variants match nothing, the loose variants are
// searched instead and the result mode is fallback.
func (e *Engine) SearchByLocation(ctx context.Context, text string, strict bool) LocationResult {
	_, span := tracing.StartChildSpan(ctx, "engine.search_by_location")
	defer span.End()
	start := time.Now()

	plan := e.parser.Parse(text, parser.ModeStrict)
	result := LocationResult{
		Location:   text,
		Normalized: plan.Normalized,
		Rows:       merger.Merge(e.lookupAll(plan.Variants)),
		Mode:       ModeExact,
		Strict:     strict,
		Variants:   plan.Variants,
	}
	if !strict && len(result.Rows) == 0 {
		result.Variants = e.parser.Loose(text)
		result.Rows = merger.Merge(e.lookupAll(result.Variants))
		result.Mode = ModeFallback
	}

	span.SetAttrs("mode", string(result.Mode), "results", len(result.Rows))
	e.observe("by_location", string(result.Mode), len(result.Rows), start)
	return result
}

// SearchVariants looks up every variant and merges the results.
func (e *Engine) SearchVariants(variants []string) []index.Row {
	return merger.Merge(e.lookupAll(variants))
}

func (e *Engine) lookupAll(variants []string) [][]index.Row {
	groups := make([][]index.Row, 0, len(variants))
	for _, v := range variants {
		if rows := e.idx.Search(v); len(rows) > 0 {
			groups = append(groups, rows)
		}
	}
	return groups
}

func (e *Engine) observe(operation, mode string, results int, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.LocationQueriesTotal.WithLabelValues(mode).Inc()
	e.metrics.LocationQueryResults.Observe(float64(results))
	e.metrics.LocationQueryLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
