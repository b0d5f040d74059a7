// Package handler serves the location search HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/geocoder"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/tracing"
)

// slowLookup is the request duration above which the span tree is logged
// at warn level.
const slowLookup = time.Second

type Handler struct {
	engine     *executor.Engine
	cache      *cache.ResponseCache
	collector  *analytics.Collector
	search     config.SearchConfig
	dataSource string
	logger     *slog.Logger
}

type Option func(*Handler)

// WithCache caches /markets responses.
func WithCache(c *cache.ResponseCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) { h.collector = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New creates a Handler. dataSource describes where the records were loaded
// from and is reported by /health.
func New(engine *executor.Engine, search config.SearchConfig, dataSource string, opts ...Option) *Handler {
	if search.MaxLimit <= 0 {
		search.MaxLimit = 1000
	}
	if search.DefaultLimit <= 0 || search.DefaultLimit > search.MaxLimit {
		search.DefaultLimit = min(100, search.MaxLimit)
	}
	if search.MaxQueryLength <= 0 {
		search.MaxQueryLength = 200
	}
	h := &Handler{
		engine:     engine,
		search:     search,
		dataSource: dataSource,
		logger:     slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type healthResponse struct {
	OK            bool   `json:"ok"`
	Records       int    `json:"records"`
	IndexedTokens int    `json:"indexed_tokens"`
	DataSource    string `json:"data_source"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	idx := h.engine.Index()
	h.writeJSON(w, http.StatusOK, healthResponse{
		OK:            true,
		Records:       idx.RecordCount(),
		IndexedTokens: idx.TokenCount(),
		DataSource:    h.dataSource,
	})
}

type marketsResponse struct {
	Query         string                  `json:"query"`
	Count         int                     `json:"count"`
	UsedVariants  []string                `json:"used_variants"`
	ResolvedPlace *geocoder.ResolvedPlace `json:"resolved_place"`
	Results       []index.Row             `json:"results"`
}

// Markets runs a loose lookup, widened through the geocoder when it resolves
// the query.
func (h *Handler) Markets(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, finish := h.trace(r, "http.markets")
	defer finish()
	log := logger.FromContext(ctx)

	query, err := h.requiredParam(r, "query")
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	var outcome string
	compute := func() ([]byte, error) {
		res := h.engine.SearchByLooseQuery(ctx, query)
		outcome = res.Resolution.Outcome()
		return json.Marshal(marketsResponse{
			Query:         query,
			Count:         len(res.Rows),
			UsedVariants:  nonNilStrings(res.Variants),
			ResolvedPlace: res.ResolvedPlace(),
			Results:       nonNilRows(res.Rows),
		})
	}

	var (
		body     []byte
		cacheHit bool
	)
	if h.cache != nil {
		body, cacheHit, err = h.cache.GetOrCompute(ctx, query, compute)
	} else {
		body, err = compute()
	}
	if err != nil {
		log.Error("markets lookup failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	var summary struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		log.Warn("markets response not decodable", "query", query, "cache_hit", cacheHit, "error", err)
	}
	log.Info("markets lookup",
		"query", query,
		"count", summary.Count,
		"cache_hit", cacheHit,
		"geocoder", outcome,
	)
	h.track(ctx, analytics.LocationSearchEvent{
		Type:            analytics.EventMarkets,
		Query:           query,
		Normalized:      h.normalize(query),
		Mode:            "loose",
		TotalHits:       summary.Count,
		Returned:        summary.Count,
		CacheHit:        cacheHit,
		GeocoderOutcome: outcome,
	}, start)

	h.writeRaw(w, http.StatusOK, body)
}

type locationResponse struct {
	Location           string      `json:"location"`
	NormalizedLocation string      `json:"normalized_location"`
	Mode               string      `json:"mode"`
	Strict             bool        `json:"strict"`
	UsedVariants       []string    `json:"used_variants"`
	Count              int         `json:"count"`
	Limit              int         `json:"limit"`
	Offset             int         `json:"offset"`
	HasMore            bool        `json:"has_more"`
	Results            []index.Row `json:"results"`
}

// EventsByLocation runs an exact lookup with optional loose fallback. A
// location containing a comma is already a formatted place, so it is always
// looked up strictly.
func (h *Handler) EventsByLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, finish := h.trace(r, "http.by_location")
	defer finish()
	log := logger.FromContext(ctx)

	location, err := h.requiredParam(r, "location")
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	limit, offset, err := h.pagination(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	strict := true
	if raw := r.URL.Query().Get("strict"); raw != "" {
		v, ok := parseBoolParam(raw)
		if !ok {
			h.writeError(w, http.StatusUnprocessableEntity, "strict must be a boolean")
			return
		}
		strict = v
	}
	if strings.Contains(location, ",") {
		strict = true
	}

	res := h.engine.SearchByLocation(ctx, location, strict)
	page, hasMore := merger.Paginate(res.Rows, offset, limit)

	log.Info("events lookup",
		"location", location,
		"strict", res.Strict,
		"mode", res.Mode,
		"count", len(res.Rows),
		"offset", offset,
		"limit", limit,
	)
	for _, row := range page {
		if q := strings.TrimSpace(row.Question); q != "" {
			log.Debug("matched event", "question", q)
		}
	}
	h.track(ctx, analytics.LocationSearchEvent{
		Type:       analytics.EventByLocation,
		Query:      location,
		Normalized: res.Normalized,
		Mode:       string(res.Mode),
		Strict:     res.Strict,
		Variants:   len(res.Variants),
		TotalHits:  len(res.Rows),
		Returned:   len(page),
	}, start)

	h.writeJSON(w, http.StatusOK, locationResponse{
		Location:           location,
		NormalizedLocation: res.Normalized,
		Mode:               string(res.Mode),
		Strict:             res.Strict,
		UsedVariants:       nonNilStrings(res.Variants),
		Count:              len(res.Rows),
		Limit:              limit,
		Offset:             offset,
		HasMore:            hasMore,
		Results:            nonNilRows(page),
	})
}

// placeTypes accepts either a single type string or a list.
type placeTypes []string

func (p *placeTypes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*p = placeTypes{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("place_type must be a string or a list of strings")
	}
	*p = many
	return nil
}

type placeRequest struct {
	Name         string     `json:"name"`
	PlaceName    string     `json:"place_name"`
	PlaceType    placeTypes `json:"place_type"`
	Region       string     `json:"region"`
	Country      string     `json:"country"`
	StrictIntent bool       `json:"strict_intent"`
}

type placeResponse struct {
	Name         string      `json:"name"`
	PlaceName    string      `json:"place_name"`
	MatchedScope string      `json:"matched_scope"`
	UsedVariants []string    `json:"used_variants"`
	Count        int         `json:"count"`
	Limit        int         `json:"limit"`
	Offset       int         `json:"offset"`
	HasMore      bool        `json:"has_more"`
	Results      []index.Row `json:"results"`
}

const maxPlaceBody = 64 << 10

// EventsByPlace looks up a place picked from a map search box at its own
// scope.
func (h *Handler) EventsByPlace(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, finish := h.trace(r, "http.by_place")
	defer finish()
	log := logger.FromContext(ctx)

	var req placeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPlaceBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.PlaceName = strings.TrimSpace(req.PlaceName)
	if req.Name == "" && req.PlaceName == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Name == "" {
		req.Name = strings.TrimSpace(strings.SplitN(req.PlaceName, ",", 2)[0])
	}
	if utf8.RuneCountInString(req.PlaceName) > h.search.MaxQueryLength*2 || utf8.RuneCountInString(req.Name) > h.search.MaxQueryLength {
		h.writeError(w, http.StatusUnprocessableEntity, "place is too long")
		return
	}
	limit, offset, err := h.pagination(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	res := h.engine.SearchByPlace(ctx, executor.PlaceQuery{
		Name:         req.Name,
		PlaceName:    req.PlaceName,
		PlaceTypes:   req.PlaceType,
		Region:       req.Region,
		Country:      req.Country,
		StrictIntent: req.StrictIntent,
	})
	page, hasMore := merger.Paginate(res.Rows, offset, limit)

	log.Info("place lookup",
		"name", req.Name,
		"place_name", req.PlaceName,
		"scope", res.Scope,
		"strict_intent", req.StrictIntent,
		"count", len(res.Rows),
	)
	h.track(ctx, analytics.LocationSearchEvent{
		Type:       analytics.EventByPlace,
		Query:      firstNonEmpty(req.PlaceName, req.Name),
		Normalized: h.normalize(firstNonEmpty(req.PlaceName, req.Name)),
		Mode:       string(res.Scope),
		Strict:     req.StrictIntent,
		Variants:   len(res.Variants),
		TotalHits:  len(res.Rows),
		Returned:   len(page),
	}, start)

	h.writeJSON(w, http.StatusOK, placeResponse{
		Name:         req.Name,
		PlaceName:    req.PlaceName,
		MatchedScope: string(res.Scope),
		UsedVariants: nonNilStrings(res.Variants),
		Count:        len(res.Rows),
		Limit:        limit,
		Offset:       offset,
		HasMore:      hasMore,
		Results:      nonNilRows(page),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// requiredParam returns the trimmed value of a text parameter. A missing or
// over-long value is 422; a blank one is 400.
func (h *Handler) requiredParam(r *http.Request, name string) (string, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return "", apperrors.Invalid(http.StatusUnprocessableEntity, "%s is required", name)
	}
	if utf8.RuneCountInString(raw) > h.search.MaxQueryLength {
		return "", apperrors.Invalid(http.StatusUnprocessableEntity,
			"%s must be at most %d characters", name, h.search.MaxQueryLength)
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", apperrors.Invalid(http.StatusBadRequest, "%s is required", name)
	}
	return value, nil
}

func (h *Handler) pagination(r *http.Request) (limit, offset int, err error) {
	limit = h.search.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > h.search.MaxLimit {
			return 0, 0, apperrors.Invalid(http.StatusUnprocessableEntity,
				"limit must be between 1 and %d", h.search.MaxLimit)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, apperrors.Invalid(http.StatusUnprocessableEntity,
				"offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// trace starts the request's root span. finish ends it and logs the tree.
func (h *Handler) trace(r *http.Request, name string) (context.Context, func()) {
	ctx, span := tracing.StartSpan(r.Context(), name, middleware.GetRequestID(r.Context()))
	ctx = logger.WithAttrs(ctx, "endpoint", name)
	return ctx, func() {
		span.End()
		log := logger.FromContext(ctx)
		span.Log(ctx, log)
		span.WarnIfSlow(ctx, log, slowLookup)
	}
}

func (h *Handler) track(ctx context.Context, event analytics.LocationSearchEvent, start time.Time) {
	if h.collector == nil {
		return
	}
	event.LatencyMs = time.Since(start).Milliseconds()
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)
	h.collector.Track(event)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"detail":"internal error"}`)
	}
	h.writeRaw(w, status, body)
}

func (h *Handler) writeRaw(w http.ResponseWriter, status int, body []byte) {
	h.writeBody(w, status, "application/json", body)
}

func (h *Handler) writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"detail": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Detail(err))
}

func (h *Handler) normalize(text string) string {
	return h.engine.Index().Builder().Normalize(text)
}

func parseBoolParam(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func nonNilRows(rows []index.Row) []index.Row {
	if rows == nil {
		return []index.Row{}
	}
	return rows
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
