package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/redis"
)

const (
	qNYC    = "Will there be a major event in New York City?"
	qAustin = "Will Austin host SXSW next year?"
	qMSG    = "Will MSG host a sold-out show this quarter?"
	qAlaska = "Will Alaska host an energy summit this year?"
	qMaine  = "Will Maine host a fishing summit this year?"
	qDallas = "Will Dallas host a new event?"
)

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64 { return &f }

func sampleRecords() []ingestion.Record {
	return []ingestion.Record{
		{Question: qNYC, LocationName: strPtr("New York City, New York, United States"), Latitude: floatPtr(40.7128), Longitude: floatPtr(-74.006)},
		{Question: qAustin, LocationName: strPtr("Austin, Texas, United States")},
		{Question: qMSG, LocationName: strPtr("Madison Square Garden, New York City, New York, United States")},
		{Question: qAlaska, LocationName: strPtr("Alaska, United States")},
		{Question: qMaine, LocationName: strPtr("Maine, United States")},
		{Question: "Will Seattle host a major conference?", LocationName: strPtr("Seattle, Washington, United States")},
		{Question: qDallas, LocationName: strPtr("Dallas, Texas, United States"), Latitude: floatPtr(32.7767), Longitude: floatPtr(-96.797), Source: ingestion.SourceCache},
	}
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := value.([]byte); ok {
		s.data[key] = string(b)
	}
	return nil
}

func (s *memoryStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = make(map[string]string)
	return n, nil
}

type testServer struct {
	router http.Handler
	agg    *analytics.Aggregator
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	idx := index.Build(sampleRecords(), tokenizer.Default())
	engine := executor.New(idx)
	agg := analytics.NewAggregator()
	opts = append(opts, WithCollector(analytics.NewCollector(agg, nil)))
	h := New(engine, config.SearchConfig{DefaultLimit: 100, MaxLimit: 1000, MaxQueryLength: 200}, "results.json + cache.json", opts...)

	checker := health.NewChecker()
	checker.Register("index", health.Static(health.StatusUp, "7 records"))
	router := NewRouter(h, RouterConfig{
		Checker:   checker,
		Analytics: analytics.NewHandler(agg),
		CORS: middleware.CORSConfig{
			AllowOrigins: []string{"http://localhost:5173"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"*"},
			MaxAge:       600,
		},
		Timeout: 5 * time.Second,
	})
	return &testServer{router: router, agg: agg}
}

func (s *testServer) get(t *testing.T, path string, params url.Values) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec, decode(t, rec)
}

func (s *testServer) post(t *testing.T, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(rec, req)
	return rec, decode(t, rec)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	}
	return payload
}

func resultQuestions(payload map[string]any) []string {
	rows, _ := payload["results"].([]any)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(map[string]any)["question"].(string))
	}
	return out
}

func TestHealthReportsMetadata(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["ok"])
	assert.EqualValues(t, 7, payload["records"])
	assert.Greater(t, payload["indexed_tokens"], float64(0))
	assert.Equal(t, "results.json + cache.json", payload["data_source"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestCoordinatesListsEveryPoint(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/api/v1/markets/coordinates", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, payload["count"])
	coords := payload["coordinates"].([]any)
	questions := []string{}
	for _, c := range coords {
		row := c.(map[string]any)
		questions = append(questions, row["question"].(string))
		assert.NotEmpty(t, row["geohash"])
	}
	assert.ElementsMatch(t, []string{qNYC, qDallas}, questions)
}

func TestCoordinatesGeoJSON(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/api/v1/markets/coordinates", url.Values{"format": {"geojson"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "FeatureCollection", payload["type"])
	features := payload["features"].([]any)
	require.Len(t, features, 2)
	first := features[0].(map[string]any)
	coords := first["geometry"].(map[string]any)["coordinates"].([]any)
	assert.InDelta(t, -74.006, coords[0], 1e-9)
	assert.InDelta(t, 40.7128, coords[1], 1e-9)

	rec, _ = s.get(t, "/api/v1/markets/coordinates", url.Values{"format": {"kml"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header { return w.header }
func (w *brokenWriter) WriteHeader(status int) { w.status = status }
func (w *brokenWriter) Write(b []byte) (int, error) { return 0, errors.New("connection reset") }

func TestCoordinatesLogsWriteFailure(t *testing.T) {
	var buf bytes.Buffer
	engine := executor.New(index.Build(sampleRecords(), tokenizer.Default()))
	h := New(engine, config.SearchConfig{}, "results.json", WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	w := &brokenWriter{header: http.Header{}}
	h.Coordinates(w, httptest.NewRequest(http.MethodGet, "/api/v1/markets/coordinates?format=geojson", nil))

	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, "application/geo+json", w.header.Get("Content-Type"))
	assert.Contains(t, buf.String(), "failed to write response")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestMarketsLogsUndecodableCachedBody(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	store := &memoryStore{data: map[string]string{cache.BuildKey("austin"): "not json"}}
	s := newTestServer(t, WithCache(cache.New(store, time.Minute, nil)))

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/markets?query=austin", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not json", rec.Body.String())
	assert.Contains(t, buf.String(), "markets response not decodable")
}

func TestMarketsValidation(t *testing.T) {
	s := newTestServer(t)

	rec, payload := s.get(t, "/markets", url.Values{"query": {"   "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query is required", payload["detail"])

	rec, _ = s.get(t, "/markets", url.Values{"query": {strings.Repeat("a", 201)}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.get(t, "/markets", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMarketsAliasSearch(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/markets", url.Values{"query": {"nyc"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nyc", payload["query"])
	assert.GreaterOrEqual(t, payload["count"], float64(1))
	assert.Contains(t, resultQuestions(payload), qNYC)
	assert.Nil(t, payload["resolved_place"])
	assert.Contains(t, payload["used_variants"], "nyc")
}

func TestMarketsServedFromCache(t *testing.T) {
	rc := cache.New(&memoryStore{data: make(map[string]string)}, time.Minute, nil)
	s := newTestServer(t, WithCache(rc))

	rec1, first := s.get(t, "/markets", url.Values{"query": {"austin"}})
	rec2, second := s.get(t, "/markets", url.Values{"query": {"austin"}})
	require.Equal(t, http.StatusOK, rec1.Code)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, first, second)

	hits, misses := rc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, int64(1), s.agg.Stats().CacheHits)

	rec, stats := s.get(t, "/api/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50.0%", stats["hit_rate"])

	rec, _ = s.post(t, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/api/v1/cache/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", payload["status"])

	rec, _ = s.post(t, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestByLocationStrictAndPagination(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/api/v1/events/by-location", url.Values{
		"location": {"seattle"}, "strict": {"true"}, "limit": {"1"}, "offset": {"0"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exact", payload["mode"])
	assert.EqualValues(t, 1, payload["limit"])
	assert.EqualValues(t, 0, payload["offset"])
	assert.Equal(t, false, payload["has_more"])
	assert.EqualValues(t, 1, payload["count"])
	assert.Equal(t, "seattle", payload["normalized_location"])
}

func TestByLocationHasMore(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/api/v1/events/by-location", url.Values{
		"location": {"United States"}, "limit": {"2"}, "offset": {"1"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, payload["count"])
	assert.Len(t, resultQuestions(payload), 2)
	assert.Equal(t, true, payload["has_more"])
}

func TestByLocationFormattedLocationIsStrict(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/api/v1/events/by-location", url.Values{
		"location": {"New York City, New York, United States"}, "strict": {"false"}, "limit": {"10"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exact", payload["mode"])
	assert.Equal(t, true, payload["strict"])
	assert.Contains(t, resultQuestions(payload), qNYC)
}

func TestByLocationNoFallbackForUnmatchedCity(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/api/v1/events/by-location", url.Values{
		"location": {"Nonexistent City, United States"}, "strict": {"false"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exact", payload["mode"])
	assert.Equal(t, true, payload["strict"])
	assert.EqualValues(t, 0, payload["count"])
	assert.Equal(t, []any{}, payload["results"])

	stats := s.agg.Stats()
	assert.Equal(t, int64(1), stats.ZeroResultCount)
}

func TestByLocationFallbackWithoutComma(t *testing.T) {
	s := newTestServer(t)
	rec, payload := s.get(t, "/api/v1/events/by-location", url.Values{
		"location": {"texas hill country"}, "strict": {"false"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fallback", payload["mode"])
	assert.Equal(t, false, payload["strict"])
	assert.ElementsMatch(t, []string{qAustin, qDallas}, resultQuestions(payload))
}

func TestByLocationValidation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		params url.Values
		want   int
	}{
		{"limit too large", url.Values{"location": {"seattle"}, "limit": {"1001"}}, http.StatusUnprocessableEntity},
		{"limit zero", url.Values{"location": {"seattle"}, "limit": {"0"}}, http.StatusUnprocessableEntity},
		{"negative offset", url.Values{"location": {"seattle"}, "offset": {"-1"}}, http.StatusUnprocessableEntity},
		{"bad strict", url.Values{"location": {"seattle"}, "strict": {"maybe"}}, http.StatusUnprocessableEntity},
		{"blank location", url.Values{"location": {"  "}}, http.StatusBadRequest},
		{"missing location", url.Values{}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := s.get(t, "/api/v1/events/by-location", tt.params)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestByPlaceScopes(t *testing.T) {
	s := newTestServer(t)

	t.Run("city", func(t *testing.T) {
		rec, payload := s.post(t, "/api/v1/events/by-place",
			`{"name":"Austin","place_name":"Austin, Texas, United States","place_type":["place"],"strict_intent":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "city", payload["matched_scope"])
		assert.Contains(t, resultQuestions(payload), qAustin)
	})

	t.Run("poi", func(t *testing.T) {
		rec, payload := s.post(t, "/api/v1/events/by-place",
			`{"name":"Madison Square Garden","place_name":"Madison Square Garden, New York City, New York, United States","place_type":"poi","strict_intent":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "poi", payload["matched_scope"])
		assert.EqualValues(t, 1, payload["count"])
		assert.Equal(t, []string{qMSG}, resultQuestions(payload))
	})

	t.Run("poi miss", func(t *testing.T) {
		rec, payload := s.post(t, "/api/v1/events/by-place",
			`{"name":"Unknown Stadium","place_name":"Unknown Stadium, New York City, New York, United States","place_type":["poi"],"strict_intent":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "poi", payload["matched_scope"])
		assert.EqualValues(t, 0, payload["count"])
		assert.Equal(t, []any{}, payload["results"])
	})

	t.Run("region stays in region", func(t *testing.T) {
		rec, payload := s.post(t, "/api/v1/events/by-place",
			`{"name":"Alaska","place_name":"Alaska, United States","place_type":["region"],"region":"Alaska","country":"United States","strict_intent":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "region", payload["matched_scope"])
		questions := resultQuestions(payload)
		assert.Contains(t, questions, qAlaska)
		assert.NotContains(t, questions, qMaine)
	})
}

func TestByPlaceValidation(t *testing.T) {
	s := newTestServer(t)

	rec, payload := s.post(t, "/api/v1/events/by-place", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name is required", payload["detail"])

	rec, _ = s.post(t, "/api/v1/events/by-place", `{"name":`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.post(t, "/api/v1/events/by-place", `{"name":"Austin","place_type":42}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/markets", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAnalyticsAndHealthChecks(t *testing.T) {
	s := newTestServer(t)
	s.get(t, "/api/v1/events/by-location", url.Values{"location": {"seattle"}})
	s.get(t, "/api/v1/events/by-location", url.Values{"location": {"seattle"}})

	rec, payload := s.get(t, "/api/v1/analytics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, payload["total_lookups"])
	top := payload["top_locations"].([]any)
	require.NotEmpty(t, top)
	assert.Equal(t, "seattle", top[0].(map[string]any)["location"])

	rec, _ = s.get(t, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, payload = s.get(t, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", payload["status"])
}
