package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/kafka"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalLookups        int64            `json:"total_lookups"`
	ByType              map[string]int64 `json:"by_type"`
	ByMode              map[string]int64 `json:"by_mode"`
	CacheHits           int64            `json:"cache_hits"`
	CacheMisses         int64            `json:"cache_misses"`
	ZeroResultCount     int64            `json:"zero_result_count"`
	GeocoderOutcomes    map[string]int64 `json:"geocoder_outcomes"`
	AvgLatencyMs        float64          `json:"avg_latency_ms"`
	P50LatencyMs        int64            `json:"p50_latency_ms"`
	P95LatencyMs        int64            `json:"p95_latency_ms"`
	P99LatencyMs        int64            `json:"p99_latency_ms"`
	TopLocations        []LocationCount  `json:"top_locations"`
	ZeroResultLocations []LocationCount  `json:"zero_result_locations"`
	QueriesPerMinute    float64          `json:"queries_per_minute"`
}

type LocationCount struct {
	Location string `json:"location"`
	Count    int64  `json:"count"`
}

// Aggregator keeps running statistics over lookup events. It is safe for
// concurrent use.
type Aggregator struct {
	mu               sync.RWMutex
	totalLookups     atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	zeroResults      atomic.Int64
	latencies        []int64
	next             int
	byType           map[string]int64
	byMode           map[string]int64
	geocoderOutcomes map[string]int64
	locationCounts   map[string]int64
	zeroResultCounts map[string]int64
	startTime        time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:        make([]int64, 0, 1024),
		byType:           make(map[string]int64),
		byMode:           make(map[string]int64),
		geocoderOutcomes: make(map[string]int64),
		locationCounts:   make(map[string]int64),
		zeroResultCounts: make(map[string]int64),
		startTime:        time.Now(),
		logger:           slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start consumes events from consumer until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context, consumer *kafka.Consumer) error {
	a.logger.Info("analytics aggregator starting")
	return consumer.Start(ctx)
}

// HandleEvent returns a Kafka message handler that records decoded events.
// Undecodable messages are returned as errors so the consumer counts and
// skips them.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[LocationSearchEvent](value)
		if err != nil {
			return fmt.Errorf("analytics event %q: %w", key, err)
		}
		agg.Record(event)
		return nil
	}
}

// Record adds event to the running statistics.
func (a *Aggregator) Record(event LocationSearchEvent) {
	a.totalLookups.Add(1)
	if event.Type == EventMarkets {
		if event.CacheHit {
			a.cacheHits.Add(1)
		} else {
			a.cacheMisses.Add(1)
		}
	}
	if event.TotalHits == 0 {
		a.zeroResults.Add(1)
	}

	location := event.Normalized
	if location == "" {
		location = event.Query
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.byType[string(event.Type)]++
	if event.Mode != "" {
		a.byMode[event.Mode]++
	}
	if event.GeocoderOutcome != "" {
		a.geocoderOutcomes[event.GeocoderOutcome]++
	}
	a.locationCounts[location]++
	if event.TotalHits == 0 {
		a.zeroResultCounts[location]++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalLookups:     a.totalLookups.Load(),
		ByType:           copyCounts(a.byType),
		ByMode:           copyCounts(a.byMode),
		CacheHits:        a.cacheHits.Load(),
		CacheMisses:      a.cacheMisses.Load(),
		ZeroResultCount:  a.zeroResults.Load(),
		GeocoderOutcomes: copyCounts(a.geocoderOutcomes),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopLocations = topN(a.locationCounts, 10)
	stats.ZeroResultLocations = topN(a.zeroResultCounts, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalLookups) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent locations, ties broken alphabetically.
func topN(counts map[string]int64, n int) []LocationCount {
	result := make([]LocationCount, 0, len(counts))
	for location, count := range counts {
		result = append(result, LocationCount{Location: location, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Location < result[j].Location
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func copyCounts(counts map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
