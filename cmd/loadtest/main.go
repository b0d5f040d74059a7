// Command loadtest drives concurrent lookups against a running searcher and
// reports throughput, latency percentiles and match modes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Endpoint    string
	Strict      bool
	Locations   []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	zeroResults   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]int64
	modes         map[string]int64
	mu            sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
		modes:       make(map[string]int64),
	}
}

type lookupSummary struct {
	Mode  string `json:"mode"`
	Count int    `json:"count"`
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, summary *lookupSummary, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.mu.Lock()
	s.statusCodes[statusCode]++
	if summary != nil {
		mode := summary.Mode
		if mode == "" {
			mode = "loose"
		}
		s.modes[mode]++
	}
	s.mu.Unlock()
	if summary != nil && summary.Count == 0 {
		s.zeroResults.Add(1)
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	endpoint := flag.String("endpoint", "by-location", "by-location, markets or mixed")
	strict := flag.Bool("strict", true, "strict flag sent to by-location")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Endpoint:    *endpoint,
		Strict:      *strict,
		Locations: []string{
			"New York City",
			"nyc",
			"Austin, Texas, United States",
			"Texas",
			"Washington, DC",
			"London",
			"United Kingdom",
			"Paris, France",
			"Tokyo",
			"uae",
			"Los Angeles",
			"Kyiv, Ukraine",
			"Beijing",
			"texas hill country",
			"Atlantis",
		},
	}
	switch cfg.Endpoint {
	case "by-location", "markets", "mixed":
	default:
		fmt.Fprintf(os.Stderr, "unknown endpoint %q\n", cfg.Endpoint)
		os.Exit(2)
	}

	fmt.Println("=== Market Location Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Endpoint:    %s\n", cfg.Endpoint)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Locations:   %d unique\n", len(cfg.Locations))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func lookupURL(cfg Config, location string, n int) string {
	endpoint := cfg.Endpoint
	if endpoint == "mixed" {
		endpoint = "by-location"
		if n%2 == 1 {
			endpoint = "markets"
		}
	}
	if endpoint == "markets" {
		return fmt.Sprintf("%s/markets?query=%s", cfg.BaseURL, url.QueryEscape(location))
	}
	return fmt.Sprintf("%s/api/v1/events/by-location?location=%s&strict=%t&limit=20",
		cfg.BaseURL, url.QueryEscape(location), cfg.Strict)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		workerID := w
		g.Go(func() error {
			n := workerID
			for ctx.Err() == nil {
				location := cfg.Locations[n%len(cfg.Locations)]
				target := lookupURL(cfg, location, n)
				n++

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return fmt.Errorf("creating request: %w", err)
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					stats.RecordRequest(elapsed, 0, nil, err)
					continue
				}

				var summary *lookupSummary
				body, readErr := io.ReadAll(resp.Body)
				resp.Body.Close()
				if readErr == nil && resp.StatusCode == http.StatusOK {
					var s lookupSummary
					if json.Unmarshal(body, &s) == nil {
						summary = &s
					}
				}
				stats.RecordRequest(elapsed, resp.StatusCode, summary, nil)
			}
			return nil
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "\nload test aborted: %v\n", err)
	}
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failures := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", failures)
	fmt.Printf("Zero results:    %d\n", stats.zeroResults.Load())

	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failures)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()

	fmt.Println()
	fmt.Println("=== Match Modes ===")
	modes := make([]string, 0, len(stats.modes))
	for mode := range stats.modes {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	for _, mode := range modes {
		fmt.Printf("  %-9s %d\n", mode+":", stats.modes[mode])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
