// Package geocoder widens location queries through the Google Geocoding API.
// A call never fails the caller: every failure is reported as an Unresolved
// resolution carrying the reason.
package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/tracing"
)

const (
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"
	DefaultTimeout = 5 * time.Second

	// coordinatePrecision is the number of decimals kept on resolved
	// coordinates.
	coordinatePrecision = 6
	maxResponseBytes    = 4 << 20
)

// Reason says why a query was not resolved.
type Reason string

const (
	ReasonDisabled    Reason = "disabled"
	ReasonTransport   Reason = "transport"
	ReasonTimeout     Reason = "timeout"
	ReasonHTTPStatus  Reason = "http_status"
	ReasonDecode      Reason = "decode"
	ReasonStatus      Reason = "status"
	ReasonMalformed   Reason = "malformed"
	ReasonCircuitOpen Reason = "circuit_open"
)

// ResolvedPlace is the canonical place returned by the provider together with
// the index tokens derived from it.
type ResolvedPlace struct {
	FormattedAddress string   `json:"formatted_address"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Candidates       []string `json:"candidates"`
}

// Resolution is either resolved, with Place set, or unresolved, with Reason
// set and Err holding the underlying failure when there was one.
type Resolution struct {
	Place  *ResolvedPlace
	Reason Reason
	Err    error
}

func Resolved(place *ResolvedPlace) Resolution {
	return Resolution{Place: place}
}

func Unresolved(reason Reason, err error) Resolution {
	return Resolution{Reason: reason, Err: err}
}

// IsResolved reports whether r carries a place.
func (r Resolution) IsResolved() bool {
	return r.Place != nil
}

// Outcome is "resolved" or the unresolved reason.
func (r Resolution) Outcome() string {
	if r.IsResolved() {
		return "resolved"
	}
	return string(r.Reason)
}

// Resolver is the query-widening contract used by the search engine.
type Resolver interface {
	Resolve(ctx context.Context, query string) Resolution
}

type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	builder    *tokenizer.Builder
	parser     *parser.Parser
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client. An empty API key yields a disabled client that never
// performs network calls.
func New(cfg config.GeocoderConfig, builder *tokenizer.Builder, opts ...Option) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
		builder:    builder,
		parser:     parser.New(builder),
		logger:     slog.Default().With("component", "geocoder"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = resilience.NewCircuitBreaker("geocoder", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		OnStateChange: func(from, to resilience.State) {
			c.logger.Info("geocoder circuit state changed", "from", from.String(), "to", to.String())
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues("geocoder").Set(float64(to))
			}
		},
	})
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// BreakerState returns the state of the client's circuit breaker.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.GetState()
}

// Resolve geocodes query once within the client timeout.
func (c *Client) Resolve(ctx context.Context, query string) Resolution {
	if !c.Enabled() {
		return c.record(Unresolved(ReasonDisabled, nil))
	}

	ctx, span := tracing.StartChildSpan(ctx, "geocoder.resolve")
	defer span.End()

	var payload geocodeResponse
	err := c.breaker.Execute(func() error {
		var err error
		payload, err = resilience.Call(ctx, c.timeout, "geocoder", func(ctx context.Context) (geocodeResponse, error) {
			return c.fetch(ctx, query)
		})
		return err
	})

	var res Resolution
	if err != nil {
		res = Unresolved(classify(err), err)
		c.logger.Warn("geocoding request failed", "query", query, "reason", res.Reason, "error", err)
	} else {
		res = c.interpret(query, payload)
		if !res.IsResolved() {
			c.logger.Debug("geocoding returned no usable result", "query", query, "reason", res.Reason, "error", res.Err)
		}
	}
	span.SetAttr("outcome", res.Outcome())
	return c.record(res)
}

func (c *Client) record(res Resolution) Resolution {
	if c.metrics != nil {
		c.metrics.GeocoderRequestsTotal.WithLabelValues(res.Outcome()).Inc()
	}
	return res
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("geocoding API returned HTTP %d", e.code)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decoding geocoding response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) fetch(ctx context.Context, query string) (geocodeResponse, error) {
	var out geocodeResponse
	params := url.Values{}
	params.Set("address", query)
	params.Set("key", c.apiKey)
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return out, fmt.Errorf("creating geocoding request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, &statusError{code: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return out, &decodeError{err: err}
	}
	return out, nil
}

func classify(err error) Reason {
	var se *statusError
	var de *decodeError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &se):
		return ReasonHTTPStatus
	case errors.As(err, &de):
		return ReasonDecode
	default:
		return ReasonTransport
	}
}

type geocodeResponse struct {
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Results      []json.RawMessage `json:"results"`
}

type geocodeResult struct {
	FormattedAddress  *string         `json:"formatted_address"`
	Geometry          *geometry       `json:"geometry"`
	AddressComponents json.RawMessage `json:"address_components"`
}

type geometry struct {
	Location *latLng `json:"location"`
}

type latLng struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (c *Client) interpret(query string, payload geocodeResponse) Resolution {
	if payload.Status != "OK" {
		return Unresolved(ReasonStatus, fmt.Errorf("geocoding status %q: %s", payload.Status, payload.ErrorMessage))
	}
	if len(payload.Results) == 0 {
		return Unresolved(ReasonMalformed, errors.New("geocoding response has no results"))
	}
	var first geocodeResult
	if err := json.Unmarshal(payload.Results[0], &first); err != nil {
		return Unresolved(ReasonMalformed, fmt.Errorf("decoding first result: %w", err))
	}
	if first.FormattedAddress == nil || first.Geometry == nil || first.Geometry.Location == nil ||
		first.Geometry.Location.Lat == nil || first.Geometry.Location.Lng == nil {
		return Unresolved(ReasonMalformed, errors.New("first result lacks formatted_address or location"))
	}

	candidates := c.builder.BuildSet(*first.FormattedAddress)
	for _, v := range c.parser.Loose(query) {
		candidates[v] = struct{}{}
	}
	c.addComponentCandidates(candidates, first.AddressComponents)
	c.builder.Aliases().Expand(candidates)

	return Resolved(&ResolvedPlace{
		FormattedAddress: *first.FormattedAddress,
		Latitude:         ingestion.Round(*first.Geometry.Location.Lat, coordinatePrecision),
		Longitude:        ingestion.Round(*first.Geometry.Location.Lng, coordinatePrecision),
		Candidates:       tokenizer.SortedTokens(candidates),
	})
}

// addComponentCandidates adds the names of every typed address component,
// plus locality/region/country combinations. The first component seen for a
// type wins.
func (c *Client) addComponentCandidates(candidates map[string]struct{}, raw json.RawMessage) {
	var components []any
	if len(raw) == 0 || json.Unmarshal(raw, &components) != nil {
		return
	}
	byType := make(map[string]string)
	byTypeShort := make(map[string]string)

	for _, item := range components {
		component, ok := item.(map[string]any)
		if !ok {
			continue
		}
		types, ok := component["types"].([]any)
		if !ok {
			continue
		}
		longName, hasLong := component["long_name"].(string)
		shortName, hasShort := component["short_name"].(string)
		if hasLong {
			candidates[c.builder.Normalize(longName)] = struct{}{}
		}
		if hasShort {
			candidates[c.builder.Normalize(shortName)] = struct{}{}
		}
		for _, t := range types {
			componentType, ok := t.(string)
			if !ok {
				continue
			}
			if _, seen := byType[componentType]; hasLong && !seen {
				byType[componentType] = longName
			}
			if _, seen := byTypeShort[componentType]; hasShort && !seen {
				byTypeShort[componentType] = shortName
			}
		}
	}

	locality := byType["locality"]
	region := byType["administrative_area_level_1"]
	regionShort := byTypeShort["administrative_area_level_1"]
	country := byType["country"]
	countryShort := byTypeShort["country"]

	combinations := []string{
		locality,
		region,
		regionShort,
		country,
		countryShort,
		join(locality, regionShort),
		join(locality, region),
		join(locality, country),
		join(region, country),
	}
	for _, candidate := range combinations {
		if strings.TrimSpace(candidate) != "" {
			candidates[c.builder.Normalize(candidate)] = struct{}{}
		}
	}
	delete(candidates, "")
}

func join(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	return a + " " + b
}
