package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/resilience"
)

const austinResponse = `{
  "status": "OK",
  "results": [{
    "formatted_address": "Austin, TX, USA",
    "geometry": {"location": {"lat": 30.26715312, "lng": -97.74306081}},
    "address_components": [
      {"long_name": "Austin", "short_name": "Austin", "types": ["locality", "political"]},
      {"long_name": "Travis County", "short_name": "Travis County", "types": ["administrative_area_level_2", "political"]},
      {"long_name": "Texas", "short_name": "TX", "types": ["administrative_area_level_1", "political"]},
      {"long_name": "United States", "short_name": "US", "types": ["country", "political"]},
      {"long_name": "Ignored Untyped"}
    ]
  }]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg config.GeocoderConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	return New(cfg, tokenizer.Default())
}

func TestResolveBuildsCandidates(t *testing.T) {
	var gotAddress, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(austinResponse))
	}, config.GeocoderConfig{})

	res := c.Resolve(context.Background(), "austin tx")
	require.True(t, res.IsResolved(), "reason=%s err=%v", res.Reason, res.Err)
	assert.Equal(t, "austin tx", gotAddress)
	assert.Equal(t, "test-key", gotKey)

	place := res.Place
	assert.Equal(t, "Austin, TX, USA", place.FormattedAddress)
	assert.Equal(t, 30.267153, place.Latitude)
	assert.Equal(t, -97.743061, place.Longitude)

	for _, want := range []string{
		"austin",
		"austin tx",
		"austin texas",
		"austin united states",
		"texas united states",
		"texas",
		"tx",
		"travis county",
		"united states",
		"us",
		"usa",
		"america",
	} {
		assert.Contains(t, place.Candidates, want)
	}
	assert.NotContains(t, place.Candidates, "ignored untyped")
	assert.IsIncreasing(t, place.Candidates)
	assert.Equal(t, "resolved", res.Outcome())
}

func TestResolveDisabledMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(config.GeocoderConfig{BaseURL: srv.URL, APIKey: "   "}, tokenizer.Default())
	assert.False(t, c.Enabled())

	res := c.Resolve(context.Background(), "austin")
	assert.False(t, res.IsResolved())
	assert.Equal(t, ReasonDisabled, res.Reason)
	assert.Zero(t, calls.Load())
}

func TestResolveFailureReasons(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    Reason
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: ReasonHTTPStatus,
		},
		{
			name: "decode",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": `))
			},
			want: ReasonDecode,
		},
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
			},
			want: ReasonStatus,
		},
		{
			name: "no results",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": "OK", "results": []}`))
			},
			want: ReasonMalformed,
		},
		{
			name: "missing location",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": "OK", "results": [{"formatted_address": "Somewhere"}]}`))
			},
			want: ReasonMalformed,
		},
		{
			name: "wrong field type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": "OK", "results": [{"formatted_address": 7, "geometry": {"location": {"lat": 1, "lng": 2}}}]}`))
			},
			want: ReasonMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler, config.GeocoderConfig{})
			res := c.Resolve(context.Background(), "somewhere")
			assert.False(t, res.IsResolved())
			assert.Equal(t, tt.want, res.Reason)
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, config.GeocoderConfig{Timeout: 50 * time.Millisecond})

	res := c.Resolve(context.Background(), "slow")
	assert.Equal(t, ReasonTimeout, res.Reason)
}

func TestResolveTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(config.GeocoderConfig{APIKey: "k", BaseURL: url}, tokenizer.Default())
	res := c.Resolve(context.Background(), "anywhere")
	assert.Equal(t, ReasonTransport, res.Reason)
}

func TestResolveCircuitOpens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, config.GeocoderConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	c.Resolve(context.Background(), "a")
	c.Resolve(context.Background(), "b")
	res := c.Resolve(context.Background(), "c")

	assert.Equal(t, ReasonCircuitOpen, res.Reason)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, resilience.StateOpen, c.BreakerState())
}
