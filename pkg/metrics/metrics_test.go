package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.LocationQueriesTotal.WithLabelValues("exact").Inc()
	m.LocationQueriesTotal.WithLabelValues("exact").Inc()
	m.GeocoderRequestsTotal.WithLabelValues("disabled").Inc()
	m.IndexTokens.Set(42)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["location_queries_total"])
	assert.Equal(t, 1.0, values["geocoder_requests_total"])
	assert.Equal(t, 42.0, values["index_tokens"])
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry(reg)
	assert.Panics(t, func() { NewWithRegistry(reg) })
}

func TestServerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.IndexRecords.Set(7)
	m.CircuitBreakerState.WithLabelValues("geocoder").Set(1)

	srv := NewServer(9090, reg)
	assert.Equal(t, ":9090", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "index_records 7")
	assert.Contains(t, rec.Body.String(), `circuit_breaker_state{name="geocoder"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), `href="/metrics"`)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
