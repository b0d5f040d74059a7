// Package middleware provides the HTTP middleware shared by the services:
// request IDs, CORS, Prometheus metrics, rate limiting and timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/metrics"
)

// Metrics records request count, latency, response size and in-flight
// requests. It sits outside RateLimit so rejected requests are counted too.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			path := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			m.HTTPResponseBytes.WithLabelValues(path).Observe(float64(rw.bytes))
			if rw.status == http.StatusTooManyRequests {
				m.RateLimitedTotal.Inc()
			}
		})
	}
}

// recordingWriter captures the status code and the body size.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (rw *recordingWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *recordingWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// routes lists every path the services register. Anything else is labelled
// "other".
var routes = map[string]struct{}{
	"/health":                     {},
	"/health/live":                {},
	"/health/ready":               {},
	"/markets":                    {},
	"/api/v1/events/by-location":  {},
	"/api/v1/events/by-place":     {},
	"/api/v1/markets/coordinates": {},
	"/api/v1/analytics":           {},
	"/api/v1/analytics/snapshots": {},
	"/api/v1/cache/stats":         {},
	"/api/v1/cache/invalidate":    {},
}

func normalizePath(path string) string {
	if _, ok := routes[path]; ok {
		return path
	}
	return "other"
}
