package handler

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/ratelimit"
)

// RouterConfig holds the optional collaborators of the HTTP surface.
type RouterConfig struct {
	Checker   *health.Checker
	Analytics *analytics.Handler
	Metrics   *metrics.Metrics
	Limiter   *ratelimit.Limiter
	CORS      middleware.CORSConfig
	Timeout   time.Duration
}

// NewRouter registers every route and wraps the mux in the middleware chain
// RequestID, CORS, Metrics, RateLimit, Timeout (outermost first).
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /markets", h.Markets)
	mux.HandleFunc("GET /api/v1/events/by-location", h.EventsByLocation)
	mux.HandleFunc("POST /api/v1/events/by-place", h.EventsByPlace)
	mux.HandleFunc("GET /api/v1/markets/coordinates", h.Coordinates)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if cfg.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", cfg.Analytics.Stats)
	}
	if cfg.Checker != nil {
		mux.HandleFunc("GET /health/live", cfg.Checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Checker.ReadyHandler())
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Timeout)(chain)
	if cfg.Limiter != nil {
		chain = middleware.RateLimit(cfg.Limiter)(chain)
	}
	if cfg.Metrics != nil {
		chain = middleware.Metrics(cfg.Metrics)(chain)
	}
	chain = middleware.CORS(cfg.CORS)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
