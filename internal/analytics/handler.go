package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	maxTop             = 50
	defaultHistorySize = 10
	maxHistorySize     = 100
)

// Snapshot is one persisted capture of the statistics.
type Snapshot struct {
	Stats      AggregatedStats `json:"stats"`
	CapturedAt time.Time       `json:"captured_at"`
}

// SnapshotLister returns persisted snapshots, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHistory enables the snapshot history endpoint.
func WithHistory(l SnapshotLister) HandlerOption {
	return func(h *Handler) { h.history = l }
}

// Handler serves the aggregated lookup statistics.
type Handler struct {
	aggregator *Aggregator
	history    SnapshotLister
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator, opts ...HandlerOption) *Handler {
	h := &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stats writes the live statistics. The optional top parameter (1..50)
// trims both location leaderboards.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()
	if raw := r.URL.Query().Get("top"); raw != "" {
		top, err := boundedInt(raw, maxTop)
		if err != nil {
			h.detail(w, http.StatusUnprocessableEntity, "top "+err.Error())
			return
		}
		stats.TopLocations = trim(stats.TopLocations, top)
		stats.ZeroResultLocations = trim(stats.ZeroResultLocations, top)
	}
	h.write(w, http.StatusOK, stats)
}

// History writes persisted snapshots, newest first. limit defaults to 10.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.detail(w, http.StatusNotFound, "snapshot history is not enabled")
		return
	}
	limit := defaultHistorySize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := boundedInt(raw, maxHistorySize)
		if err != nil {
			h.detail(w, http.StatusUnprocessableEntity, "limit "+err.Error())
			return
		}
		limit = n
	}
	snapshots, err := h.history.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list snapshots", "error", err)
		h.detail(w, http.StatusServiceUnavailable, "snapshot history unavailable")
		return
	}
	if snapshots == nil {
		snapshots = []Snapshot{}
	}
	h.write(w, http.StatusOK, map[string]any{"count": len(snapshots), "snapshots": snapshots})
}

func (h *Handler) detail(w http.ResponseWriter, status int, msg string) {
	h.write(w, status, map[string]string{"detail": msg})
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

func boundedInt(raw string, upper int) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		return 0, fmt.Errorf("must be between 1 and %d", upper)
	}
	return n, nil
}

func trim(counts []LocationCount, n int) []LocationCount {
	if len(counts) > n {
		return counts[:n]
	}
	return counts
}
