package analytics

import "time"

type EventType string

const (
	EventByLocation EventType = "by_location"
	EventMarkets    EventType = "markets"
	EventByPlace    EventType = "by_place"
)

// LocationSearchEvent describes one completed lookup.
type LocationSearchEvent struct {
	Type            EventType `json:"type"`
	Query           string    `json:"query"`
	Normalized      string    `json:"normalized"`
	Mode            string    `json:"mode"`
	Strict          bool      `json:"strict"`
	Variants        int       `json:"variants"`
	TotalHits       int       `json:"total_hits"`
	Returned        int       `json:"returned"`
	LatencyMs       int64     `json:"latency_ms"`
	CacheHit        bool      `json:"cache_hit"`
	GeocoderOutcome string    `json:"geocoder_outcome,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id"`
}
