package analytics

import (
	"log/slog"
)

// Publisher forwards events to the analytics topic.
type Publisher interface {
	Track(key string, value any)
}

// Collector records lookup events in the local aggregator and, when a
// publisher is configured, forwards them to Kafka.
type Collector struct {
	local     *Aggregator
	publisher Publisher
	logger    *slog.Logger
}

// NewCollector creates a Collector. Either argument may be nil.
func NewCollector(local *Aggregator, publisher Publisher) *Collector {
	return &Collector{
		local:     local,
		publisher: publisher,
		logger:    slog.Default().With("component", "analytics-collector"),
	}
}

func (c *Collector) Track(event LocationSearchEvent) {
	if c.local != nil {
		c.local.Record(event)
	}
	if c.publisher != nil {
		c.publisher.Track(string(event.Type), event)
	}
}

// Aggregator returns the local aggregator, or nil.
func (c *Collector) Aggregator() *Aggregator {
	return c.local
}
