package kafka

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
)

func TestDecodeJSON(t *testing.T) {
	type event struct {
		Type string `json:"type"`
		Hits int    `json:"total_hits"`
	}
	got, err := DecodeJSON[event]([]byte(`{"type":"by_location","total_hits":3}`))
	require.NoError(t, err)
	assert.Equal(t, event{Type: "by_location", Hits: 3}, got)

	_, err = DecodeJSON[event]([]byte(`nope`))
	assert.Error(t, err)
}

func TestFromBeginning(t *testing.T) {
	rc := kafka.ReaderConfig{StartOffset: kafka.LastOffset}
	FromBeginning()(&rc)
	assert.Equal(t, kafka.FirstOffset, rc.StartOffset)
}

func TestProducerEncodeSkipsUnencodable(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, "location-search-events")
	defer p.Close()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	messages, skipped := p.encode([]Event{
		{Key: "by_location", Value: map[string]string{"location": "Austin"}},
		{Key: "markets", Value: math.Inf(1)},
	})
	assert.Equal(t, 1, skipped)
	require.Len(t, messages, 1)
	assert.Equal(t, "by_location", string(messages[0].Key))
	assert.JSONEq(t, `{"location":"Austin"}`, string(messages[0].Value))
	assert.Equal(t, fixed, messages[0].Time)
	assert.Equal(t, []kafka.Header{{Key: HeaderEventType, Value: []byte("by_location")}}, messages[0].Headers)
}

func TestProducerPingWithoutBrokers(t *testing.T) {
	p := NewProducer(config.KafkaConfig{}, "location-search-events")
	defer p.Close()
	err := p.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
