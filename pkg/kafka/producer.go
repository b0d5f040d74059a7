package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
)

// HeaderEventType carries Event.Key so consumers can route without decoding
// the payload.
const HeaderEventType = "event-type"

// Event is one analytics record. Key selects the partition and Value is
// encoded as JSON.
type Event struct {
	Key   string
	Value any
}

// ProducerStats summarises writer activity since the last call.
type ProducerStats struct {
	Writes   int64
	Messages int64
	Errors   int64
}

// Producer publishes JSON-encoded events to one topic.
type Producer struct {
	writer  *kafka.Writer
	brokers []string
	now     func() time.Time
	logger  *slog.Logger
}

// NewProducer creates a Producer for topic. Messages with the same key land
// on the same partition, so one lookup type stays ordered.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    200,
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return &Producer{
		writer:  w,
		brokers: cfg.Brokers,
		now:     time.Now,
		logger:  slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// PublishBatch encodes events and writes them in one call. An event that
// cannot be encoded is logged and left out; the rest are still written.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages, skipped := p.encode(events)
	if skipped > 0 {
		p.logger.Warn("events skipped, payload not encodable", "skipped", skipped)
	}
	if len(messages) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		var werr kafka.WriteErrors
		if errors.As(err, &werr) {
			p.logger.Error("batch partially published", "failed", werr.Count(), "count", len(messages))
		}
		return fmt.Errorf("publishing %d events to kafka: %w", len(messages), err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

func (p *Producer) encode(events []Event) ([]kafka.Message, int) {
	messages := make([]kafka.Message, 0, len(events))
	skipped := 0
	ts := p.now()
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			skipped++
			continue
		}
		messages = append(messages, kafka.Message{
			Key:     []byte(event.Key),
			Value:   value,
			Time:    ts,
			Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(event.Key)}},
		})
	}
	return messages, skipped
}

// Stats returns the writer counters accumulated since the previous call.
func (p *Producer) Stats() ProducerStats {
	s := p.writer.Stats()
	return ProducerStats{Writes: s.Writes, Messages: s.Messages, Errors: s.Errors}
}

// Ping dials the first reachable broker. It backs the readiness check.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("dialing kafka: no brokers configured")
	}
	var errs []error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("dialing kafka: %w", errors.Join(errs...))
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
