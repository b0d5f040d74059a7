// Package kafka carries lookup analytics events over Kafka using
// segmentio/kafka-go. Events are JSON on the wire.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader    *kafka.Reader
	logger    *slog.Logger
	handler   MessageHandler
	processed atomic.Int64
	failed    atomic.Int64
}

// ConsumerStats summarises consumer progress.
type ConsumerStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Lag       int64 `json:"lag"`
}

const (
	fetchBackoffInitial = 100 * time.Millisecond
	fetchBackoffMax     = 5 * time.Second
)

// ConsumerOption adjusts the reader configuration.
type ConsumerOption func(*kafka.ReaderConfig)

// FromBeginning makes a new consumer group replay the topic from its first
// offset instead of only reading new events.
func FromBeginning() ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.StartOffset = kafka.FirstOffset }
}

// NewConsumer creates a Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	r := kafka.NewReader(rc)

	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled. Repeated fetch errors back off exponentially. A message the
// handler rejects is counted as failed and skipped without committing.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	backoff := fetchBackoffInitial
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return c.reader.Close()
			}
			backoff = min(backoff*2, fetchBackoffMax)
			continue
		}
		backoff = fetchBackoffInitial

		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"value_size", len(msg.Value),
		)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.failed.Add(1)
			c.logger.Warn("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		c.processed.Add(1)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Stats reports handled message counts and the reader's current lag.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
		Lag:       c.reader.Lag(),
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
