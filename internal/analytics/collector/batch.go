// Package collector batches analytics events and flushes them to Kafka in
// bulk.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/kafka"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	finalFlushTimeout    = 5 * time.Second
)

// BatchPublisher writes a batch of events to the broker.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Stats counts what the collector has done since it was created.
type Stats struct {
	Published     int64 `json:"published"`
	Dropped       int64 `json:"dropped"`
	FailedFlushes int64 `json:"failed_flushes"`
	Pending       int   `json:"pending"`
}

// Option configures a BatchCollector.
type Option func(*BatchCollector)

// WithBatchSize sets how many pending events trigger an early flush.
func WithBatchSize(n int) Option {
	return func(bc *BatchCollector) {
		if n > 0 {
			bc.batchSize = n
		}
	}
}

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(bc *BatchCollector) {
		if d > 0 {
			bc.flushInterval = d
		}
	}
}

// WithMaxPending caps the buffer. Past the cap the oldest events are dropped.
// The default is three batches.
func WithMaxPending(n int) Option {
	return func(bc *BatchCollector) {
		if n > 0 {
			bc.maxPending = n
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(bc *BatchCollector) {
		if l != nil {
			bc.logger = l
		}
	}
}

// BatchCollector accumulates lookup events and hands them to the broker in
// batches, either when batchSize events are pending or every flushInterval.
// Publishing never happens on the request path.
type BatchCollector struct {
	producer      BatchPublisher
	batchSize     int
	maxPending    int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  []kafka.Event
	flushMu sync.Mutex
	kick    chan struct{}
	done    chan struct{}

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewBatchCollector creates a collector publishing through producer.
func NewBatchCollector(producer BatchPublisher, opts ...Option) *BatchCollector {
	bc := &BatchCollector{
		producer:      producer,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		kick:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(bc)
	}
	if bc.maxPending < bc.batchSize {
		bc.maxPending = bc.batchSize * 3
	}
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	return bc
}

// Start runs the flush loop in the background. Cancelling ctx triggers one
// last flush with its own deadline; Close waits for it.
func (bc *BatchCollector) Start(ctx context.Context) {
	go bc.run(ctx)
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"max_pending", bc.maxPending,
		"flush_interval", bc.flushInterval,
	)
}

func (bc *BatchCollector) run(ctx context.Context) {
	defer close(bc.done)
	ticker := time.NewTicker(bc.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bc.Flush(ctx)
		case <-bc.kick:
			bc.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			bc.Flush(flushCtx)
			cancel()
			return
		}
	}
}

// Track buffers an event under key. Reaching batchSize wakes the flush loop.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: key, Value: value})
	bc.trimLocked()
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		select {
		case bc.kick <- struct{}{}:
		default:
		}
	}
}

// Close waits for the flush loop started by Start to finish.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// BufferLen returns the number of events waiting to be published.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Stats returns a snapshot of the collector counters.
func (bc *BatchCollector) Stats() Stats {
	return Stats{
		Published:     bc.published.Load(),
		Dropped:       bc.dropped.Load(),
		FailedFlushes: bc.failed.Load(),
		Pending:       bc.BufferLen(),
	}
}

// Flush publishes everything pending. A failed batch goes back to the front
// of the buffer, subject to maxPending.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.producer.PublishBatch(ctx, batch); err != nil {
		bc.failed.Add(1)
		bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		bc.trimLocked()
		bc.mu.Unlock()
		return
	}

	bc.published.Add(int64(len(batch)))
	bc.logger.Debug("batch flushed", "events", len(batch))
}

func (bc *BatchCollector) trimLocked() {
	over := len(bc.buffer) - bc.maxPending
	if over <= 0 {
		return
	}
	bc.buffer = append(bc.buffer[:0:0], bc.buffer[over:]...)
	bc.dropped.Add(int64(over))
	bc.logger.Warn("analytics buffer full, oldest events dropped", "dropped", over)
}
