// Package cache stores rendered search responses in Redis. Concurrent misses
// for the same key are collapsed into one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/redis"
)

const keyPrefix = "markets:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResponseCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *ResponseCache {
	return &ResponseCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "response-cache"),
	}
}

func (c *ResponseCache) Get(ctx context.Context, query string) ([]byte, bool) {
	key := BuildKey(query)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", query, "key", key)
	return []byte(data), true
}

func (c *ResponseCache) Set(ctx context.Context, query string, body []byte) {
	key := BuildKey(query)
	if err := c.store.Set(ctx, key, body, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached body for query, or computes, stores and
// returns it. The boolean reports a cache hit.
func (c *ResponseCache) GetOrCompute(
	ctx context.Context,
	query string,
	computeFn func() ([]byte, error),
) ([]byte, bool, error) {
	if body, ok := c.Get(ctx, query); ok {
		return body, true, nil
	}
	key := BuildKey(query)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		body, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, body)
		return body, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]byte), false, nil
}

func (c *ResponseCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ResponseCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResponseCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResponseCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the trimmed, whitespace-collapsed query. Case is kept
// because the response echoes the query.
func BuildKey(query string) string {
	raw := strings.Join(strings.Fields(query), " ")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
