// Package ratelimit implements an in-memory token-bucket limiter keyed by
// client address.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// entry tracks the token-bucket state for a single key.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter grants each key limit tokens per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time
}

// New creates a limiter allowing limit requests per window for each key.
func New(limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one token for key. When the bucket is empty it returns
// false and the time until the next token is available.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.entries[key]
	if !exists {
		l.entries[key] = &entry{tokens: float64(l.limit - 1), lastCheck: now}
		return true, 0
	}

	rate := l.rate()
	e.tokens = math.Min(float64(l.limit), e.tokens+now.Sub(e.lastCheck).Seconds()*rate)
	e.lastCheck = now

	if e.tokens < 1 {
		wait := time.Duration((1 - e.tokens) / rate * float64(time.Second))
		return false, wait
	}
	e.tokens--
	return true, 0
}

// Reset clears the state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartCleanup removes keys idle for two windows, every interval, until ctx
// is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastCheck.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

func (l *Limiter) rate() float64 {
	return float64(l.limit) / l.window.Seconds()
}
