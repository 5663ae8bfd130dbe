// Package ratelimit implements admission rate limiting for new connections
// and for the plain HTTP surface.
package ratelimit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// janitorInterval is how often empty source-address entries are reclaimed.
const janitorInterval = time.Minute

// ConnLimiter is a sliding-window admission limiter keyed by source address.
// Each key holds the timestamps of its recent admissions; a new connection is
// admitted only while fewer than limit timestamps fall inside the window.
type ConnLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewConnLimiter creates a limiter admitting at most limit connections per
// window for each source key.
func NewConnLimiter(limit int, window time.Duration) *ConnLimiter {
	return &ConnLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow records and admits an attempt from key, or refuses it when the key
// already has limit admissions inside the current window. Refusal does not
// consume window budget.
func (rl *ConnLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	attempts := rl.attempts[key]
	recent := attempts[expiredCount(attempts, cutoff):]

	if len(recent) >= rl.limit {
		rl.attempts[key] = recent
		return false
	}

	rl.attempts[key] = append(recent, now)
	return true
}

// Run reclaims fully-expired keys at minute granularity until the context is
// cancelled, bounding memory under source-address churn.
func (rl *ConnLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *ConnLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for key, times := range rl.attempts {
		recent := times[expiredCount(times, cutoff):]
		if len(recent) == 0 {
			delete(rl.attempts, key)
		} else {
			rl.attempts[key] = recent
		}
	}
}

// expiredCount returns how many leading timestamps are at or before cutoff.
// Only timestamps strictly inside the window count against the limit.
// Timestamps are appended in order, so the slice is sorted.
func expiredCount(attempts []time.Time, cutoff time.Time) int {
	idx, _ := slices.BinarySearchFunc(attempts, cutoff, func(t, cutoff time.Time) int {
		if t.After(cutoff) {
			return 1
		}
		return -1
	})
	return idx
}

// trackedKeys returns the number of source keys currently held.
func (rl *ConnLimiter) trackedKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.attempts)
}
