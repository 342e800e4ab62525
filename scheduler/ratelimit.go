package scheduler

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter enforces per-client admission quotas with continuously
// refilling token buckets: a quota of 10 per 60s refills at one token every
// 6 seconds, so a client that burned its burst regains admissions steadily
// instead of all at once at a window edge.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	// capacity is the burst size (admissions available to an idle client)
	capacity float64
	// window is the time to refill a full capacity from empty
	window time.Duration

	now func() time.Time // injectable clock for tests
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewRateLimiter creates a limiter allowing capacity admissions per window
// per client.
func NewRateLimiter(capacity int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		capacity: float64(capacity),
		window:   window,
		now:      time.Now,
	}
}

// Allow consumes one token for the client if available. When denied, the
// returned duration is how long until the next token, for a Retry-After hint.
func (rl *RateLimiter) Allow(clientID string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[clientID]
	if !ok {
		b = &bucket{tokens: rl.capacity, lastFill: now}
		rl.buckets[clientID] = b
	}

	// Refill for elapsed time.
	rate := rl.capacity / rl.window.Seconds()
	b.tokens = math.Min(rl.capacity, b.tokens+now.Sub(b.lastFill).Seconds()*rate)
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	deficit := 1 - b.tokens
	return false, time.Duration(deficit / rate * float64(time.Second))
}

// Cleanup drops buckets that have fully refilled; an idle client's bucket
// carries no information. Returns the number removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rate := rl.capacity / rl.window.Seconds()
	removed := 0
	for id, b := range rl.buckets {
		if b.tokens+now.Sub(b.lastFill).Seconds()*rate >= rl.capacity {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup periodically until ctx ends.
func (rl *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()
}

// Tracked returns the number of clients with live buckets.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
