package exchange

import (
	"sync"
	"time"
)

// tokenBucket is a continuously-refilling rate limiter: capacity tokens,
// refilled at rate tokens/second, drained by Allow.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate float64) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow reports whether one token is available and, if so, consumes it.
func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimiter groups the venue's independent rate-limited categories, one
// token bucket each: discovery polling and stream subscription.
type RateLimiter struct {
	discovery *tokenBucket
	subscribe *tokenBucket
}

// NewRateLimiter builds a limiter with venue-typical ceilings: discovery
// calls are infrequent (at startup, and on retry), subscribe messages are
// sent once per symbol at connect time.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		discovery: newTokenBucket(5, 1),
		subscribe: newTokenBucket(50, 10),
	}
}

func (r *RateLimiter) AllowDiscovery() bool { return r.discovery.Allow() }
func (r *RateLimiter) AllowSubscribe() bool { return r.subscribe.Allow() }
