package wsconn

import (
	"sync"
	"time"
)

// RateLimiter is a simple refilling token bucket. Grounded on
// pkg/websocket/security/rate_limiter.go; applied to the outbound
// Send/SendAndWait path (supplemental feature, SPEC_FULL §2) rather than
// the donor's inbound-only use, since silently dropping an outbound
// request would violate the "every pending request signalled exactly
// once" invariant (spec §3).
type RateLimiter interface {
	Allow() bool
	Reset()
}

type rateLimiter struct {
	mutex sync.Mutex

	tokens     int
	capacity   int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter returns a token bucket with the given capacity and
// refill period. A zero capacity disables limiting (Allow always true).
func NewRateLimiter(capacity int, refillRate time.Duration) RateLimiter {
	return &rateLimiter{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (rl *rateLimiter) Allow() bool {
	if rl.capacity <= 0 {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= rl.refillRate {
		rl.tokens = rl.capacity
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}

	return false
}

func (rl *rateLimiter) Reset() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	rl.tokens = rl.capacity
	rl.lastRefill = time.Now()
}
