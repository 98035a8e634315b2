package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket: capacity tokens, refilled continuously so
// that a full bucket is restored every interval.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	perSecond float64
	last      time.Time
	now       func() time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	rl := &rateLimiter{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		perSecond: float64(capacity) / interval.Seconds(),
		now:       time.Now,
	}
	rl.last = rl.now()
	return rl
}

// allow takes one token if available.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.last).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.perSecond)
	}
	rl.last = now

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}
