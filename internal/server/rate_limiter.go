// Package server implements a token bucket rate limiter for per-connection
// throttling of chat messages relayed to a room.
package server

import (
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// rateLimiter is the chat budget of one room connection: up to capacity
// messages in a burst, refilled at capacity per refill interval. A message
// over budget is dropped by the room handler and never relayed; renames and
// the join frame do not spend tokens.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
	onDrop    func()
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	rate := float64(capacity) / interval.Seconds()
	if rate <= 0 {
		rate = float64(capacity)
	}

	return &rateLimiter{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      rate,
		lastCheck: time.Now(),
		now:       time.Now,
		onDrop:    func() {},
	}
}

// throttleFactory returns a constructor of fresh per-connection limiters.
// onDrop, when set, is called for every message a limiter refuses.
func throttleFactory(cfg RateLimitConfig, onDrop func()) func() protocol.Throttle {
	return func() protocol.Throttle {
		rl := newRateLimiter(cfg.Burst, cfg.RefillInterval)
		if onDrop != nil {
			rl.onDrop = onDrop
		}
		return rl
	}
}

// Allow consumes one token and reports whether one was available.
func (rl *rateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}

	if rl.tokens < 1 {
		rl.onDrop()
		return false
	}

	rl.tokens--
	return true
}
