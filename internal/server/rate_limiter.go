// Package server implements token bucket rate limiters that throttle chat
// and location events per connection.
package server

import (
	"sync"
	"time"
)

type rateLimiter struct {
	mu        sync.Mutex
	now       func() time.Time
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

func newRateLimiter(cfg RateLimitConfig, now func() time.Time) *rateLimiter {
	capacity := cfg.Burst
	if capacity <= 0 {
		capacity = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}

	return &rateLimiter{
		now:       now,
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      float64(capacity) / interval.Seconds(),
		lastCheck: now(),
	}
}

func (rl *rateLimiter) allow() bool {
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
		return false
	}

	rl.tokens--
	return true
}

// eventLimiter keeps location fixes from starving chat and vice versa.
type eventLimiter struct {
	chat *rateLimiter
	fix  *rateLimiter
}

func newEventLimiter(cfg *Config, now func() time.Time) *eventLimiter {
	return &eventLimiter{
		chat: newRateLimiter(cfg.RateLimit, now),
		fix:  newRateLimiter(cfg.FixRateLimit, now),
	}
}

// allow reports whether an inbound event of the given type is within budget.
// Handshake and leave events are never limited.
func (l *eventLimiter) allow(eventType string) bool {
	switch eventType {
	case inboundMessage, inboundDirect:
		return l.chat.allow()
	case inboundFix:
		return l.fix.allow()
	default:
		return true
	}
}
