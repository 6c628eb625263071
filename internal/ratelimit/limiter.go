// Package ratelimit spaces FSI API calls with a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RateLimiter implements a token bucket rate limiter.
// It allows bursts up to maxTokens, then refills at refillRate tokens/second.
type RateLimiter struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64
	lastRefill   time.Time
	lastWarnTime time.Time
	now          func() time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a bucket that starts full. A non-positive rate
// disables limiting.
func NewRateLimiter(tokensPerSecond float64, burstSize float64) *RateLimiter {
	if burstSize < 1 {
		burstSize = 1
	}
	return &RateLimiter{
		tokens:     burstSize,
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Wait blocks until a token is available or ctx is done. A nil limiter never
// blocks.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.refillRate <= 0 {
		return ctx.Err()
	}
	start := time.Now()
	for {
		wait, ok := rl.reserve()
		if ok {
			if d := time.Since(start); d > 5*time.Second {
				log.Debug().Dur("waited", d).Msg("rate limit wait completed")
			}
			return nil
		}
		rl.warn(wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes a token without blocking.
func (rl *RateLimiter) TryAcquire() bool {
	_, ok := rl.reserve()
	return ok
}

// reserve consumes a token if one is available, otherwise it reports how long
// until the next one.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	need := (1 - rl.tokens) / rl.refillRate
	return time.Duration(need * float64(time.Second)), false
}

func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

func (rl *RateLimiter) warn(wait time.Duration) {
	if wait < 2*time.Second {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.lastWarnTime) > 10*time.Second {
		log.Warn().Dur("wait", wait).Msg("rate limited, waiting for API capacity")
		rl.lastWarnTime = time.Now()
	}
}

// Tokens returns the currently available tokens.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}
