package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/inferkit/inferkit/errors"
)

// RateLimiterConfig configures a token bucket rate limiter.
type RateLimiterConfig struct {
	// Name identifies this limiter for logging and diagnostics.
	Name string `yaml:"name" mapstructure:"name"`
	// RequestsPerMinute is the sustained admission rate.
	RequestsPerMinute float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	// Burst is the bucket capacity. Defaults to RequestsPerMinute/6, i.e.
	// ten seconds worth of traffic.
	Burst float64 `yaml:"burst" mapstructure:"burst"`
	// Disabled turns the limiter into a pass-through that grants every
	// acquisition unconditionally. Grants are still counted in stats.
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`
}

// DefaultRateLimiterConfig returns sensible defaults: 60 requests per minute
// with a burst of 10.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{
		Name:              name,
		RequestsPerMinute: 60,
		Burst:             10,
	}
}

// RateLimiter is a token bucket admission controller. Tokens are a
// continuous quantity refilled lazily from elapsed wall-clock time; every
// admitted operation consumes exactly one token.
//
// Fairness is not guaranteed: concurrent waiters are not served in arrival
// order. Callers must not assume FIFO behavior.
type RateLimiter struct {
	config  RateLimiterConfig
	ratePer float64 // tokens per second

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time

	granted   uint64
	denied    uint64
	timedOut  uint64
	waits     uint64
	totalWait time.Duration
}

// NewRateLimiter creates a new rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.Burst <= 0 {
		config.Burst = config.RequestsPerMinute / 6
		if config.Burst < 1 {
			config.Burst = 1
		}
	}

	return &RateLimiter{
		config:     config,
		ratePer:    config.RequestsPerMinute / 60.0,
		tokens:     config.Burst,
		lastRefill: time.Now(),
	}
}

// Name returns the limiter name.
func (rl *RateLimiter) Name() string { return rl.config.Name }

// Acquire consumes one token, sleeping until one regenerates if the bucket
// is empty. The context deadline is the caller's acquisition timeout: when
// the projected wait would overshoot it, Acquire returns a
// RATE_LIMIT_TIMEOUT error without sleeping. Context cancellation during a
// sleep returns the context error.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if rl.config.Disabled {
		rl.mu.Lock()
		rl.granted++
		rl.mu.Unlock()
		return nil
	}

	for {
		wait, ok := rl.takeOrWait()
		if ok {
			return nil
		}

		if deadline, has := ctx.Deadline(); has && time.Now().Add(wait).After(deadline) {
			rl.mu.Lock()
			rl.timedOut++
			rl.mu.Unlock()
			return errors.RateLimitTimeout().
				WithDetail("limiter", rl.config.Name).
				WithDetail("wait", wait.String())
		}

		rl.mu.Lock()
		rl.waits++
		rl.totalWait += wait
		rl.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Another waiter may have taken the regenerated token; loop
			// and recompute.
		}
	}
}

// TryAcquire consumes one token if immediately available. It never sleeps.
func (rl *RateLimiter) TryAcquire() bool {
	if rl.config.Disabled {
		rl.mu.Lock()
		rl.granted++
		rl.mu.Unlock()
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	if rl.tokens >= 1 {
		rl.tokens--
		rl.granted++
		return true
	}
	rl.denied++
	return false
}

// Tokens returns the current token count after a lazy refill, without
// consuming anything. Diagnostic only.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.tokens
}

// Stats returns a snapshot of limiter activity.
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	return RateLimiterStats{
		Granted:         rl.granted,
		Denied:          rl.denied,
		TimedOut:        rl.timedOut,
		Waits:           rl.waits,
		TotalWait:       rl.totalWait,
		AvailableTokens: rl.tokens,
	}
}

// ResetStats zeroes the cumulative counters. The bucket itself is untouched.
func (rl *RateLimiter) ResetStats() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.granted = 0
	rl.denied = 0
	rl.timedOut = 0
	rl.waits = 0
	rl.totalWait = 0
}

// takeOrWait consumes a token if one is available, otherwise returns how
// long until the bucket regenerates a full token.
func (rl *RateLimiter) takeOrWait() (wait time.Duration, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	if rl.tokens >= 1 {
		rl.tokens--
		rl.granted++
		return 0, true
	}

	waitSeconds := (1 - rl.tokens) / rl.ratePer
	return time.Duration(waitSeconds * float64(time.Second)), false
}

// refillLocked adds tokens for the elapsed wall-clock time, capped at the
// burst capacity. Callers must hold rl.mu.
func (rl *RateLimiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.ratePer
	if rl.tokens > rl.config.Burst {
		rl.tokens = rl.config.Burst
	}
}
