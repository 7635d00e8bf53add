package resilience

import (
	"sync/atomic"
	"time"
)

// retryCounters accumulates executor activity. Counters are atomic so that
// overlapping calls never lose updates.
type retryCounters struct {
	calls     atomic.Uint64
	attempts  atomic.Uint64
	retries   atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
	exhausted atomic.Uint64
}

// RetryStats is a point-in-time snapshot of executor activity.
type RetryStats struct {
	// Calls is the number of Do/Run invocations.
	Calls uint64 `json:"calls"`
	// Attempts is the total number of operation invocations.
	Attempts uint64 `json:"attempts"`
	// Retries is the number of backoff sleeps taken.
	Retries uint64 `json:"retries"`
	// Successes is the number of calls that returned a result.
	Successes uint64 `json:"successes"`
	// Failures is the number of calls that returned an error.
	Failures uint64 `json:"failures"`
	// Exhausted is the number of calls that consumed every attempt.
	Exhausted uint64 `json:"exhausted"`
}

// Stats returns a snapshot of the executor's counters.
func (e *Executor) Stats() RetryStats {
	return RetryStats{
		Calls:     e.stats.calls.Load(),
		Attempts:  e.stats.attempts.Load(),
		Retries:   e.stats.retries.Load(),
		Successes: e.stats.successes.Load(),
		Failures:  e.stats.failures.Load(),
		Exhausted: e.stats.exhausted.Load(),
	}
}

// ResetStats zeroes the executor's counters.
func (e *Executor) ResetStats() {
	e.stats.calls.Store(0)
	e.stats.attempts.Store(0)
	e.stats.retries.Store(0)
	e.stats.successes.Store(0)
	e.stats.failures.Store(0)
	e.stats.exhausted.Store(0)
}

// CircuitBreakerStats is a point-in-time snapshot of breaker activity.
type CircuitBreakerStats struct {
	// State is the current state name: closed, open or half-open.
	State string `json:"state"`
	// ConsecutiveFailures is the current failure streak in the closed state.
	ConsecutiveFailures uint64 `json:"consecutive_failures"`
	// Successes is the total number of successful dispatches.
	Successes uint64 `json:"successes"`
	// Failures is the total number of failed dispatches.
	Failures uint64 `json:"failures"`
	// Rejections is the number of calls refused without dispatch.
	Rejections uint64 `json:"rejections"`
	// Opens is the number of closed/half-open to open transitions.
	Opens uint64 `json:"opens"`
	// LastFailureTime is when the most recent failure was recorded.
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
}

// RateLimiterStats is a point-in-time snapshot of limiter activity.
type RateLimiterStats struct {
	// Granted is the number of tokens handed out.
	Granted uint64 `json:"granted"`
	// Denied is the number of non-blocking acquisitions refused.
	Denied uint64 `json:"denied"`
	// TimedOut is the number of waits abandoned at the caller's deadline.
	TimedOut uint64 `json:"timed_out"`
	// Waits is the number of acquisitions that had to sleep.
	Waits uint64 `json:"waits"`
	// TotalWait is the cumulative time spent sleeping for tokens.
	TotalWait time.Duration `json:"total_wait_ns"`
	// AvailableTokens is the token count at snapshot time.
	AvailableTokens float64 `json:"available_tokens"`
}
