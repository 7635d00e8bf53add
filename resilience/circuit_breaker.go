package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/inferkit/inferkit/errors"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited trial requests to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the protected downstream dependency. One breaker
	// instance maps to exactly one logical dependency; breaker state is not
	// meaningful when shared across unrelated operations.
	Name string `yaml:"name" mapstructure:"name"`
	// Threshold is the number of consecutive failures before opening.
	Threshold uint `yaml:"threshold" mapstructure:"threshold"`
	// ResetTimeout is how long the breaker stays open before allowing a
	// trial call.
	ResetTimeout time.Duration `yaml:"reset_timeout" mapstructure:"reset_timeout"`
	// HalfOpenMaxCalls is the number of concurrent trial calls allowed in
	// the half-open state.
	HalfOpenMaxCalls uint `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls"`
	// OnStateChange is called when the state changes, outside the hot path
	// but under the breaker lock; it must not call back into the breaker.
	OnStateChange func(name string, from, to State) `yaml:"-" mapstructure:"-"`
	// IsFailure decides whether an error counts against the breaker.
	// Default: every non-nil error.
	IsFailure func(err error) bool `yaml:"-" mapstructure:"-"`
}

// DefaultCircuitBreakerConfig returns sensible defaults: open after 5
// consecutive failures, allow one trial call after 60 seconds.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		Threshold:        5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker is a three-state machine that stops dispatching operations
// to a consistently failing dependency.
//
// All state lives behind a single mutex; the protected operation itself runs
// outside the lock so that slow calls never serialize each other.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu               sync.Mutex
	state            State
	failures         uint
	lastFailureTime  time.Time
	halfOpenInFlight uint

	totalSuccesses uint64
	totalFailures  uint64
	rejections     uint64
	opens          uint64
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
// Zero config values fall back to the defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold == 0 {
		config.Threshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls == 0 {
		config.HalfOpenMaxCalls = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Name returns the name of the protected dependency.
func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// Do runs the operation through the circuit breaker.
//
// The state decision happens under the lock before dispatch, the operation
// executes outside the lock, and the outcome is recorded under the lock
// afterwards. The operation's own error is returned unchanged after
// bookkeeping; the breaker never swallows the underlying cause, it only
// decides whether to dispatch at all.
func (cb *CircuitBreaker) Do(ctx context.Context, op func(context.Context) error) error {
	trial, err := cb.beforeDispatch()
	if err != nil {
		return err
	}

	opErr := op(ctx)
	cb.afterDispatch(trial, opErr)
	return opErr
}

// State returns the current state, applying the open-to-half-open timeout
// transition if it is due.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Reset is an administrative override back to the closed state with counters
// zeroed. It is intended for operators and tests, not normal request flow.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.toStateLocked(StateClosed)
	cb.failures = 0
	cb.halfOpenInFlight = 0
}

// Stats returns a snapshot of breaker activity.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:               cb.currentStateLocked().String(),
		ConsecutiveFailures: uint64(cb.failures),
		Successes:           cb.totalSuccesses,
		Failures:            cb.totalFailures,
		Rejections:          cb.rejections,
		Opens:               cb.opens,
		LastFailureTime:     cb.lastFailureTime,
	}
}

// ResetStats zeroes the cumulative counters without touching breaker state.
func (cb *CircuitBreaker) ResetStats() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses = 0
	cb.totalFailures = 0
	cb.rejections = 0
	cb.opens = 0
}

// beforeDispatch decides whether the call may proceed. It reports whether
// the call was admitted as a half-open trial.
func (cb *CircuitBreaker) beforeDispatch() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateOpen:
		cb.rejections++
		return false, errors.CircuitOpen(cb.config.Name)
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxCalls {
			cb.rejections++
			return false, errors.CircuitHalfOpenLimited(cb.config.Name)
		}
		cb.halfOpenInFlight++
		return true, nil
	default:
		return false, nil
	}
}

// afterDispatch records the outcome of a dispatched call and applies the
// transition rules.
func (cb *CircuitBreaker) afterDispatch(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	isFailure := cb.config.IsFailure(err)
	if isFailure {
		cb.totalFailures++
	} else {
		cb.totalSuccesses++
	}

	switch cb.state {
	case StateClosed:
		if isFailure {
			cb.failures++
			cb.lastFailureTime = time.Now()
			if cb.failures >= cb.config.Threshold {
				cb.toStateLocked(StateOpen)
			}
		} else {
			cb.failures = 0
		}

	case StateHalfOpen:
		if isFailure {
			// Failed trial: back to open with a fresh reset window.
			cb.lastFailureTime = time.Now()
			cb.toStateLocked(StateOpen)
		} else {
			cb.toStateLocked(StateClosed)
			cb.failures = 0
		}

	case StateOpen:
		// A call admitted before the breaker opened finished late.
		// Outcome counters are enough; the open timer is left alone.
	}
}

// currentStateLocked returns the state, promoting open to half-open once the
// reset timeout has elapsed. Callers must hold cb.mu.
func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.config.ResetTimeout {
		cb.toStateLocked(StateHalfOpen)
	}
	return cb.state
}

// toStateLocked transitions to a new state. Callers must hold cb.mu.
func (cb *CircuitBreaker) toStateLocked(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to

	switch to {
	case StateOpen:
		cb.opens++
	case StateHalfOpen:
		cb.halfOpenInFlight = 0
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}
