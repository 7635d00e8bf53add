package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/inferkit/inferkit/errors"
)

// Classifier decides whether an error is transient and worth retrying.
// It must be a pure mapping from error to decision with no side effects.
type Classifier func(err error) bool

// OnRetryFunc observes a scheduled retry. It is called after a failed attempt
// with the error, the 1-based number of the attempt that failed, and the
// delay before the next attempt. It must not affect control flow.
type OnRetryFunc func(err error, attempt int, delay time.Duration)

// RetryPolicy configures retry behavior. It is immutable once passed to
// NewExecutor; invalid values fail construction, not first use.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt,
	// so an operation runs at most MaxRetries+1 times.
	MaxRetries uint `yaml:"max_retries" mapstructure:"max_retries"`
	// InitialDelay is the base delay before the first retry. Must be > 0.
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`
	// MaxDelay caps the delay between retries. Must be >= InitialDelay.
	MaxDelay time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	// Multiplier grows the delay after each retry. Must be >= 1.
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`
	// JitterFraction adds symmetric randomness to each delay, in [0, 1].
	// A delay d becomes d + d*JitterFraction*U(-1,1), clamped to [0, MaxDelay].
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// DefaultRetryPolicy returns the default policy: 3 retries starting at 1s,
// doubling up to 30s, with 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Validate checks the policy invariants.
func (p RetryPolicy) Validate() error {
	if p.InitialDelay <= 0 {
		return fmt.Errorf("resilience: initial_delay must be > 0 (got %s)", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("resilience: max_delay must be >= initial_delay (got %s < %s)", p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("resilience: multiplier must be >= 1 (got %g)", p.Multiplier)
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		return fmt.Errorf("resilience: jitter_fraction must be in [0, 1] (got %g)", p.JitterFraction)
	}
	return nil
}

// Executor wraps operations with bounded retries, exponential backoff with
// jitter, and error classification. An Executor is safe for concurrent use;
// overlapping calls do not share per-call state.
type Executor struct {
	policy   RetryPolicy
	classify Classifier
	breaker  *CircuitBreaker
	onRetry  OnRetryFunc
	stats    retryCounters
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClassifier overrides the default error classification.
func WithClassifier(c Classifier) ExecutorOption {
	return func(e *Executor) { e.classify = c }
}

// WithBreaker routes every attempt through the given circuit breaker.
// Breaker rejections propagate immediately and are never retried.
func WithBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

// WithOnRetry registers an observer invoked before each backoff sleep.
func WithOnRetry(fn OnRetryFunc) ExecutorOption {
	return func(e *Executor) { e.onRetry = fn }
}

// NewExecutor creates a retry executor. The policy is validated here.
func NewExecutor(policy RetryPolicy, opts ...ExecutorOption) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		policy:   policy,
		classify: DefaultClassifier,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classify == nil {
		e.classify = DefaultClassifier
	}
	return e, nil
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() RetryPolicy { return e.policy }

// Breaker returns the circuit breaker attempts are routed through, if any.
func (e *Executor) Breaker() *CircuitBreaker { return e.breaker }

// Do runs the operation through the executor's retry loop.
//
// The operation runs up to MaxRetries+1 times. A success returns immediately.
// A failure is classified: permanent errors and circuit-breaker rejections
// propagate unchanged after a single decision; transient errors are retried
// after a backoff sleep. When all attempts are consumed the last transient
// error is wrapped with code RETRY_EXHAUSTED, unless the policy allowed no
// retries, in which case the original error propagates.
//
// Context cancellation is honored between attempts and during backoff sleeps,
// never mid-attempt. A cancelled call counts as a failure in the stats.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	e.stats.calls.Add(1)

	delay := e.policy.InitialDelay
	attempts := int(e.policy.MaxRetries) + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			// A cancelled call is still a finished call; counting it as a
			// failure keeps calls == successes + failures.
			e.stats.failures.Add(1)
			return zero, ctx.Err()
		default:
		}

		e.stats.attempts.Add(1)

		var result T
		var err error
		if e.breaker != nil {
			err = e.breaker.Do(ctx, func(ctx context.Context) error {
				var opErr error
				result, opErr = op(ctx)
				return opErr
			})
		} else {
			result, err = op(ctx)
		}

		if err == nil {
			e.stats.successes.Add(1)
			return result, nil
		}
		lastErr = err

		// A breaker rejection means the operation was never dispatched;
		// retrying inside this call would only hammer the open breaker.
		if errors.IsCode(err, errors.ErrCodeCircuitOpen) {
			e.stats.failures.Add(1)
			return zero, err
		}

		if !e.classify(err) {
			e.stats.failures.Add(1)
			return zero, err
		}

		if attempt == attempts {
			break
		}

		actualDelay := jitteredDelay(delay, e.policy)

		if e.onRetry != nil {
			e.onRetry(err, attempt, actualDelay)
		}
		e.stats.retries.Add(1)

		timer := time.NewTimer(actualDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.stats.failures.Add(1)
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = nextDelay(delay, e.policy)
	}

	e.stats.failures.Add(1)
	if e.policy.MaxRetries == 0 {
		return zero, lastErr
	}
	e.stats.exhausted.Add(1)
	return zero, errors.RetryExhausted(attempts, lastErr)
}

// Run is the non-generic form of Do for operations without a result value.
func (e *Executor) Run(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// jitteredDelay applies symmetric jitter to the base delay and clamps the
// result to [0, MaxDelay].
func jitteredDelay(delay time.Duration, p RetryPolicy) time.Duration {
	d := float64(delay)
	if p.JitterFraction > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += d * p.JitterFraction * (rand.Float64()*2 - 1)
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// nextDelay grows the base delay by the policy multiplier, capped at MaxDelay.
func nextDelay(delay time.Duration, p RetryPolicy) time.Duration {
	next := time.Duration(float64(delay) * p.Multiplier)
	if next > p.MaxDelay || next < 0 {
		next = p.MaxDelay
	}
	return next
}
