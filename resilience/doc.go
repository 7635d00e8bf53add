// Package resilience provides the throughput-control layer that guards every
// call to the inference backend.
//
// This package includes:
//   - Executor: retries failed operations with exponential backoff and jitter
//   - CircuitBreaker: stops dispatching to a consistently failing backend
//   - RateLimiter: controls admission rate with a token bucket
//
// The patterns compose: the retry executor can delegate each attempt through
// a circuit breaker, and callers typically acquire a rate-limiter token
// before running the executor.
//
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("ollama"))
//	exec, err := resilience.NewExecutor(resilience.DefaultRetryPolicy(), resilience.WithBreaker(cb))
//	rl := resilience.NewRateLimiter(resilience.DefaultRateLimiterConfig("ollama"))
//
//	if err := rl.Acquire(ctx); err != nil {
//	    return err
//	}
//	resp, err := resilience.Do(ctx, exec, func(ctx context.Context) (*Response, error) {
//	    return backend.Complete(ctx, req)
//	})
//
// Errors flow through the github.com/inferkit/inferkit/errors taxonomy:
// transient failures are retried, permanent failures and breaker rejections
// propagate immediately, and exhausted retries surface as RETRY_EXHAUSTED
// wrapping the last transient cause.
package resilience
