// Package llm defines the universal chat completion types, the Provider
// interface implemented by inference backends, and the Guard that wraps
// every backend call with the resilience pipeline.
//
// The Guard applies, in order: response cache lookup, rate-limiter
// admission, then a retry loop whose attempts are dispatched through a
// circuit breaker. Successful responses are stored back into the cache.
//
//	guard, err := llm.NewGuard(provider, llm.DefaultGuardConfig())
//	resp, err := guard.Complete(ctx, llm.CompletionRequest{
//	    Messages: []llm.Message{{Role: "user", Content: "Hello!"}},
//	})
//
// Failures surface through the github.com/inferkit/inferkit/errors
// taxonomy; errors.UserMessage translates them for end users.
package llm
