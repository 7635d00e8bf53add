package llm

import "context"

// Provider is the interface inference backends must implement. Backends
// return errors from the github.com/inferkit/inferkit/errors taxonomy (or
// raw network errors); the guard's classifier decides what is retriable.
type Provider interface {
	// Name identifies the backend for logging, metrics, and breaker naming.
	Name() string

	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
