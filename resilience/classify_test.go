package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/inferkit/inferkit/errors"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"wrapped cancellation", fmt.Errorf("call: %w", context.Canceled), false},
		{"net timeout", &fakeNetError{timeout: true}, true},
		{"net non-timeout", &fakeNetError{timeout: false}, false},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"broken pipe", syscall.EPIPE, true},
		{"truncated response", io.ErrUnexpectedEOF, true},
		{"http 429", errors.FromHTTPStatus(429, ""), true},
		{"http 502", errors.FromHTTPStatus(502, ""), true},
		{"http 503", errors.FromHTTPStatus(503, ""), true},
		{"http 504", errors.FromHTTPStatus(504, ""), true},
		{"http 400", errors.FromHTTPStatus(400, ""), false},
		{"http 401", errors.FromHTTPStatus(401, ""), false},
		{"http 404", errors.FromHTTPStatus(404, ""), false},
		{"http 500", errors.FromHTTPStatus(500, ""), false},
		{"retry exhausted", errors.RetryExhausted(3, stderrors.New("x")), false},
		{"circuit open", errors.CircuitOpen("backend"), false},
		{"rate limit timeout", errors.RateLimitTimeout(), false},
		{"plain error", stderrors.New("malformed input"), false},
	}

	for _, tt := range tests {
		if got := DefaultClassifier(tt.err); got != tt.retriable {
			t.Errorf("%s: DefaultClassifier() = %v, want %v", tt.name, got, tt.retriable)
		}
	}
}

func TestDefaultClassifier_IsPure(t *testing.T) {
	err := errors.ServiceUnavailable("backend")
	for i := 0; i < 3; i++ {
		if !DefaultClassifier(err) {
			t.Fatal("classification changed between calls")
		}
	}
}
