package resilience

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"syscall"

	"github.com/inferkit/inferkit/errors"
)

// DefaultClassifier is the classification used when an Executor is built
// without WithClassifier.
//
// Retriable: network timeouts, refused/reset/broken-pipe connections,
// truncated responses, and AppErrors carrying a retryable code (which covers
// HTTP 429/502/503/504 via errors.FromHTTPStatus).
//
// Not retriable: context cancellation, caller-fixable input problems, auth
// failures, and any other error kind.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}

	// A cancelled or expired context belongs to the caller; retrying would
	// only burn attempts against a dead request.
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Retryable
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case stderrors.Is(err, syscall.ECONNREFUSED),
		stderrors.Is(err, syscall.ECONNRESET),
		stderrors.Is(err, syscall.EPIPE),
		stderrors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	return false
}
