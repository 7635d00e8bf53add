package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Transient failures (retryable).
const (
	// ErrCodeServiceUnavailable indicates the backend is temporarily unavailable (502/503).
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed indicates a refused, reset, or dropped connection.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates the operation did not complete in time (504, net timeouts).
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the backend asked us to slow down (429).
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Permanent failures (not retryable).
const (
	// ErrCodeInvalidInput indicates a caller-fixable input problem (4xx other than 429).
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeUnauthorized indicates an authentication or authorization failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeNotFound indicates the requested resource or model does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Resilience-layer outcomes. These are produced by the retry executor, the
// circuit breaker, and the rate limiter themselves; they are terminal for the
// current call and therefore not retryable.
const (
	// ErrCodeRetryExhausted indicates all retry attempts were consumed.
	// The wrapped cause is the last transient failure.
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"
	// ErrCodeCircuitOpen indicates the circuit breaker rejected the call
	// without dispatching the operation.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrCodeRateLimitTimeout indicates the rate limiter could not grant a
	// token within the caller's deadline.
	ErrCodeRateLimitTimeout ErrorCode = "RATE_LIMIT_TIMEOUT"
)

// retryableCodes is the fixed set of codes considered transient.
var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
}

// IsRetryableCode reports whether the code denotes a transient failure.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
