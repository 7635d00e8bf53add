package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the HTTP status associated with this error, if any.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError with the same code. It lets
// callers match by kind: errors.Is(err, &AppError{Code: ErrCodeCircuitOpen}).
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !stderrors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Transient failure constructors ---

// ServiceUnavailable creates an error for a backend that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// ConnectionFailed creates an error for a failed connection to a backend.
func ConnectionFailed(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("Unable to connect to %s.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}

// Timeout creates an error for an operation that took too long.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The request took too long.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// RateLimited creates an error for a backend that reported too many requests.
func RateLimited() *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
	}
}

// --- Permanent failure constructors ---

// InvalidInput creates an error for a caller-fixable input problem.
func InvalidInput(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Unauthorized creates an error for an authentication failure.
func Unauthorized(reason string) *AppError {
	if reason == "" {
		reason = "Authentication required."
	}
	return &AppError{
		Code: ErrCodeUnauthorized, Message: reason,
		HTTPStatus: http.StatusUnauthorized, Retryable: false,
	}
}

// NotFound creates an error for a missing resource or model.
func NotFound(resource string) *AppError {
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"resource": resource},
	}
}

// Internal creates an error for an unexpected internal failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// --- Resilience-layer constructors ---

// RetryExhausted creates an error reporting that all retry attempts were
// consumed. The last transient failure is preserved as the cause.
func RetryExhausted(attempts int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeRetryExhausted, Message: fmt.Sprintf("All %d attempts failed.", attempts),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"attempts": attempts}, Cause: cause,
	}
}

// CircuitOpen creates an error reporting that the circuit breaker rejected
// the call while open.
func CircuitOpen(service string) *AppError {
	return &AppError{
		Code: ErrCodeCircuitOpen, Message: fmt.Sprintf("Circuit breaker for %s is open.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"service": service, "state": "open"},
	}
}

// CircuitHalfOpenLimited creates an error reporting that the half-open trial
// quota is exhausted.
func CircuitHalfOpenLimited(service string) *AppError {
	return &AppError{
		Code: ErrCodeCircuitOpen, Message: fmt.Sprintf("Circuit breaker for %s is half-open, trial limit reached.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"service": service, "state": "half-open"},
	}
}

// RateLimitTimeout creates an error reporting that a token could not be
// granted within the caller's deadline.
func RateLimitTimeout() *AppError {
	return &AppError{
		Code: ErrCodeRateLimitTimeout, Message: "Rate limit wait exceeded the caller's deadline.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: false,
	}
}

// FromHTTPStatus maps an HTTP status code to an AppError, applying the fixed
// retriable set: 429, 502, 503 and 504 are transient, everything else is not.
func FromHTTPStatus(status int, body string) *AppError {
	switch status {
	case http.StatusTooManyRequests:
		return RateLimited().WithDetail("body", body)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return New(ErrCodeServiceUnavailable, fmt.Sprintf("HTTP %d", status), status)
	case http.StatusGatewayTimeout:
		return New(ErrCodeTimeout, fmt.Sprintf("HTTP %d", status), status)
	case http.StatusUnauthorized, http.StatusForbidden:
		return New(ErrCodeUnauthorized, fmt.Sprintf("HTTP %d", status), status)
	case http.StatusNotFound:
		return New(ErrCodeNotFound, fmt.Sprintf("HTTP %d", status), status)
	default:
		if status >= 500 {
			return New(ErrCodeInternal, fmt.Sprintf("HTTP %d", status), status)
		}
		return New(ErrCodeInvalidInput, fmt.Sprintf("HTTP %d", status), status)
	}
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is (or wraps) an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// unavailableMessage is the single user-facing message for all resilience
// give-up outcomes.
const unavailableMessage = "The model is temporarily unavailable. Please try again."

// UserMessage translates an error into the message shown to end users.
// Resilience outcomes (circuit open, retries exhausted, rate-limit timeout)
// and transient failures collapse into one "temporarily unavailable" message;
// permanent failures surface their own message since they usually indicate a
// caller-fixable problem.
func UserMessage(err error) string {
	appErr, ok := AsAppError(err)
	if !ok {
		return unavailableMessage
	}
	switch appErr.Code {
	case ErrCodeRetryExhausted, ErrCodeCircuitOpen, ErrCodeRateLimitTimeout:
		return unavailableMessage
	}
	if appErr.Retryable {
		return unavailableMessage
	}
	return appErr.Message
}
