// Package errors provides unified error handling for the inference pipeline.
// It implements structured error types with machine-readable codes, HTTP
// status mapping, and retryable classification, so that retry policies and
// user-facing handlers can act on error kinds instead of string matching.
package errors
