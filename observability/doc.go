// Package observability provides OpenTelemetry metrics for the inference
// pipeline: meter provider setup and the instrument set recorded by the
// guard around every backend call.
package observability
