package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GuardMetrics holds the instruments recorded around every guarded backend
// call. A nil *GuardMetrics is valid and records nothing, so callers can
// wire metrics optionally.
type GuardMetrics struct {
	callTotal    metric.Int64Counter
	callDuration metric.Float64Histogram
	retryTotal   metric.Int64Counter
	breakerTrans metric.Int64Counter
	cacheLookups metric.Int64Counter
	limiterWaits metric.Float64Histogram
}

// NewGuardMetrics creates the guard instrument set on the given meter.
func NewGuardMetrics(meter metric.Meter) (*GuardMetrics, error) {
	callTotal, err := meter.Int64Counter("inference.call.total",
		metric.WithDescription("Total guarded inference calls by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inference.call.total counter: %w", err)
	}

	callDuration, err := meter.Float64Histogram("inference.call.duration",
		metric.WithDescription("Duration of guarded inference calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inference.call.duration histogram: %w", err)
	}

	retryTotal, err := meter.Int64Counter("inference.retry.total",
		metric.WithDescription("Total retry attempts scheduled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inference.retry.total counter: %w", err)
	}

	breakerTrans, err := meter.Int64Counter("inference.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inference.breaker.transitions counter: %w", err)
	}

	cacheLookups, err := meter.Int64Counter("inference.cache.lookups",
		metric.WithDescription("Response cache lookups by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inference.cache.lookups counter: %w", err)
	}

	limiterWaits, err := meter.Float64Histogram("inference.limiter.wait",
		metric.WithDescription("Time spent waiting for a rate limit token in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inference.limiter.wait histogram: %w", err)
	}

	return &GuardMetrics{
		callTotal:    callTotal,
		callDuration: callDuration,
		retryTotal:   retryTotal,
		breakerTrans: breakerTrans,
		cacheLookups: cacheLookups,
		limiterWaits: limiterWaits,
	}, nil
}

// RecordCall records a completed guarded call and its duration.
func (m *GuardMetrics) RecordCall(ctx context.Context, provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	m.callTotal.Add(ctx, 1, attrs)
	m.callDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordRetry records one scheduled retry.
func (m *GuardMetrics) RecordRetry(ctx context.Context, provider string, attempt int) {
	if m == nil {
		return
	}
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Int("attempt", attempt),
	))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *GuardMetrics) RecordBreakerTransition(ctx context.Context, name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTrans.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordCacheLookup records a cache hit or miss.
func (m *GuardMetrics) RecordCacheLookup(ctx context.Context, provider string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("result", result),
	))
}

// RecordLimiterWait records how long an admission waited for a token.
func (m *GuardMetrics) RecordLimiterWait(ctx context.Context, provider string, wait time.Duration) {
	if m == nil {
		return
	}
	m.limiterWaits.Record(ctx, wait.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
	))
}
