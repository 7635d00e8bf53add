package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/inferkit/inferkit/cache"
	"github.com/inferkit/inferkit/logger"
	"github.com/inferkit/inferkit/observability"
	"github.com/inferkit/inferkit/resilience"
)

const instrumentationName = "github.com/inferkit/inferkit/llm"

// GuardConfig bundles the resilience configuration for one backend.
type GuardConfig struct {
	Retry   resilience.RetryPolicy          `yaml:"retry" mapstructure:"retry"`
	Breaker resilience.CircuitBreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	Limiter resilience.RateLimiterConfig    `yaml:"limiter" mapstructure:"limiter"`
	Cache   cache.Config                    `yaml:"cache" mapstructure:"cache"`
}

// DefaultGuardConfig returns the default pipeline configuration.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Retry:   resilience.DefaultRetryPolicy(),
		Breaker: resilience.DefaultCircuitBreakerConfig(""),
		Limiter: resilience.DefaultRateLimiterConfig(""),
		Cache:   cache.DefaultConfig(),
	}
}

// Guard wraps a Provider with the full resilience pipeline: cache lookup,
// rate-limiter admission, and a retry loop dispatched through a circuit
// breaker. One Guard owns one breaker and maps to exactly one logical
// backend; collaborators are injected at construction, never process-wide.
type Guard struct {
	provider Provider
	cache    *cache.Cache[CompletionResponse]
	limiter  *resilience.RateLimiter
	breaker  *resilience.CircuitBreaker
	exec     *resilience.Executor
	log      *logger.Logger
	metrics  *observability.GuardMetrics
	tracer   trace.Tracer
	classify resilience.Classifier
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithLogger injects the logger used for retry and breaker events.
func WithLogger(l *logger.Logger) GuardOption {
	return func(g *Guard) { g.log = l }
}

// WithMetrics injects the OpenTelemetry instrument set.
func WithMetrics(m *observability.GuardMetrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// WithClassifier overrides the default error classification for retries.
func WithClassifier(c resilience.Classifier) GuardOption {
	return func(g *Guard) { g.classify = c }
}

// NewGuard creates a guard around the provider. The retry policy is
// validated here; an invalid policy fails construction.
func NewGuard(provider Provider, cfg GuardConfig, opts ...GuardOption) (*Guard, error) {
	if provider == nil {
		return nil, fmt.Errorf("llm: provider is required")
	}

	g := &Guard{
		provider: provider,
		log:      logger.Nop(),
		tracer:   observability.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.WithComponent("guard")

	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = provider.Name()
	}
	if cfg.Limiter.Name == "" {
		cfg.Limiter.Name = provider.Name()
	}

	userHook := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(name string, from, to resilience.State) {
		g.log.Warn("circuit breaker state change", logger.Fields(
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		))
		g.metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	g.breaker = resilience.NewCircuitBreaker(cfg.Breaker)
	g.limiter = resilience.NewRateLimiter(cfg.Limiter)
	g.cache = cache.New[CompletionResponse](cfg.Cache)

	execOpts := []resilience.ExecutorOption{
		resilience.WithBreaker(g.breaker),
		resilience.WithOnRetry(func(err error, attempt int, delay time.Duration) {
			g.log.Warn("retrying inference call", logger.Fields(
				logger.FieldAttempt, attempt,
				logger.FieldDelay, delay.Milliseconds(),
				logger.FieldError, err.Error(),
			))
			g.metrics.RecordRetry(context.Background(), provider.Name(), attempt)
		}),
	}
	if g.classify != nil {
		execOpts = append(execOpts, resilience.WithClassifier(g.classify))
	}

	exec, err := resilience.NewExecutor(cfg.Retry, execOpts...)
	if err != nil {
		return nil, err
	}
	g.exec = exec

	return g, nil
}

// Provider returns the wrapped backend.
func (g *Guard) Provider() Provider { return g.provider }

// Breaker returns the guard's circuit breaker, for administrative reset.
func (g *Guard) Breaker() *resilience.CircuitBreaker { return g.breaker }

// Complete runs one guarded completion: cache lookup, admission, then the
// retried and breaker-protected backend call. The response is cached on
// success. Callers receive their own copy of a cached response.
func (g *Guard) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	requestID := uuid.NewString()
	log := g.log.WithFields(map[string]any{logger.FieldRequestID: requestID})

	ctx, span := g.tracer.Start(ctx, "inference.complete", trace.WithAttributes(
		attribute.String("provider", g.provider.Name()),
		attribute.String("request.id", requestID),
		attribute.String("model", req.Model),
	))
	defer span.End()

	payload, err := canonicalPayload(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if resp, ok := g.cache.Get(payload); ok {
		g.metrics.RecordCacheLookup(ctx, g.provider.Name(), true)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		log.Debug("cache hit", logger.Fields("model", resp.Model))
		return &resp, nil
	}
	g.metrics.RecordCacheLookup(ctx, g.provider.Name(), false)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	waitStart := time.Now()
	if err := g.limiter.Acquire(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("rate limiter rejected call", logger.Fields(logger.FieldError, err.Error()))
		return nil, err
	}
	g.metrics.RecordLimiterWait(ctx, g.provider.Name(), time.Since(waitStart))

	start := time.Now()
	result, err := resilience.Do(ctx, g.exec, func(ctx context.Context) (*CompletionResponse, error) {
		return g.provider.Complete(ctx, req)
	})
	if err != nil {
		g.metrics.RecordCall(ctx, g.provider.Name(), "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("inference call failed", logger.Fields(logger.FieldError, err.Error()))
		return nil, err
	}
	g.metrics.RecordCall(ctx, g.provider.Name(), "success", time.Since(start))
	span.SetStatus(codes.Ok, "")

	g.cache.Set(payload, *result)
	log.Debug("inference call succeeded", logger.Fields(
		logger.FieldDuration, time.Since(start).Milliseconds(),
		"model", result.Model,
	))
	return result, nil
}

// GuardStats aggregates the diagnostics snapshots of every component in the
// pipeline.
type GuardStats struct {
	Provider string                         `json:"provider"`
	Retry    resilience.RetryStats          `json:"retry"`
	Breaker  resilience.CircuitBreakerStats `json:"breaker"`
	Limiter  resilience.RateLimiterStats    `json:"limiter"`
	Cache    cache.Stats                    `json:"cache"`
}

// Stats returns a snapshot of all pipeline counters.
func (g *Guard) Stats() GuardStats {
	return GuardStats{
		Provider: g.provider.Name(),
		Retry:    g.exec.Stats(),
		Breaker:  g.breaker.Stats(),
		Limiter:  g.limiter.Stats(),
		Cache:    g.cache.Stats(),
	}
}

// ResetStats zeroes all pipeline counters. Breaker state and cached entries
// are untouched.
func (g *Guard) ResetStats() {
	g.exec.ResetStats()
	g.breaker.ResetStats()
	g.limiter.ResetStats()
	g.cache.ResetStats()
}

// InvalidateCache drops the cached response for a request, if present.
func (g *Guard) InvalidateCache(req CompletionRequest) bool {
	payload, err := canonicalPayload(req)
	if err != nil {
		return false
	}
	return g.cache.Invalidate(payload)
}

// ClearCache removes all cached responses and returns how many were dropped.
func (g *Guard) ClearCache() int {
	return g.cache.Clear()
}

// canonicalPayload serializes a request deterministically for cache keying.
// Struct fields marshal in declaration order, so identical requests always
// produce identical payloads.
func canonicalPayload(req CompletionRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llm: encode cache payload: %w", err)
	}
	return string(b), nil
}
