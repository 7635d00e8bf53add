package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/inferkit/inferkit/errors"
)

func TestRateLimiter_TryAcquireUntilDrained(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 60, Burst: 3})

	for i := 0; i < 3; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("expected token %d to be granted", i+1)
		}
	}
	if rl.TryAcquire() {
		t.Error("expected TryAcquire to fail on an empty bucket")
	}
}

func TestRateLimiter_TokensRegenerateOverTime(t *testing.T) {
	// 600 rpm = 10 tokens/second = one token per 100ms.
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 600, Burst: 1})

	if !rl.TryAcquire() {
		t.Fatal("expected initial token")
	}
	if rl.TryAcquire() {
		t.Fatal("expected empty bucket")
	}

	time.Sleep(120 * time.Millisecond)

	if !rl.TryAcquire() {
		t.Error("expected a token after regeneration")
	}
}

func TestRateLimiter_TokensNeverExceedBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 6000, Burst: 5})

	time.Sleep(50 * time.Millisecond)

	if tokens := rl.Tokens(); tokens > 5 {
		t.Errorf("expected tokens capped at 5, got %g", tokens)
	}
}

func TestRateLimiter_TokensDoesNotConsume(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 60, Burst: 2})

	before := rl.Tokens()
	after := rl.Tokens()
	if after < before-0.01 {
		t.Errorf("Tokens() consumed tokens: %g then %g", before, after)
	}
}

func TestRateLimiter_AcquireWaitsForRefill(t *testing.T) {
	// One token per 50ms.
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 1200, Burst: 1})

	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatalf("expected immediate grant, got %v", err)
	}

	start := time.Now()
	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatalf("expected grant after waiting, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected to wait for refill, returned after %s", elapsed)
	}
}

func TestRateLimiter_AcquireTimesOutAtDeadline(t *testing.T) {
	// One token per 10 seconds; a waiting caller can never be served in time.
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 6, Burst: 1})
	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.Acquire(ctx)
	if !errors.IsCode(err, errors.ErrCodeRateLimitTimeout) {
		t.Errorf("expected RATE_LIMIT_TIMEOUT, got %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("expected timeout decision without waiting out the refill")
	}

	stats := rl.Stats()
	if stats.TimedOut != 1 {
		t.Errorf("expected 1 timed-out acquisition, got %d", stats.TimedOut)
	}
}

func TestRateLimiter_AcquireHonorsCancellation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 6, Burst: 1})
	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := rl.Acquire(ctx)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRateLimiter_DisabledAlwaysGrants(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 6, Burst: 1, Disabled: true})

	for i := 0; i < 100; i++ {
		if !rl.TryAcquire() {
			t.Fatal("expected disabled limiter to grant unconditionally")
		}
	}
	if err := rl.Acquire(context.Background()); err != nil {
		t.Errorf("expected disabled Acquire to grant, got %v", err)
	}

	if got := rl.Stats().Granted; got != 101 {
		t.Errorf("expected disabled grants to be counted, got %d", got)
	}
}

func TestRateLimiter_BurstDefaultsToOneSixthOfRate(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 120})
	if rl.config.Burst != 20 {
		t.Errorf("expected burst 20, got %g", rl.config.Burst)
	}

	small := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 3})
	if small.config.Burst != 1 {
		t.Errorf("expected burst floor of 1, got %g", small.config.Burst)
	}
}

func TestRateLimiter_Stats(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 60, Burst: 2})

	rl.TryAcquire()
	rl.TryAcquire()
	rl.TryAcquire() // denied

	stats := rl.Stats()
	if stats.Granted != 2 {
		t.Errorf("expected 2 granted, got %d", stats.Granted)
	}
	if stats.Denied != 1 {
		t.Errorf("expected 1 denied, got %d", stats.Denied)
	}

	rl.ResetStats()
	stats = rl.Stats()
	if stats.Granted != 0 || stats.Denied != 0 {
		t.Errorf("expected zeroed counters, got %+v", stats)
	}
}

func TestRateLimiter_ConcurrentAcquire(t *testing.T) {
	// Plenty of rate so every waiter is eventually served.
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", RequestsPerMinute: 60000, Burst: 10})

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rl.Acquire(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected acquire error: %v", err)
		}
	}
	if got := rl.Stats().Granted; got != 50 {
		t.Errorf("expected 50 grants, got %d", got)
	}
}
