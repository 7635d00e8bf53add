package resilience

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/inferkit/inferkit/errors"
)

var errBackend = stderrors.New("backend failure")

func failNTimes(n int) func(context.Context) error {
	calls := 0
	return func(context.Context) error {
		calls++
		if calls <= n {
			return errBackend
		}
		return nil
	}
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 3, ResetTimeout: time.Minute})
	op := func(context.Context) error { return errBackend }

	for i := 0; i < 2; i++ {
		_ = cb.Do(context.Background(), op)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed below threshold, got %s", cb.State())
	}

	_ = cb.Do(context.Background(), op)
	if cb.State() != StateOpen {
		t.Errorf("expected open after exactly 3 consecutive failures, got %s", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 3, ResetTimeout: time.Minute})

	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })
	_ = cb.Do(context.Background(), func(context.Context) error { return nil })
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })

	if cb.State() != StateClosed {
		t.Errorf("expected closed after streak was interrupted, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpenRejectsWithoutDispatching(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 1, ResetTimeout: time.Minute})
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })

	calls := 0
	err := cb.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	if calls != 0 {
		t.Errorf("expected operation not to be invoked, got %d calls", calls)
	}
	if !errors.IsCode(err, errors.ErrCodeCircuitOpen) {
		t.Errorf("expected CIRCUIT_OPEN, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 1, ResetTimeout: 30 * time.Millisecond})
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })

	time.Sleep(40 * time.Millisecond)

	calls := 0
	err := cb.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	if calls != 1 {
		t.Errorf("expected trial call to be dispatched, got %d calls", calls)
	}
	if err != nil {
		t.Errorf("expected trial success, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful trial, got %s", cb.State())
	}
	if cb.Stats().ConsecutiveFailures != 0 {
		t.Error("expected failure counter reset after successful trial")
	}
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 1, ResetTimeout: 30 * time.Millisecond})
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })

	time.Sleep(40 * time.Millisecond)

	err := cb.Do(context.Background(), func(context.Context) error { return errBackend })
	if !stderrors.Is(err, errBackend) {
		t.Errorf("expected the trial's own error to propagate, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("expected open after failed trial, got %s", cb.State())
	}

	// The reset window starts over: an immediate call is rejected again.
	err = cb.Do(context.Background(), func(context.Context) error { return nil })
	if !errors.IsCode(err, errors.ErrCodeCircuitOpen) {
		t.Errorf("expected CIRCUIT_OPEN right after reopening, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenTrialQuota(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		Threshold:        1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	})
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var wg sync.WaitGroup

	// Two trial calls occupy the half-open quota.
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Do(context.Background(), func(context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started

	// A third call while the quota is exhausted is rejected.
	err := cb.Do(context.Background(), func(context.Context) error { return nil })
	if !errors.IsCode(err, errors.ErrCodeCircuitOpen) {
		t.Errorf("expected half-open limit rejection, got %v", err)
	}
	if appErr, ok := errors.AsAppError(err); ok && appErr.Details["state"] != "half-open" {
		t.Errorf("expected half-open rejection detail, got %v", appErr.Details)
	}

	close(release)
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful trials, got %s", cb.State())
	}
}

func TestCircuitBreaker_ErrorPropagatesUnchanged(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	err := cb.Do(context.Background(), func(context.Context) error { return errBackend })
	if !stderrors.Is(err, errBackend) {
		t.Errorf("expected the operation's error unchanged, got %v", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 1, ResetTimeout: time.Minute})
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected closed after reset, got %s", cb.State())
	}
	if cb.Stats().ConsecutiveFailures != 0 {
		t.Error("expected zeroed failure counter after reset")
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "test",
		Threshold:    1,
		ResetTimeout: 10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })
	time.Sleep(20 * time.Millisecond)
	_ = cb.Do(context.Background(), func(context.Context) error { return nil })

	mu.Lock()
	defer mu.Unlock()
	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 2, ResetTimeout: time.Minute})

	_ = cb.Do(context.Background(), func(context.Context) error { return nil })
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })
	_ = cb.Do(context.Background(), func(context.Context) error { return errBackend })
	_ = cb.Do(context.Background(), func(context.Context) error { return nil }) // rejected

	stats := cb.Stats()
	if stats.State != "open" {
		t.Errorf("expected open, got %s", stats.State)
	}
	if stats.Successes != 1 || stats.Failures != 2 {
		t.Errorf("unexpected outcome counters: %+v", stats)
	}
	if stats.Rejections != 1 {
		t.Errorf("expected 1 rejection, got %d", stats.Rejections)
	}
	if stats.Opens != 1 {
		t.Errorf("expected 1 open transition, got %d", stats.Opens)
	}
	if stats.LastFailureTime.IsZero() {
		t.Error("expected last failure time to be recorded")
	}

	cb.ResetStats()
	stats = cb.Stats()
	if stats.Successes != 0 || stats.Failures != 0 || stats.Rejections != 0 || stats.Opens != 0 {
		t.Errorf("expected zeroed counters after ResetStats, got %+v", stats)
	}
	if stats.State != "open" {
		t.Error("ResetStats must not change breaker state")
	}
}

func TestCircuitBreaker_CustomIsFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "test",
		Threshold:    1,
		ResetTimeout: time.Minute,
		IsFailure: func(err error) bool {
			return err != nil && !stderrors.Is(err, context.Canceled)
		},
	})

	_ = cb.Do(context.Background(), func(context.Context) error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Errorf("expected cancellation not to count as failure, got %s", cb.State())
	}
}

func TestCircuitBreaker_ConcurrentDispatch(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 1000, ResetTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = cb.Do(context.Background(), func(context.Context) error {
					if (n+j)%2 == 0 {
						return errBackend
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()

	stats := cb.Stats()
	if stats.Successes+stats.Failures != 1000 {
		t.Errorf("lost updates: %d outcomes recorded, expected 1000", stats.Successes+stats.Failures)
	}
}
