package diag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inferkit/inferkit/llm"
	"github.com/inferkit/inferkit/logger"
	"github.com/inferkit/inferkit/resilience"
)

type stubGuard struct {
	name    string
	breaker *resilience.CircuitBreaker
	resets  int
}

func newStubGuard(name string) *stubGuard {
	return &stubGuard{
		name:    name,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(name)),
	}
}

func (g *stubGuard) Stats() llm.GuardStats {
	return llm.GuardStats{Provider: g.name, Breaker: g.breaker.Stats()}
}

func (g *stubGuard) ResetStats() { g.resets++ }

func (g *stubGuard) Breaker() *resilience.CircuitBreaker { return g.breaker }

func newTestServer(t *testing.T, guards ...GuardSource) (*Server, *Registry) {
	t.Helper()
	reg := NewRegistry()
	for _, g := range guards {
		reg.Register(g)
	}
	cfg := Config{}
	cfg.ApplyDefaults()
	return New(cfg, reg, logger.Nop()), reg
}

func doRequest(srv *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Port != 8090 {
		t.Errorf("expected default port 8090, got %d", cfg.Port)
	}
	if cfg.ReadTimeout != 15 || cfg.WriteTimeout != 15 || cfg.IdleTimeout != 60 {
		t.Errorf("unexpected default timeouts: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Port: 70000}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an out-of-range port")
	}
	cfg = Config{Port: 8090, ReadTimeout: -1}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a negative timeout")
	}
	cfg = Config{Port: 8090}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, newStubGuard("ollama"), newStubGuard("openai"))

	w := doRequest(srv, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("expected ok status, got %s", body)
	}
	if !strings.Contains(body, "ollama") || !strings.Contains(body, "openai") {
		t.Errorf("expected backend names in body, got %s", body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, newStubGuard("ollama"))

	w := doRequest(srv, http.MethodGet, "/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data map[string]llm.GuardStats `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	stats, ok := resp.Data["ollama"]
	if !ok {
		t.Fatalf("expected stats for ollama, got %v", resp.Data)
	}
	if stats.Breaker.State != "closed" {
		t.Errorf("expected a closed breaker, got %q", stats.Breaker.State)
	}
}

func TestBackendStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, newStubGuard("ollama"))

	w := doRequest(srv, http.MethodGet, "/stats/ollama")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodGet, "/stats/unknown")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown backend, got %d", w.Code)
	}
}

func TestResetStatsEndpoint(t *testing.T) {
	guard := newStubGuard("ollama")
	srv, _ := newTestServer(t, guard)

	w := doRequest(srv, http.MethodPost, "/reset")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if guard.resets != 1 {
		t.Errorf("expected 1 reset, got %d", guard.resets)
	}
}

func TestResetBreakerEndpoint(t *testing.T) {
	guard := newStubGuard("ollama")

	// Trip the breaker first.
	errStub := errors.New("backend down")
	for i := 0; i < 5; i++ {
		_ = guard.breaker.Do(context.Background(), func(context.Context) error {
			return errStub
		})
	}
	if guard.breaker.Stats().State != "open" {
		t.Fatalf("expected an open breaker, got %q", guard.breaker.Stats().State)
	}

	srv, _ := newTestServer(t, guard)
	w := doRequest(srv, http.MethodPost, "/breakers/ollama/reset")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if state := guard.breaker.Stats().State; state != "closed" {
		t.Errorf("expected a closed breaker after reset, got %q", state)
	}

	w = doRequest(srv, http.MethodPost, "/breakers/unknown/reset")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown backend, got %d", w.Code)
	}
}

func TestRegistryReplaceAndNames(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newStubGuard("b"))
	reg.Register(newStubGuard("a"))
	reg.Register(newStubGuard("a"))

	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected sorted unique names [a b], got %v", names)
	}
}
