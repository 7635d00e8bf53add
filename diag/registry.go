package diag

import (
	"sort"
	"sync"

	"github.com/inferkit/inferkit/llm"
	"github.com/inferkit/inferkit/resilience"
)

// GuardSource is the slice of the guard API the diagnostics server needs.
// *llm.Guard satisfies it.
type GuardSource interface {
	Stats() llm.GuardStats
	ResetStats()
	Breaker() *resilience.CircuitBreaker
}

// Registry tracks the guards exposed through the diagnostics server, keyed
// by backend name.
type Registry struct {
	mu     sync.RWMutex
	guards map[string]GuardSource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{guards: make(map[string]GuardSource)}
}

// Register adds a guard under its backend name. Registering the same name
// twice replaces the previous entry.
func (r *Registry) Register(g GuardSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[g.Stats().Provider] = g
}

// Get returns the guard for a backend name.
func (r *Registry) Get(name string) (GuardSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guards[name]
	return g, ok
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the current stats of every registered guard.
func (r *Registry) Snapshot() map[string]llm.GuardStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]llm.GuardStats, len(r.guards))
	for name, g := range r.guards {
		out[name] = g.Stats()
	}
	return out
}

// ResetAll zeroes the counters of every registered guard.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, g := range r.guards {
		g.ResetStats()
	}
}
