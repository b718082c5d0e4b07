package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"verdandi/internal/config"
	"verdandi/internal/logging"
	"verdandi/internal/store"
)

// Registry holds one breaker per dependency name for the whole process.
type Registry struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	sink      StateSink
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for cooldowns.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSink persists breaker transitions.
func WithSink(sink StateSink) RegistryOption {
	return func(r *Registry) {
		r.sink = sink
	}
}

// WithLogger sets the logger used for transition messages.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry constructs a registry whose breakers share the configured
// threshold and cooldown.
func NewRegistry(cfg config.Breaker, opts ...RegistryOption) *Registry {
	r := &Registry{
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown(),
		now:       time.Now,
		breakers:  make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "resilience")
	return r
}

// Get returns the breaker for a dependency, creating it on first use.
func (r *Registry) Get(dependency string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[dependency]; ok {
		return b
	}
	b := newBreaker(dependency, r.threshold, r.cooldown, r.now, r.sink,
		r.logger.With(logging.String(logging.FieldDependency, dependency)))
	r.breakers[dependency] = b
	return b
}

// Restore seeds breakers from persisted state, typically at startup.
func (r *Registry) Restore(states []store.CircuitState) {
	for _, state := range states {
		r.Get(state.Dependency).restore(state)
	}
}

// RestoreFrom loads persisted breaker state from the store.
func (r *Registry) RestoreFrom(ctx context.Context, st interface {
	ListCircuitStates(ctx context.Context) ([]store.CircuitState, error)
}) error {
	states, err := st.ListCircuitStates(ctx)
	if err != nil {
		return fmt.Errorf("restore circuit states: %w", err)
	}
	r.Restore(states)
	return nil
}

// Snapshots returns every known breaker ordered by dependency name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dependency < out[j].Dependency })
	return out
}
