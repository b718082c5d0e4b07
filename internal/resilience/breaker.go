package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"verdandi/internal/logging"
	"verdandi/internal/services"
	"verdandi/internal/store"
)

// State is a breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// StateSink persists breaker transitions. *store.Store satisfies it.
type StateSink interface {
	SaveCircuitState(ctx context.Context, state store.CircuitState) error
}

// CircuitOpenError is returned while a breaker fast-fails callers.
type CircuitOpenError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit open for %s (retry after %s)", e.Dependency, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("circuit open for %s (probe in flight)", e.Dependency)
}

// Unwrap lets errors.Is match services.ErrCircuitOpen.
func (e *CircuitOpenError) Unwrap() error {
	return services.ErrCircuitOpen
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Dependency string
	State      State
	Failures   int
	OpenedAt   time.Time
}

// Permit is the admission Allow hands out. Its outcome is reported through
// Done; outcomes of permits issued before the breaker last changed state are
// ignored.
type Permit struct {
	generation uint64
	probe      bool
}

// Breaker tracks consecutive failures of one dependency.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	sink      StateSink
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probing    bool
	generation uint64
	seq        uint64

	// persistMu guards persisted; writes older than the last persisted
	// transition are dropped.
	persistMu sync.Mutex
	persisted uint64
}

type transition struct {
	seq  uint64
	snap Snapshot
}

func newBreaker(name string, threshold int, cooldown time.Duration, now func() time.Time, sink StateSink, logger *slog.Logger) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		sink:      sink,
		logger:    logger,
		state:     StateClosed,
	}
}

// Name returns the dependency the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Allow reports whether a call may be issued now. It returns a
// *CircuitOpenError while the breaker is open or while another caller holds
// the half-open probe. The first caller after the cooldown becomes the probe.
func (b *Breaker) Allow() (Permit, error) {
	b.mu.Lock()
	switch b.state {
	case StateClosed:
		permit := Permit{generation: b.generation}
		b.mu.Unlock()
		return permit, nil
	case StateOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			b.mu.Unlock()
			return Permit{}, &CircuitOpenError{Dependency: b.name, RetryAfter: b.cooldown - elapsed}
		}
		b.state = StateHalfOpen
		b.probing = true
		next := b.transitionLocked()
		permit := Permit{generation: b.generation, probe: true}
		b.mu.Unlock()
		b.persist(next)
		return permit, nil
	default:
		if b.probing {
			b.mu.Unlock()
			return Permit{}, &CircuitOpenError{Dependency: b.name}
		}
		// The previous probe was cancelled; hand the slot to this caller.
		b.probing = true
		permit := Permit{generation: b.generation, probe: true}
		b.mu.Unlock()
		return permit, nil
	}
}

// Done records the outcome of a call admitted by Allow. Cancellation is not
// counted as a dependency failure; a cancelled probe frees the probe slot.
func (b *Breaker) Done(permit Permit, err error) {
	b.mu.Lock()
	if permit.generation != b.generation {
		b.mu.Unlock()
		return
	}
	var next *transition
	switch {
	case errors.Is(err, context.Canceled):
		if permit.probe {
			b.probing = false
		}
	case err == nil:
		b.failures = 0
		if b.state != StateClosed {
			b.state = StateClosed
			b.openedAt = time.Time{}
			b.probing = false
			t := b.transitionLocked()
			next = &t
		}
	default:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.probing = false
			t := b.transitionLocked()
			next = &t
		}
	}
	b.mu.Unlock()

	if next != nil {
		b.persist(*next)
	}
}

// transitionLocked starts a new generation so permits from the previous
// state no longer count, and sequences the snapshot for persistence.
func (b *Breaker) transitionLocked() transition {
	b.generation++
	b.seq++
	return transition{seq: b.seq, snap: b.snapshotLocked()}
}

// Snapshot returns the breaker's current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) restore(state store.CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch State(state.State) {
	case StateOpen, StateHalfOpen:
		// A probe interrupted by a restart is treated as still open so the
		// cooldown decides when the next probe goes out.
		b.state = StateOpen
		b.openedAt = state.OpenedAt
		if b.openedAt.IsZero() {
			b.openedAt = b.now()
		}
	default:
		b.state = StateClosed
	}
	b.failures = state.Failures
	b.probing = false
	b.generation++
}

func (b *Breaker) snapshotLocked() Snapshot {
	return Snapshot{Dependency: b.name, State: b.state, Failures: b.failures, OpenedAt: b.openedAt}
}

func (b *Breaker) persist(t transition) {
	snap := t.snap
	logger := b.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldDependency, snap.Dependency),
		logging.String("state", string(snap.State)),
		logging.Int("failures", snap.Failures),
		logging.String(logging.FieldEventType, "circuit_transition"),
	}
	if snap.State == StateOpen {
		logging.WarnWithContext(logger, "circuit opened", "circuit_opened", append(attrs,
			logging.Duration("cooldown", b.cooldown),
			logging.String(logging.FieldErrorHint, "check the dependency's availability"),
			logging.String(logging.FieldImpact, "stages using this dependency fail fast until the cooldown elapses"),
		)...)
	} else {
		logger.Info("circuit state changed", logging.Args(attrs...)...)
	}

	if b.sink == nil {
		return
	}
	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	if t.seq <= b.persisted {
		return
	}
	b.persisted = t.seq
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.sink.SaveCircuitState(ctx, store.CircuitState{
		Dependency: snap.Dependency,
		State:      string(snap.State),
		Failures:   snap.Failures,
		OpenedAt:   snap.OpenedAt,
	}); err != nil {
		logging.WarnWithContext(logger, "failed to persist circuit state", "circuit_persist_failed",
			logging.String(logging.FieldDependency, snap.Dependency),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database health"),
			logging.String(logging.FieldImpact, "breaker state will not survive a restart"),
		)
	}
}
