package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"verdandi/internal/logging"
	"verdandi/internal/services"
)

// Guard runs calls through the retry policy and the dependency's breaker.
type Guard struct {
	policy   Policy
	breakers *Registry
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithSleeper replaces the backoff sleep, mainly for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) GuardOption {
	return func(g *Guard) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// NewGuard composes a retry policy with a breaker registry.
func NewGuard(policy Policy, breakers *Registry, logger *slog.Logger, opts ...GuardOption) *Guard {
	g := &Guard{
		policy:   policy,
		breakers: breakers,
		logger:   logging.NewComponentLogger(logger, "resilience"),
		sleep:    sleepWithContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breakers exposes the registry backing the guard.
func (g *Guard) Breakers() *Registry {
	return g.breakers
}

// Call invokes fn until it succeeds, fails permanently, or the attempt budget
// runs out. fn receives the 1-based attempt number. Before every attempt the
// dependency's breaker is consulted; an open breaker returns a
// *CircuitOpenError immediately and that refusal is not counted as an
// attempt. The returned count is the number of times fn actually ran.
func (g *Guard) Call(ctx context.Context, dependency string, fn func(ctx context.Context, attempt int) error) (int, error) {
	if fn == nil {
		return 0, errors.New("guard: nil call")
	}
	var breaker *Breaker
	if g.breakers != nil && strings.TrimSpace(dependency) != "" {
		breaker = g.breakers.Get(dependency)
	}
	budget := g.policy.Attempts()
	logger := logging.WithContext(ctx, g.logger).With(logging.String(logging.FieldDependency, dependency))

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		var permit Permit
		if breaker != nil {
			p, err := breaker.Allow()
			if err != nil {
				return attempts, err
			}
			permit = p
		}

		attempts++
		err := fn(services.WithAttempt(ctx, attempts), attempts)
		if breaker != nil {
			breaker.Done(permit, err)
		}
		if err == nil {
			return attempts, nil
		}

		if services.KindOf(err) != services.KindTransient {
			return attempts, err
		}
		if attempts >= budget {
			return attempts, fmt.Errorf("%s: giving up after %d attempts: %w", dependency, attempts, err)
		}

		delay := g.policy.Delay(attempts)
		logger.Warn("transient failure, retrying",
			logging.Int(logging.FieldAttempt, attempts),
			logging.Int("max_attempts", budget),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "retry_scheduled"),
			logging.String(logging.FieldErrorHint, "transient dependency failure; retrying with backoff"),
		)
		if err := g.sleep(ctx, delay); err != nil {
			return attempts, err
		}
	}
}
