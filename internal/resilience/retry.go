package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"verdandi/internal/config"
)

// Policy bounds how often a failing call is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig builds a Policy from the retry configuration section.
func PolicyFromConfig(cfg config.Retry) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay(),
		MaxDelay:    cfg.MaxDelay(),
	}
}

// Attempts returns the attempt budget, never less than one.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay before retry k (k >= 1) without jitter:
// BaseDelay * 2^(k-1), capped at MaxDelay when one is set.
func (p Policy) Backoff(k int) time.Duration {
	if k < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < k; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		// Stop doubling before the duration overflows.
		if delay > time.Duration(1<<62) {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Delay returns Backoff(k) plus jitter drawn uniformly from (0, BaseDelay].
func (p Policy) Delay(k int) time.Duration {
	return p.Backoff(k) + p.jitter()
}

func (p Policy) jitter() time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	// Int64N yields [0, base); subtracting from base gives (0, base].
	return p.BaseDelay - time.Duration(rand.Int64N(int64(p.BaseDelay)))
}

// sleepWithContext blocks for d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
