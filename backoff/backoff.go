// Package backoff computes the delay between translation attempts. A
// failed job is never resumed; RunWithRetry starts a fresh one, and
// these strategies only decide how long it waits before doing so.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed:
// attempt 1 is the first retry after the initial failure).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant waits the same interval before every retry. Suited to
// translations that failed on a worker fault rather than a slow
// dependency.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(int) time.Duration { return c.Interval }

// Exponential doubles the delay each retry, starting at Initial and
// capping at Max (zero means uncapped). With Jitter set, the delay is
// drawn uniformly from [0, capped delay] instead — full jitter — which
// spreads out simultaneous re-translations after a shared dependency
// recovers.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates a full-jitter exponential strategy.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

// Delay returns the doubled-and-capped delay for the attempt,
// randomized over [0, delay] when Jitter is set.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := e.Initial
	for i := 1; i < attempt; i++ {
		if e.Max > 0 && d >= e.Max {
			break
		}
		d *= 2
	}
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}
	if e.Jitter && d > 0 {
		d = rand.N(d + 1) //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return d
}

// DefaultStrategy is what RunWithRetry uses when given nil: full-jitter
// exponential from 1s up to 1m. The faults behind a failed translation
// (bitcode fetches, the cache index) recover on network timescales, so
// the cap stays low.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}
