// Package backoff computes reconnect delays: capped exponential growth with
// full jitter.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy describes the delay before reconnect attempt n (0-based).
type Policy struct {
	Base time.Duration
	Cap  time.Duration

	// Jitter returns a value in [0, max]. Nil means uniform random.
	Jitter func(max time.Duration) time.Duration
}

// Ceiling returns min(Base * 2^n, Cap), the upper bound of Delay(n). A zero
// Cap leaves growth unbounded, saturating at the largest Duration.
func (p Policy) Ceiling(n int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 0; i < n; i++ {
		if p.Cap > 0 && d >= p.Cap/2 {
			return p.Cap
		}
		if d > math.MaxInt64/2 {
			return math.MaxInt64
		}
		d *= 2
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

// Delay returns a jittered delay uniformly distributed in [0, Ceiling(n)].
func (p Policy) Delay(n int) time.Duration {
	ceiling := p.Ceiling(n)
	if ceiling <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(ceiling)
	}
	if ceiling == math.MaxInt64 {
		return time.Duration(rand.Int64())
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// Wait sleeps for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
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
