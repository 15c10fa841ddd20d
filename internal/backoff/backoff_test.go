package backoff

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestPolicy_Ceiling(t *testing.T) {
	p := Policy{Base: time.Second, Cap: 60 * time.Second}
	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60, 60}
	for n, w := range want {
		if got := p.Ceiling(n); got != w*time.Second {
			t.Errorf("Ceiling(%d) = %v, want %v", n, got, w*time.Second)
		}
	}
	if got := p.Ceiling(10_000); got != p.Cap {
		t.Errorf("Ceiling(10000) = %v, want cap (no overflow)", got)
	}
}

func TestPolicy_CeilingUncapped(t *testing.T) {
	p := Policy{Base: time.Second}
	for n, w := range []time.Duration{1, 2, 4, 8} {
		if got := p.Ceiling(n); got != w*time.Second {
			t.Errorf("Ceiling(%d) = %v, want %v", n, got, w*time.Second)
		}
	}
	if got := p.Ceiling(200); got != math.MaxInt64 {
		t.Errorf("Ceiling(200) = %v, want saturation at max duration", got)
	}
}

func TestPolicy_CeilingMonotonic(t *testing.T) {
	p := Policy{Base: 250 * time.Millisecond, Cap: 45 * time.Second}
	prev := time.Duration(0)
	for n := 0; n < 64; n++ {
		c := p.Ceiling(n)
		if c < prev {
			t.Fatalf("Ceiling(%d) = %v < Ceiling(%d) = %v", n, c, n-1, prev)
		}
		if c > p.Cap {
			t.Fatalf("Ceiling(%d) = %v exceeds cap", n, c)
		}
		prev = c
	}
}

func TestPolicy_DelayWithinCeiling(t *testing.T) {
	p := Policy{Base: 10 * time.Millisecond, Cap: time.Second}
	for n := 0; n < 10; n++ {
		for i := 0; i < 200; i++ {
			d := p.Delay(n)
			if d < 0 || d > p.Ceiling(n) {
				t.Fatalf("Delay(%d) = %v outside [0, %v]", n, d, p.Ceiling(n))
			}
		}
	}
}

func TestPolicy_DelayUsesJitter(t *testing.T) {
	full := func(max time.Duration) time.Duration { return max }
	p := Policy{Base: time.Second, Cap: 8 * time.Second, Jitter: full}

	// With jitter pinned to the ceiling, consecutive delays are
	// non-decreasing until the cap and restart at base after a reset.
	var got []time.Duration
	for n := 0; n < 6; n++ {
		got = append(got, p.Delay(n))
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Errorf("delay %d = %v < previous %v", i, got[i], got[i-1])
		}
	}
	if got[len(got)-1] != 8*time.Second {
		t.Errorf("last delay = %v, want cap", got[len(got)-1])
	}
	if d := p.Delay(0); d != time.Second {
		t.Errorf("Delay(0) after reset = %v, want base", d)
	}
}

func TestWait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly on cancellation")
	}
}

func TestWait_Elapses(t *testing.T) {
	if err := Wait(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Wait err = %v", err)
	}
}
