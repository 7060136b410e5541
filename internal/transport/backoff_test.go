package transport

import (
	"testing"
	"time"
)

func TestBackoffBaseIsMonotonicAndCapped(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 0.25)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	var prev time.Duration
	for attempt, w := range want {
		d := b.Base(attempt)
		if d != w {
			t.Errorf("attempt %d: base = %s, want %s", attempt, d, w)
		}
		if d < prev {
			t.Errorf("attempt %d: base %s below previous %s", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoffJitterStaysWithinQuarter(t *testing.T) {
	b := NewBackoff(400*time.Millisecond, 10*time.Second, 0.25)
	for i := 0; i < 200; i++ {
		if d := b.Delay(0); d < 300*time.Millisecond || d > 500*time.Millisecond {
			t.Fatalf("delay %s outside [300ms, 500ms]", d)
		}
	}
}

func TestBackoffWithoutJitterIsDeterministic(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, time.Second, 0)
	if d := b.Delay(2); d != 40*time.Millisecond {
		t.Fatalf("delay = %s, want 40ms", d)
	}
}
