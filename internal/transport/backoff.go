package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// Backoff computes reconnect delays: Base(n) = min(base*2^n, max), and
// Delay(n) applies a uniform +/- jitter fraction on top of Base(n).
type Backoff struct {
	curve  backoff.Backoff
	jitter float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	if max < base {
		max = base
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Backoff{
		curve:  backoff.Backoff{Min: base, Max: max, Factor: 2},
		jitter: jitter,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Base is the un-jittered delay before attempt n (zero based).
func (b *Backoff) Base(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return b.curve.ForAttempt(float64(attempt))
}

// Delay is Base(attempt) scaled by a random factor in [1-jitter, 1+jitter].
func (b *Backoff) Delay(attempt int) time.Duration {
	base := b.Base(attempt)
	if b.jitter == 0 {
		return base
	}
	b.mu.Lock()
	f := 1 + b.jitter*(2*b.rnd.Float64()-1)
	b.mu.Unlock()
	return time.Duration(float64(base) * f)
}

func (b *Backoff) Max() time.Duration { return b.curve.Max }
