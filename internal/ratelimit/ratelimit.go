// Package ratelimit admits outbound websocket and REST calls through a
// token bucket.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"cryptoconnect/models"
)

// Limiter delays the caller until it may send. It never rejects a call;
// the only error is the context ending first.
type Limiter interface {
	Admit(ctx context.Context) error
}

// TokenBucket holds at most Capacity tokens and refills continuously at
// RefillPerSecond. It starts full.
type TokenBucket struct {
	limiter         *rate.Limiter
	capacity        int
	refillPerSecond float64
}

func NewTokenBucket(capacity int, refillPerSecond float64) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	limit := rate.Limit(refillPerSecond)
	if refillPerSecond <= 0 {
		limit = rate.Inf
	}
	return &TokenBucket{
		limiter:         rate.NewLimiter(limit, capacity),
		capacity:        capacity,
		refillPerSecond: refillPerSecond,
	}
}

func (b *TokenBucket) Admit(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit admission: %w", err)
	}
	return nil
}

func (b *TokenBucket) Capacity() int            { return b.capacity }
func (b *TokenBucket) RefillPerSecond() float64 { return b.refillPerSecond }

// Defaults are the per-venue send budgets, in messages per second with an
// equal burst.
var Defaults = map[models.Exchange]float64{
	models.ExchangeHyperliquid: 20,
	models.ExchangeBybit:       10,
	models.ExchangeOKX:         10,
	models.ExchangeMEXC:        10,
}

// ForExchange builds the bucket for ex. Non-positive overrides fall back to
// the venue default.
func ForExchange(ex models.Exchange, capacity int, refillPerSecond float64) *TokenBucket {
	def, ok := Defaults[ex]
	if !ok {
		def = 10
	}
	if refillPerSecond <= 0 {
		refillPerSecond = def
	}
	if capacity <= 0 {
		capacity = int(def)
	}
	return NewTokenBucket(capacity, refillPerSecond)
}
