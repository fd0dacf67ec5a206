package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TokenBucket is an integer token bucket that refills continuously by rate
// units per interval up to maximum. Callers scale fractional limits (for
// example 2.34 tokens per second) by 100 so all arithmetic stays integral.
//
// A TokenBucket is safe for concurrent use.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int64
	maximum  int64
	rate     int64
	interval time.Duration
	last     time.Time
	// carry holds elapsed nanoseconds times rate that have not yet added up
	// to a whole unit. Always less than interval.
	carry int64

	clock  Clock
	logger zerolog.Logger
}

// NewTokenBucket returns a full bucket. It panics if any parameter is not
// positive or if maximum*interval overflows int64 nanoseconds.
func NewTokenBucket(maximum, rate int64, interval time.Duration, opts ...Option) *TokenBucket {
	if maximum <= 0 || rate <= 0 || interval <= 0 {
		panic(fmt.Sprintf("ratelimit: invalid token bucket maximum=%d rate=%d interval=%s", maximum, rate, interval))
	}
	if maximum > math.MaxInt64/int64(interval) {
		panic(fmt.Sprintf("ratelimit: token bucket maximum %d too large for interval %s", maximum, interval))
	}
	o := buildOptions(opts)
	return &TokenBucket{
		capacity: maximum,
		maximum:  maximum,
		rate:     rate,
		interval: interval,
		last:     o.clock.Now(),
		clock:    o.clock,
		logger:   o.logger,
	}
}

// WaitWithCost blocks until cost units are available and debits them. The
// check and the debit happen under one lock, so concurrent callers never
// overdraw the bucket. A cancelled wait debits nothing.
//
// A cost above Maximum can never be admitted: WaitWithCost logs a warning and
// blocks until ctx is done.
func (b *TokenBucket) WaitWithCost(ctx context.Context, cost int64) error {
	if cost <= 0 {
		return nil
	}
	if cost > b.maximum {
		b.logger.Warn().
			Int64("cost", cost).
			Int64("maximum", b.maximum).
			Msg("cost exceeds bucket maximum, blocking until cancelled")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		b.replenish(b.clock.Now())
		if b.capacity >= cost {
			b.capacity -= cost
			b.mu.Unlock()
			return nil
		}
		wait := b.durationFor(cost - b.capacity)
		b.mu.Unlock()

		b.logger.Debug().
			Int64("cost", cost).
			Dur("wait", wait).
			Msg("waiting for capacity")

		if err := b.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Available returns the current capacity after replenishment.
func (b *TokenBucket) Available() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replenish(b.clock.Now())
	return b.capacity
}

// Maximum returns the bucket ceiling.
func (b *TokenBucket) Maximum() int64 {
	return b.maximum
}

// replenish credits the time since the last refill. Must hold b.mu.
func (b *TokenBucket) replenish(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.last = now

	if b.capacity >= b.maximum {
		b.carry = 0
		return
	}
	if elapsed >= b.durationFor(b.maximum-b.capacity) {
		b.capacity = b.maximum
		b.carry = 0
		return
	}

	// elapsed is below the fill time, so elapsed*rate < maximum*interval.
	acc := b.carry + int64(elapsed)*b.rate
	b.capacity += acc / int64(b.interval)
	b.carry = acc % int64(b.interval)
	if b.capacity >= b.maximum {
		b.capacity = b.maximum
		b.carry = 0
	}
}

// durationFor returns the shortest time after which n more units will have
// been credited. Must hold b.mu.
func (b *TokenBucket) durationFor(n int64) time.Duration {
	if n <= 0 {
		return 0
	}
	nanos := n*int64(b.interval) - b.carry
	return time.Duration((nanos + b.rate - 1) / b.rate)
}
