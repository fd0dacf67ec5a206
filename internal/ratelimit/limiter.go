package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the waiting half of a rate limiter. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
	WaitN(ctx context.Context, n int) error
}

// NewPublicLimiter returns the default limiter for Kraken's public
// endpoints: one call per second, no burst.
func NewPublicLimiter() *rate.Limiter {
	return NewWindowLimiter(1, time.Second)
}

// NewWindowLimiter returns a limiter admitting n calls per window, all of
// which may be used at once.
func NewWindowLimiter(n int, window time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(window/time.Duration(n)), n)
}

// KeyedLimiter holds one independent Limiter per key, for endpoints limited
// per resource (e.g. per pair) rather than globally. Limiters for unseen
// keys are created lazily by the constructor passed to NewKeyedLimiter.
type KeyedLimiter[K comparable] struct {
	limiters   sync.Map
	newLimiter func() Limiter
	metrics    *Metrics
}

// Metrics tracks statistics about keyed limiter usage.
type Metrics struct {
	totalWaits    atomic.Int64
	admittedWaits atomic.Int64
	failedWaits   atomic.Int64
	limiterCount  atomic.Int32
}

// NewKeyedLimiter returns an empty registry. A nil newLimiter defaults to
// NewPublicLimiter.
func NewKeyedLimiter[K comparable](newLimiter func() Limiter) *KeyedLimiter[K] {
	if newLimiter == nil {
		newLimiter = func() Limiter { return NewPublicLimiter() }
	}
	return &KeyedLimiter[K]{
		newLimiter: newLimiter,
		metrics:    &Metrics{},
	}
}

// WaitUntilReady blocks until the limiter for key admits one call or ctx is done.
func (k *KeyedLimiter[K]) WaitUntilReady(ctx context.Context, key K) error {
	return k.record(k.get(key).Wait(ctx))
}

// WaitWithCost blocks until the limiter for key admits cost calls at once.
// With the default limiter a cost above its burst fails immediately.
func (k *KeyedLimiter[K]) WaitWithCost(ctx context.Context, key K, cost int) error {
	return k.record(k.get(key).WaitN(ctx, cost))
}

// AddRateLimiter installs limiter for key and returns the one it replaced.
func (k *KeyedLimiter[K]) AddRateLimiter(key K, limiter Limiter) (Limiter, bool) {
	prev, loaded := k.limiters.Swap(key, limiter)
	if !loaded {
		k.metrics.limiterCount.Add(1)
		return nil, false
	}
	return prev.(Limiter), true
}

// RemoveRateLimiter deletes the limiter for key and returns it.
func (k *KeyedLimiter[K]) RemoveRateLimiter(key K) (Limiter, bool) {
	prev, loaded := k.limiters.LoadAndDelete(key)
	if !loaded {
		return nil, false
	}
	k.metrics.limiterCount.Add(-1)
	return prev.(Limiter), true
}

// Len returns the number of keys with a limiter.
func (k *KeyedLimiter[K]) Len() int {
	return int(k.metrics.limiterCount.Load())
}

func (k *KeyedLimiter[K]) get(key K) Limiter {
	if v, ok := k.limiters.Load(key); ok {
		return v.(Limiter)
	}

	actual, loaded := k.limiters.LoadOrStore(key, k.newLimiter())
	if !loaded {
		k.metrics.limiterCount.Add(1)
	}
	return actual.(Limiter)
}

func (k *KeyedLimiter[K]) record(err error) error {
	k.metrics.totalWaits.Add(1)
	if err != nil {
		k.metrics.failedWaits.Add(1)
		return err
	}
	k.metrics.admittedWaits.Add(1)
	return nil
}

// Metrics returns a snapshot of the current registry statistics.
func (k *KeyedLimiter[K]) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalWaits:    k.metrics.totalWaits.Load(),
		AdmittedWaits: k.metrics.admittedWaits.Load(),
		FailedWaits:   k.metrics.failedWaits.Load(),
		LimiterCount:  k.metrics.limiterCount.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of keyed limiter statistics.
type MetricsSnapshot struct {
	// TotalWaits is the number of waits started.
	TotalWaits int64
	// AdmittedWaits is the number of waits that were admitted.
	AdmittedWaits int64
	// FailedWaits is the number of waits that returned an error.
	FailedWaits int64
	// LimiterCount is the number of keys with a limiter.
	LimiterCount int32
}
