package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewPublicLimiter(t *testing.T) {
	l := NewPublicLimiter()

	assert.Equal(t, rate.Limit(1), l.Limit())
	assert.Equal(t, 1, l.Burst())
}

func TestNewWindowLimiter(t *testing.T) {
	l := NewWindowLimiter(15, 3*time.Second)

	assert.Equal(t, rate.Limit(5), l.Limit())
	assert.Equal(t, 15, l.Burst())
}

func TestKeyedLimiter_LazyCreation(t *testing.T) {
	k := NewKeyedLimiter[string](nil)
	assert.Equal(t, 0, k.Len())

	require.NoError(t, k.WaitUntilReady(context.Background(), "XBTUSD"))
	assert.Equal(t, 1, k.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, k.WaitUntilReady(ctx, "ETHUSD"))
	assert.Equal(t, 2, k.Len())
}

func TestKeyedLimiter_IndependentKeys(t *testing.T) {
	k := NewKeyedLimiter[string](nil)
	require.NoError(t, k.WaitUntilReady(context.Background(), "XBTUSD"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// XBTUSD has spent its one call per second, ETHUSD has not
	assert.Error(t, k.WaitUntilReady(ctx, "XBTUSD"))
	assert.NoError(t, k.WaitUntilReady(ctx, "ETHUSD"))
}

func TestKeyedLimiter_WaitUntilReadySpacing(t *testing.T) {
	k := NewKeyedLimiter[string](func() Limiter {
		return NewWindowLimiter(1, 50*time.Millisecond)
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, k.WaitUntilReady(context.Background(), "XBTUSD"))
	}

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestKeyedLimiter_WaitWithCost(t *testing.T) {
	k := NewKeyedLimiter[string](func() Limiter {
		return NewWindowLimiter(2, 100*time.Millisecond)
	})

	start := time.Now()
	require.NoError(t, k.WaitWithCost(context.Background(), "XBTUSD", 2))
	require.NoError(t, k.WaitWithCost(context.Background(), "XBTUSD", 2))

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestKeyedLimiter_CostAboveBurst(t *testing.T) {
	k := NewKeyedLimiter[string](nil)

	err := k.WaitWithCost(context.Background(), "XBTUSD", 2)
	assert.Error(t, err)

	metrics := k.Metrics()
	assert.Equal(t, int64(1), metrics.TotalWaits)
	assert.Equal(t, int64(0), metrics.AdmittedWaits)
	assert.Equal(t, int64(1), metrics.FailedWaits)
}

func TestKeyedLimiter_AddRemove(t *testing.T) {
	k := NewKeyedLimiter[string](nil)
	first := rate.NewLimiter(rate.Inf, 1)
	second := rate.NewLimiter(rate.Inf, 1)

	prev, ok := k.AddRateLimiter("XBTUSD", first)
	assert.False(t, ok)
	assert.Nil(t, prev)
	assert.Equal(t, 1, k.Len())

	prev, ok = k.AddRateLimiter("XBTUSD", second)
	assert.True(t, ok)
	assert.Same(t, first, prev)
	assert.Equal(t, 1, k.Len())

	removed, ok := k.RemoveRateLimiter("XBTUSD")
	assert.True(t, ok)
	assert.Same(t, second, removed)
	assert.Equal(t, 0, k.Len())

	removed, ok = k.RemoveRateLimiter("XBTUSD")
	assert.False(t, ok)
	assert.Nil(t, removed)
}

func TestKeyedLimiter_CustomLimiterIsUsed(t *testing.T) {
	k := NewKeyedLimiter[int](nil)
	k.AddRateLimiter(7, rate.NewLimiter(rate.Inf, 1))

	for i := 0; i < 100; i++ {
		require.NoError(t, k.WaitUntilReady(context.Background(), 7))
	}

	metrics := k.Metrics()
	assert.Equal(t, int64(100), metrics.TotalWaits)
	assert.Equal(t, int64(100), metrics.AdmittedWaits)
	assert.Equal(t, int32(1), metrics.LimiterCount)
}
