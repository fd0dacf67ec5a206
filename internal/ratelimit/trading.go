package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kraken/pkg/core"
)

// Costs are in hundredths of a Kraken rate-limit token.
const (
	CostScale    int64 = 100
	AddOrderCost int64 = 1 * CostScale
)

// TierLimits returns the trading bucket maximum and per-second refill for a
// verification tier, both scaled by CostScale.
func TierLimits(tier core.VerificationTier) (maximum, perSecond int64) {
	if tier == core.TierPro {
		return 18000, 375
	}
	return 12500, 234
}

// EditOrderPenalty returns the penalty level for editing an order that is
// ageSeconds old.
func EditOrderPenalty(ageSeconds int64) int64 {
	switch {
	case ageSeconds < 5:
		return 6
	case ageSeconds < 10:
		return 5
	case ageSeconds < 15:
		return 4
	case ageSeconds < 45:
		return 3
	case ageSeconds < 90:
		return 2
	default:
		return 0
	}
}

// CancelOrderPenalty returns the penalty level for cancelling an order that
// is ageSeconds old.
func CancelOrderPenalty(ageSeconds int64) int64 {
	switch {
	case ageSeconds < 5:
		return 8
	case ageSeconds < 10:
		return 6
	case ageSeconds < 15:
		return 5
	case ageSeconds < 45:
		return 4
	case ageSeconds < 90:
		return 2
	case ageSeconds < 300:
		return 1
	default:
		return 0
	}
}

// AddOrderBatchCost returns the cost of placing n orders in one batch,
// (1 + n/2) tokens.
func AddOrderBatchCost(n int) int64 {
	return CostScale + int64(n)*CostScale/2
}

// TradingLimiter charges trading calls against Kraken's per-account trading
// counter. Edits and cancels are penalised by the age of the order they
// reference, so successful placements must be reported with NotifyAddOrder.
//
// Charges are never refunded, even if the call they guard fails.
type TradingLimiter struct {
	mu        sync.Mutex
	bucket    *TokenBucket
	byID      *TTLCache[string]
	byUserRef *TTLCache[int64]
	clock     Clock
	logger    zerolog.Logger
}

// NewTradingLimiter returns a limiter sized for tier, starting with a full
// budget.
func NewTradingLimiter(tier core.VerificationTier, opts ...Option) *TradingLimiter {
	o := buildOptions(opts)
	maximum, perSecond := TierLimits(tier)
	return &TradingLimiter{
		bucket:    NewTokenBucket(maximum, perSecond, time.Second, opts...),
		byID:      NewTTLCache[string](DefaultOrderLifetime, o.clock),
		byUserRef: NewTTLCache[int64](DefaultOrderLifetime, o.clock),
		clock:     o.clock,
		logger:    o.logger.With().Str("tier", tier.String()).Logger(),
	}
}

// AddOrder charges a single order placement.
func (l *TradingLimiter) AddOrder(ctx context.Context) error {
	return l.charge(ctx, "add_order", AddOrderCost)
}

// AddOrderBatch charges a batch placement of n orders.
func (l *TradingLimiter) AddOrderBatch(ctx context.Context, n int) error {
	return l.charge(ctx, "add_order_batch", AddOrderBatchCost(n))
}

// EditOrder charges an edit of the order with the given exchange id.
func (l *TradingLimiter) EditOrder(ctx context.Context, orderID string) error {
	l.mu.Lock()
	age := ageSeconds(l.byID, orderID, l.clock.Now())
	l.mu.Unlock()
	return l.charge(ctx, "edit_order", (EditOrderPenalty(age)+1)*CostScale)
}

// CancelOrderByID charges a cancel of the order with the given exchange id.
func (l *TradingLimiter) CancelOrderByID(ctx context.Context, orderID string) error {
	l.mu.Lock()
	age := ageSeconds(l.byID, orderID, l.clock.Now())
	l.mu.Unlock()
	return l.charge(ctx, "cancel_order", CancelOrderPenalty(age)*CostScale)
}

// CancelOrderByUserRef charges a cancel of the orders placed with userRef.
func (l *TradingLimiter) CancelOrderByUserRef(ctx context.Context, userRef int64) error {
	l.mu.Lock()
	age := ageSeconds(l.byUserRef, userRef, l.clock.Now())
	l.mu.Unlock()
	return l.charge(ctx, "cancel_order", CancelOrderPenalty(age)*CostScale)
}

// CancelOrder dispatches to CancelOrderByID or CancelOrderByUserRef.
func (l *TradingLimiter) CancelOrder(ctx context.Context, ref core.OrderRef) error {
	if ref.IsUserRef() {
		return l.CancelOrderByUserRef(ctx, ref.Ref())
	}
	return l.CancelOrderByID(ctx, ref.ID())
}

// CancelOrderBatch charges the summed cancel penalties of every referenced
// order in one debit. The sum is not capped: a batch whose total exceeds
// the bucket maximum blocks until ctx is done.
func (l *TradingLimiter) CancelOrderBatch(ctx context.Context, refs []core.OrderRef) error {
	l.mu.Lock()
	now := l.clock.Now()
	var cost int64
	for _, ref := range refs {
		var age int64
		if ref.IsUserRef() {
			age = ageSeconds(l.byUserRef, ref.Ref(), now)
		} else {
			age = ageSeconds(l.byID, ref.ID(), now)
		}
		cost += CancelOrderPenalty(age) * CostScale
	}
	l.mu.Unlock()
	return l.charge(ctx, "cancel_order_batch", cost)
}

// NotifyAddOrder records a successfully placed or edited order so later
// edits and cancels are penalised by its age. userRef may be nil.
func (l *TradingLimiter) NotifyAddOrder(orderID string, placedAt time.Time, userRef *int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID.Insert(orderID, placedAt)
	if userRef != nil {
		l.byUserRef.Insert(*userRef, placedAt)
	}
	l.logger.Debug().
		Str("order_id", orderID).
		Time("placed_at", placedAt).
		Msg("order recorded")
}

// OrderAge returns how long ago the order with the given exchange id was
// recorded, if it is still remembered.
func (l *TradingLimiter) OrderAge(orderID string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	createdAt, ok := l.byID.Get(orderID)
	if !ok {
		return 0, false
	}
	return l.clock.Now().Sub(createdAt), true
}

// Now returns the limiter's current time, the timestamp to pass to
// NotifyAddOrder.
func (l *TradingLimiter) Now() time.Time {
	return l.clock.Now()
}

// Available returns the remaining trading budget in scaled units.
func (l *TradingLimiter) Available() int64 {
	return l.bucket.Available()
}

func (l *TradingLimiter) charge(ctx context.Context, op string, cost int64) error {
	l.logger.Debug().
		Str("op", op).
		Int64("cost", cost).
		Msg("trading charge")
	return l.bucket.WaitWithCost(ctx, cost)
}

// ageSeconds returns the whole seconds since key was recorded, or
// math.MaxInt64 when it is unknown.
func ageSeconds[K interface{ ~string | ~int64 }](cache *TTLCache[K], key K, now time.Time) int64 {
	createdAt, ok := cache.Get(key)
	if !ok {
		return math.MaxInt64
	}
	return int64(now.Sub(createdAt) / time.Second)
}
