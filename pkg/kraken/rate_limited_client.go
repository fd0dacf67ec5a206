package kraken

import (
	"context"
	"fmt"
	"time"

	"kraken/internal/ratelimit"
	"kraken/pkg/core"
)

// Private endpoint budget, scaled like the trading budget.
const (
	privateMaximum      = 2000
	privateCost         = 100
	privateHistoryCost  = 200
	privateRateStandard = 50
	privateRatePro      = 100
)

// RateLimitedClient wraps a Client and waits before each call until it fits
// Kraken's rate limits:
//
//   - public endpoints share one limiter of one call per second, and OHLC and
//     recent trades are additionally limited per pair;
//   - private endpoints draw from a token bucket sized by verification tier;
//   - trading endpoints draw from a TradingLimiter, which penalises edits and
//     cancels of young orders.
//
// Successful placements and edits are reported back to the TradingLimiter.
// A RateLimitedClient is safe for concurrent use; every caller shares the
// same budgets.
type RateLimitedClient struct {
	client  Client
	public  ratelimit.Limiter
	pairs   *ratelimit.KeyedLimiter[string]
	private *ratelimit.TokenBucket
	trading *ratelimit.TradingLimiter
}

type rateLimitOptions struct {
	public      ratelimit.Limiter
	pairs       *ratelimit.KeyedLimiter[string]
	trading     *ratelimit.TradingLimiter
	limiterOpts []ratelimit.Option
}

// RateLimitOption configures a RateLimitedClient.
type RateLimitOption func(*rateLimitOptions)

// WithTradingLimiter shares an existing trading budget, e.g. with a
// WSTradingClient on the same account.
func WithTradingLimiter(l *ratelimit.TradingLimiter) RateLimitOption {
	return func(o *rateLimitOptions) {
		o.trading = l
	}
}

// WithPublicLimiter replaces the one call per second public limiter.
func WithPublicLimiter(l ratelimit.Limiter) RateLimitOption {
	return func(o *rateLimitOptions) {
		o.public = l
	}
}

// WithPairLimiter replaces the per pair limiter used by OHLC and recent trades.
func WithPairLimiter(l *ratelimit.KeyedLimiter[string]) RateLimitOption {
	return func(o *rateLimitOptions) {
		o.pairs = l
	}
}

// WithLimiterOptions passes clock and logger options to the token buckets.
func WithLimiterOptions(opts ...ratelimit.Option) RateLimitOption {
	return func(o *rateLimitOptions) {
		o.limiterOpts = append(o.limiterOpts, opts...)
	}
}

func NewRateLimitedClient(client Client, tier core.VerificationTier, opts ...RateLimitOption) *RateLimitedClient {
	o := &rateLimitOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.public == nil {
		o.public = ratelimit.NewPublicLimiter()
	}
	if o.pairs == nil {
		o.pairs = ratelimit.NewKeyedLimiter[string](nil)
	}
	if o.trading == nil {
		o.trading = ratelimit.NewTradingLimiter(tier, o.limiterOpts...)
	}

	return &RateLimitedClient{
		client:  client,
		public:  o.public,
		pairs:   o.pairs,
		private: NewPrivateLimiter(tier, o.limiterOpts...),
		trading: o.trading,
	}
}

// NewPrivateLimiter returns the token bucket for Kraken's private
// endpoints: 20 calls of cost 1, replenishing 0.5/s, or 1/s for Pro.
func NewPrivateLimiter(tier core.VerificationTier, opts ...ratelimit.Option) *ratelimit.TokenBucket {
	rate := int64(privateRateStandard)
	if tier == core.TierPro {
		rate = privateRatePro
	}
	return ratelimit.NewTokenBucket(privateMaximum, rate, time.Second, opts...)
}

// TradingLimiter returns the trading budget, for sharing with other clients.
func (c *RateLimitedClient) TradingLimiter() *ratelimit.TradingLimiter {
	return c.trading
}

func (c *RateLimitedClient) Close() error {
	return c.client.Close()
}

func (c *RateLimitedClient) GetServerTime(ctx context.Context) (*Response[ServerTime], error) {
	if err := c.waitPublic(ctx); err != nil {
		return nil, err
	}
	return c.client.GetServerTime(ctx)
}

func (c *RateLimitedClient) GetSystemStatus(ctx context.Context) (*Response[SystemStatus], error) {
	if err := c.waitPublic(ctx); err != nil {
		return nil, err
	}
	return c.client.GetSystemStatus(ctx)
}

func (c *RateLimitedClient) GetTickerInformation(ctx context.Context, req *TickerRequest) (*Response[map[string]TickerInfo], error) {
	if err := c.waitPublic(ctx); err != nil {
		return nil, err
	}
	return c.client.GetTickerInformation(ctx, req)
}

// GetOHLC is limited per pair only.
func (c *RateLimitedClient) GetOHLC(ctx context.Context, req *OHLCRequest) (*Response[OHLCResult], error) {
	if err := c.pairs.WaitUntilReady(ctx, req.Pair); err != nil {
		return nil, fmt.Errorf("wait for pair %s: %w", req.Pair, err)
	}
	return c.client.GetOHLC(ctx, req)
}

func (c *RateLimitedClient) GetRecentTrades(ctx context.Context, req *RecentTradesRequest) (*Response[RecentTradesResult], error) {
	if err := c.pairs.WaitUntilReady(ctx, req.Pair); err != nil {
		return nil, fmt.Errorf("wait for pair %s: %w", req.Pair, err)
	}
	if err := c.waitPublic(ctx); err != nil {
		return nil, err
	}
	return c.client.GetRecentTrades(ctx, req)
}

func (c *RateLimitedClient) GetAccountBalance(ctx context.Context) (*Response[AccountBalance], error) {
	if err := c.waitPrivate(ctx, privateCost); err != nil {
		return nil, err
	}
	return c.client.GetAccountBalance(ctx)
}

func (c *RateLimitedClient) GetOpenOrders(ctx context.Context, req *OpenOrdersRequest) (*Response[OpenOrders], error) {
	if err := c.waitPrivate(ctx, privateCost); err != nil {
		return nil, err
	}
	return c.client.GetOpenOrders(ctx, req)
}

func (c *RateLimitedClient) GetClosedOrders(ctx context.Context, req *ClosedOrdersRequest) (*Response[ClosedOrders], error) {
	if err := c.waitPrivate(ctx, privateHistoryCost); err != nil {
		return nil, err
	}
	return c.client.GetClosedOrders(ctx, req)
}

func (c *RateLimitedClient) GetWebSocketsToken(ctx context.Context) (*Response[WebSocketToken], error) {
	if err := c.waitPrivate(ctx, privateCost); err != nil {
		return nil, err
	}
	return c.client.GetWebSocketsToken(ctx)
}

func (c *RateLimitedClient) AddOrder(ctx context.Context, req *AddOrderRequest) (*Response[AddOrder], error) {
	if err := c.trading.AddOrder(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.AddOrder(ctx, req)
	if err == nil && resp.Result != nil {
		now := c.trading.Now()
		for _, txID := range resp.Result.TxID {
			c.trading.NotifyAddOrder(txID, now, req.UserRef)
		}
	}
	return resp, err
}

func (c *RateLimitedClient) AddOrderBatch(ctx context.Context, req *AddOrderBatchRequest) (*Response[AddOrderBatch], error) {
	if err := c.trading.AddOrderBatch(ctx, len(req.Orders)); err != nil {
		return nil, err
	}
	resp, err := c.client.AddOrderBatch(ctx, req)
	if err == nil && resp.Result != nil {
		now := c.trading.Now()
		for i, placed := range resp.Result.Orders {
			if i >= len(req.Orders) {
				break
			}
			if placed.Error != "" || placed.TxID == "" {
				continue
			}
			c.trading.NotifyAddOrder(placed.TxID, now, req.Orders[i].UserRef)
		}
	}
	return resp, err
}

func (c *RateLimitedClient) EditOrder(ctx context.Context, req *EditOrderRequest) (*Response[OrderEdit], error) {
	if err := c.trading.EditOrder(ctx, req.TxID); err != nil {
		return nil, err
	}
	resp, err := c.client.EditOrder(ctx, req)
	if err == nil && resp.Result != nil && resp.Result.TxID != "" {
		c.trading.NotifyAddOrder(resp.Result.TxID, c.trading.Now(), req.UserRef)
	}
	return resp, err
}

func (c *RateLimitedClient) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*Response[CancelOrder], error) {
	if err := c.trading.CancelOrder(ctx, req.Ref); err != nil {
		return nil, err
	}
	return c.client.CancelOrder(ctx, req)
}

// CancelAllOrders is not charged against any budget.
func (c *RateLimitedClient) CancelAllOrders(ctx context.Context) (*Response[CancelOrder], error) {
	return c.client.CancelAllOrders(ctx)
}

// CancelAllOrdersAfter is not charged against any budget.
func (c *RateLimitedClient) CancelAllOrdersAfter(ctx context.Context, req *CancelAllOrdersAfterRequest) (*Response[CancelAllOrdersAfter], error) {
	return c.client.CancelAllOrdersAfter(ctx, req)
}

func (c *RateLimitedClient) CancelOrderBatch(ctx context.Context, req *CancelOrderBatchRequest) (*Response[CancelOrder], error) {
	if err := c.trading.CancelOrderBatch(ctx, req.Orders); err != nil {
		return nil, err
	}
	return c.client.CancelOrderBatch(ctx, req)
}

func (c *RateLimitedClient) waitPublic(ctx context.Context) error {
	if err := c.public.Wait(ctx); err != nil {
		return fmt.Errorf("wait for public limit: %w", err)
	}
	return nil
}

func (c *RateLimitedClient) waitPrivate(ctx context.Context, cost int64) error {
	if err := c.private.WaitWithCost(ctx, cost); err != nil {
		return fmt.Errorf("wait for private limit: %w", err)
	}
	return nil
}
