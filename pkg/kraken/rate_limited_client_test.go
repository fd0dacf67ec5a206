package kraken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kraken/internal/ratelimit"
	"kraken/pkg/core"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingLimiter admits everything and logs each wait under its name.
type recordingLimiter struct {
	name string
	log  *[]string
}

func (l recordingLimiter) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

func (l recordingLimiter) WaitN(ctx context.Context, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	*l.log = append(*l.log, l.name)
	return nil
}

// stubClient answers every call with the configured response and logs the
// call into the same log as the limiters.
type stubClient struct {
	log *[]string
	err error

	addOrder      *AddOrder
	addOrderBatch *AddOrderBatch
	orderEdit     *OrderEdit
}

func (s *stubClient) record(name string) {
	*s.log = append(*s.log, name)
}

func reply[T any](s *stubClient, name string, result *T) (*Response[T], error) {
	s.record(name)
	if s.err != nil {
		return nil, s.err
	}
	if result == nil {
		result = new(T)
	}
	return &Response[T]{Result: result}, nil
}

func (s *stubClient) GetServerTime(context.Context) (*Response[ServerTime], error) {
	return reply[ServerTime](s, "time", nil)
}

func (s *stubClient) GetSystemStatus(context.Context) (*Response[SystemStatus], error) {
	return reply[SystemStatus](s, "status", nil)
}

func (s *stubClient) GetTickerInformation(context.Context, *TickerRequest) (*Response[map[string]TickerInfo], error) {
	return reply[map[string]TickerInfo](s, "ticker", nil)
}

func (s *stubClient) GetOHLC(context.Context, *OHLCRequest) (*Response[OHLCResult], error) {
	return reply[OHLCResult](s, "ohlc", nil)
}

func (s *stubClient) GetRecentTrades(context.Context, *RecentTradesRequest) (*Response[RecentTradesResult], error) {
	return reply[RecentTradesResult](s, "trades", nil)
}

func (s *stubClient) GetAccountBalance(context.Context) (*Response[AccountBalance], error) {
	return reply[AccountBalance](s, "balance", nil)
}

func (s *stubClient) GetOpenOrders(context.Context, *OpenOrdersRequest) (*Response[OpenOrders], error) {
	return reply[OpenOrders](s, "open_orders", nil)
}

func (s *stubClient) GetClosedOrders(context.Context, *ClosedOrdersRequest) (*Response[ClosedOrders], error) {
	return reply[ClosedOrders](s, "closed_orders", nil)
}

func (s *stubClient) AddOrder(context.Context, *AddOrderRequest) (*Response[AddOrder], error) {
	return reply(s, "add_order", s.addOrder)
}

func (s *stubClient) AddOrderBatch(context.Context, *AddOrderBatchRequest) (*Response[AddOrderBatch], error) {
	return reply(s, "add_order_batch", s.addOrderBatch)
}

func (s *stubClient) EditOrder(context.Context, *EditOrderRequest) (*Response[OrderEdit], error) {
	return reply(s, "edit_order", s.orderEdit)
}

func (s *stubClient) CancelOrder(context.Context, *CancelOrderRequest) (*Response[CancelOrder], error) {
	return reply[CancelOrder](s, "cancel_order", nil)
}

func (s *stubClient) CancelAllOrders(context.Context) (*Response[CancelOrder], error) {
	return reply[CancelOrder](s, "cancel_all", nil)
}

func (s *stubClient) CancelAllOrdersAfter(context.Context, *CancelAllOrdersAfterRequest) (*Response[CancelAllOrdersAfter], error) {
	return reply[CancelAllOrdersAfter](s, "cancel_all_after", nil)
}

func (s *stubClient) CancelOrderBatch(context.Context, *CancelOrderBatchRequest) (*Response[CancelOrder], error) {
	return reply[CancelOrder](s, "cancel_order_batch", nil)
}

func (s *stubClient) GetWebSocketsToken(context.Context) (*Response[WebSocketToken], error) {
	return reply(s, "ws_token", &WebSocketToken{Token: "token"})
}

func (s *stubClient) Close() error {
	return nil
}

type rateLimitedFixture struct {
	client *RateLimitedClient
	stub   *stubClient
	clock  *manualClock
	log    *[]string
}

func newRateLimitedFixture(t *testing.T, tier core.VerificationTier) *rateLimitedFixture {
	t.Helper()
	log := &[]string{}
	clock := newManualClock()
	stub := &stubClient{log: log}
	pairs := ratelimit.NewKeyedLimiter[string](func() ratelimit.Limiter {
		return recordingLimiter{name: "pair", log: log}
	})

	client := NewRateLimitedClient(stub, tier,
		WithPublicLimiter(recordingLimiter{name: "public", log: log}),
		WithPairLimiter(pairs),
		WithLimiterOptions(ratelimit.WithClock(clock)),
	)
	return &rateLimitedFixture{client: client, stub: stub, clock: clock, log: log}
}

func (f *rateLimitedFixture) reset() {
	*f.log = (*f.log)[:0]
}

func TestRateLimitedClient_PublicOrdering(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(c *RateLimitedClient) error
		want []string
	}{
		{"server_time", func(c *RateLimitedClient) error {
			_, err := c.GetServerTime(ctx)
			return err
		}, []string{"public", "time"}},
		{"system_status", func(c *RateLimitedClient) error {
			_, err := c.GetSystemStatus(ctx)
			return err
		}, []string{"public", "status"}},
		{"ticker", func(c *RateLimitedClient) error {
			_, err := c.GetTickerInformation(ctx, &TickerRequest{Pairs: []string{"XBTUSD"}})
			return err
		}, []string{"public", "ticker"}},
		{"ohlc", func(c *RateLimitedClient) error {
			_, err := c.GetOHLC(ctx, &OHLCRequest{Pair: "XBTUSD"})
			return err
		}, []string{"pair", "ohlc"}},
		{"recent_trades", func(c *RateLimitedClient) error {
			_, err := c.GetRecentTrades(ctx, &RecentTradesRequest{Pair: "XBTUSD"})
			return err
		}, []string{"pair", "public", "trades"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRateLimitedFixture(t, core.TierIntermediate)
			require.NoError(t, tt.call(f.client))
			assert.Equal(t, tt.want, *f.log)
		})
	}
}

func TestRateLimitedClient_PairLimiterPerPair(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	ctx := context.Background()

	_, err := f.client.GetOHLC(ctx, &OHLCRequest{Pair: "XBTUSD"})
	require.NoError(t, err)
	_, err = f.client.GetOHLC(ctx, &OHLCRequest{Pair: "ETHUSD"})
	require.NoError(t, err)
	_, err = f.client.GetRecentTrades(ctx, &RecentTradesRequest{Pair: "XBTUSD"})
	require.NoError(t, err)

	assert.Equal(t, 2, f.client.pairs.Len())
}

func TestRateLimitedClient_PrivateCosts(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(c *RateLimitedClient) error
		cost int64
	}{
		{"balance", func(c *RateLimitedClient) error {
			_, err := c.GetAccountBalance(ctx)
			return err
		}, 100},
		{"open_orders", func(c *RateLimitedClient) error {
			_, err := c.GetOpenOrders(ctx, nil)
			return err
		}, 100},
		{"closed_orders", func(c *RateLimitedClient) error {
			_, err := c.GetClosedOrders(ctx, nil)
			return err
		}, 200},
		{"ws_token", func(c *RateLimitedClient) error {
			_, err := c.GetWebSocketsToken(ctx)
			return err
		}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRateLimitedFixture(t, core.TierIntermediate)
			require.Equal(t, int64(privateMaximum), f.client.private.Available())

			require.NoError(t, tt.call(f.client))
			assert.Equal(t, privateMaximum-tt.cost, f.client.private.Available())
			assert.Equal(t, int64(12500), f.client.trading.Available())
		})
	}
}

func TestRateLimitedClient_PrivateWaitsForReplenish(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	ctx := context.Background()

	for range 20 {
		_, err := f.client.GetAccountBalance(ctx)
		require.NoError(t, err)
	}
	start := f.clock.Now()

	_, err := f.client.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, f.clock.Now().Sub(start))
}

func TestRateLimitedClient_AddOrderNotifies(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	f.stub.addOrder = &AddOrder{TxID: []string{"O1", "O2"}}
	userRef := int64(9)

	_, err := f.client.AddOrder(context.Background(), &AddOrderRequest{Pair: "XBTUSD", UserRef: &userRef})
	require.NoError(t, err)
	assert.Equal(t, int64(12400), f.client.trading.Available())

	for _, id := range []string{"O1", "O2"} {
		age, ok := f.client.trading.OrderAge(id)
		require.True(t, ok, id)
		assert.Zero(t, age)
	}

	require.NoError(t, f.client.trading.CancelOrderByUserRef(context.Background(), userRef))
	assert.Equal(t, int64(12400-800), f.client.trading.Available())
}

func TestRateLimitedClient_AddOrderFailureNotRecorded(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	f.stub.addOrder = &AddOrder{TxID: []string{"O1"}}
	f.stub.err = errors.New("boom")

	_, err := f.client.AddOrder(context.Background(), &AddOrderRequest{Pair: "XBTUSD"})
	require.Error(t, err)

	_, ok := f.client.trading.OrderAge("O1")
	assert.False(t, ok)
	assert.Equal(t, int64(12400), f.client.trading.Available(), "charges are not refunded")
}

func TestRateLimitedClient_AddOrderBatchNotifiesSuccesses(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	f.stub.addOrderBatch = &AddOrderBatch{Orders: []BatchedOrder{
		{TxID: "O1"},
		{Error: "EOrder:Insufficient funds"},
		{TxID: "O3"},
	}}
	refs := []int64{1, 2, 3}

	_, err := f.client.AddOrderBatch(context.Background(), &AddOrderBatchRequest{
		Pair: "XBTUSD",
		Orders: []BatchOrder{
			{UserRef: &refs[0]},
			{UserRef: &refs[1]},
			{UserRef: &refs[2]},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12500-250), f.client.trading.Available())

	_, ok := f.client.trading.OrderAge("O1")
	assert.True(t, ok)
	_, ok = f.client.trading.OrderAge("O3")
	assert.True(t, ok)

	before := f.client.trading.Available()
	require.NoError(t, f.client.trading.CancelOrderByUserRef(context.Background(), refs[1]))
	assert.Equal(t, before, f.client.trading.Available(), "failed order's userref is unknown")
}

func TestRateLimitedClient_EditOrder(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	f.client.trading.NotifyAddOrder("O1", f.clock.Now(), nil)
	f.stub.orderEdit = &OrderEdit{TxID: "O2", OriginalTxID: "O1"}
	userRef := int64(5)

	_, err := f.client.EditOrder(context.Background(), &EditOrderRequest{TxID: "O1", Pair: "XBTUSD", UserRef: &userRef})
	require.NoError(t, err)
	assert.Equal(t, int64(12500-700), f.client.trading.Available())

	_, ok := f.client.trading.OrderAge("O2")
	assert.True(t, ok)
}

func TestRateLimitedClient_EditUnknownOrder(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	f.stub.orderEdit = &OrderEdit{}

	_, err := f.client.EditOrder(context.Background(), &EditOrderRequest{TxID: "OX", Pair: "XBTUSD"})
	require.NoError(t, err)
	assert.Equal(t, int64(12500-100), f.client.trading.Available())
}

func TestRateLimitedClient_CancelPenaltyByAge(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		cost int64
	}{
		{"young", 2 * time.Second, 800},
		{"middle", 100 * time.Second, 100},
		{"old", 10 * time.Minute, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRateLimitedFixture(t, core.TierIntermediate)
			f.stub.addOrder = &AddOrder{TxID: []string{"O1"}}

			_, err := f.client.AddOrder(context.Background(), &AddOrderRequest{Pair: "XBTUSD"})
			require.NoError(t, err)
			f.clock.Advance(tt.age)
			require.Equal(t, int64(12500), f.client.trading.Available())

			_, err = f.client.CancelOrder(context.Background(), &CancelOrderRequest{Ref: core.TxID("O1")})
			require.NoError(t, err)
			assert.Equal(t, 12500-tt.cost, f.client.trading.Available())
		})
	}
}

func TestRateLimitedClient_CancelOrderBatchSumsPenalties(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	now := f.clock.Now()
	userRef := int64(3)
	f.client.trading.NotifyAddOrder("O1", now, nil)
	f.client.trading.NotifyAddOrder("O2", now.Add(-50*time.Second), &userRef)

	_, err := f.client.CancelOrderBatch(context.Background(), &CancelOrderBatchRequest{
		Orders: []core.OrderRef{core.TxID("O1"), core.UserRef(userRef), core.TxID("unknown")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12500-800-200), f.client.trading.Available())
}

func TestRateLimitedClient_CancelAllUncharged(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierPro)
	ctx := context.Background()

	_, err := f.client.CancelAllOrders(ctx)
	require.NoError(t, err)
	_, err = f.client.CancelAllOrdersAfter(ctx, &CancelAllOrdersAfterRequest{Timeout: 60})
	require.NoError(t, err)

	assert.Equal(t, int64(18000), f.client.trading.Available())
	assert.Equal(t, int64(privateMaximum), f.client.private.Available())
	assert.Equal(t, []string{"cancel_all", "cancel_all_after"}, *f.log)
}

func TestRateLimitedClient_ContextCancelled(t *testing.T) {
	f := newRateLimitedFixture(t, core.TierIntermediate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.client.AddOrder(ctx, &AddOrderRequest{Pair: "XBTUSD"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.client.GetAccountBalance(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.client.GetServerTime(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, *f.log)
	assert.Equal(t, int64(12500), f.client.trading.Available())
}

func TestRateLimitedClient_SharedTradingLimiter(t *testing.T) {
	clock := newManualClock()
	shared := ratelimit.NewTradingLimiter(core.TierIntermediate, ratelimit.WithClock(clock))
	log := &[]string{}
	stub := &stubClient{log: log, addOrder: &AddOrder{TxID: []string{"O1"}}}

	a := NewRateLimitedClient(stub, core.TierIntermediate, WithTradingLimiter(shared))
	b := NewRateLimitedClient(stub, core.TierIntermediate, WithTradingLimiter(shared))
	assert.Same(t, shared, a.TradingLimiter())

	_, err := a.AddOrder(context.Background(), &AddOrderRequest{Pair: "XBTUSD"})
	require.NoError(t, err)

	_, err = b.CancelOrder(context.Background(), &CancelOrderRequest{Ref: core.TxID("O1")})
	require.NoError(t, err)
	assert.Equal(t, int64(12500-100-800), shared.Available())
}

func TestNewPrivateLimiter(t *testing.T) {
	clock := newManualClock()
	standard := NewPrivateLimiter(core.TierIntermediate, ratelimit.WithClock(clock))
	pro := NewPrivateLimiter(core.TierPro, ratelimit.WithClock(clock))

	require.NoError(t, standard.WaitWithCost(context.Background(), privateMaximum))
	require.NoError(t, pro.WaitWithCost(context.Background(), privateMaximum))
	clock.Advance(time.Second)

	assert.Equal(t, int64(privateRateStandard), standard.Available())
	assert.Equal(t, int64(privateRatePro), pro.Available())
}
