package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"kraken/internal/ratelimit"
	"kraken/internal/ws"
	"kraken/pkg/core"
)

// WSAddOrderParams are the parameters of the v2 add_order method.
type WSAddOrderParams struct {
	OrderType     core.OrderType `json:"order_type"`
	Side          core.OrderSide `json:"side"`
	Symbol        string         `json:"symbol" validate:"required"`
	LimitPrice    json.Number    `json:"limit_price,omitempty"`
	TimeInForce   string         `json:"time_in_force,omitempty" validate:"omitempty,oneof=gtc gtd ioc"`
	OrderQty      json.Number    `json:"order_qty" validate:"required"`
	PostOnly      bool           `json:"post_only,omitempty"`
	ReduceOnly    bool           `json:"reduce_only,omitempty"`
	EffectiveTime string         `json:"effective_time,omitempty"`
	ExpireTime    string         `json:"expire_time,omitempty"`
	Deadline      string         `json:"deadline,omitempty"`
	OrderUserRef  *int64         `json:"order_userref,omitempty"`
	DisplayQty    json.Number    `json:"display_qty,omitempty"`
	Validate      bool           `json:"validate,omitempty"`
	ClOrdID       string         `json:"cl_ord_id,omitempty" validate:"omitempty,max=36"`
	Token         string         `json:"token"`
}

type WSAddOrderResult struct {
	OrderID      string   `json:"order_id"`
	OrderUserRef *int64   `json:"order_userref,omitempty"`
	ClOrdID      string   `json:"cl_ord_id,omitempty"`
	Warning      []string `json:"warning,omitempty"`
}

// WSBatchOrder is one order of a batch_add call.
type WSBatchOrder struct {
	OrderType    core.OrderType `json:"order_type"`
	Side         core.OrderSide `json:"side"`
	LimitPrice   json.Number    `json:"limit_price,omitempty"`
	TimeInForce  string         `json:"time_in_force,omitempty" validate:"omitempty,oneof=gtc gtd ioc"`
	OrderQty     json.Number    `json:"order_qty" validate:"required"`
	PostOnly     bool           `json:"post_only,omitempty"`
	ReduceOnly   bool           `json:"reduce_only,omitempty"`
	OrderUserRef *int64         `json:"order_userref,omitempty"`
	ClOrdID      string         `json:"cl_ord_id,omitempty" validate:"omitempty,max=36"`
}

type WSBatchAddParams struct {
	Symbol   string         `json:"symbol" validate:"required"`
	Orders   []WSBatchOrder `json:"orders" validate:"min=2,max=15,dive"`
	Deadline string         `json:"deadline,omitempty"`
	Validate bool           `json:"validate,omitempty"`
	Token    string         `json:"token"`
}

type WSEditOrderParams struct {
	OrderID      string      `json:"order_id" validate:"required"`
	Symbol       string      `json:"symbol" validate:"required"`
	LimitPrice   json.Number `json:"limit_price,omitempty"`
	OrderQty     json.Number `json:"order_qty,omitempty"`
	DisplayQty   json.Number `json:"display_qty,omitempty"`
	OrderUserRef *int64      `json:"order_userref,omitempty"`
	PostOnly     bool        `json:"post_only,omitempty"`
	ReduceOnly   bool        `json:"reduce_only,omitempty"`
	Deadline     string      `json:"deadline,omitempty"`
	Validate     bool        `json:"validate,omitempty"`
	Token        string      `json:"token"`
}

type WSEditOrderResult struct {
	OrderID         string   `json:"order_id"`
	OriginalOrderID string   `json:"original_order_id"`
	Warning         []string `json:"warning,omitempty"`
}

// WSCancelOrderParams cancels orders by any mix of exchange ids, user
// references and client order ids.
type WSCancelOrderParams struct {
	OrderID      []string `json:"order_id,omitempty"`
	OrderUserRef []int64  `json:"order_userref,omitempty"`
	ClOrdID      []string `json:"cl_ord_id,omitempty"`
	Token        string   `json:"token"`
}

type WSCancelOrderResult struct {
	OrderID string   `json:"order_id"`
	ClOrdID string   `json:"cl_ord_id,omitempty"`
	Warning []string `json:"warning,omitempty"`
}

type wsBatchCancelParams struct {
	Orders []core.OrderRef `json:"orders"`
	Token  string          `json:"token"`
}

type wsTokenParams struct {
	Token string `json:"token"`
}

type wsCancelOnDisconnectParams struct {
	Timeout int    `json:"timeout"`
	Token   string `json:"token"`
}

type WSCancelAllResult struct {
	Count   int64    `json:"count"`
	Warning []string `json:"warning,omitempty"`
}

type WSCancelOnDisconnectResult struct {
	CurrentTime string `json:"currentTime"`
	TriggerTime string `json:"triggerTime"`
}

type wsRequest[P any] struct {
	Method string `json:"method"`
	Params P      `json:"params"`
	ReqID  int64  `json:"req_id"`
}

// WSResponse is the reply to a v2 method call.
type WSResponse[T any] struct {
	Method          string `json:"method"`
	Result          *T     `json:"result,omitempty"`
	Error           string `json:"error,omitempty"`
	Success         bool   `json:"success"`
	ReqID           int64  `json:"req_id"`
	OrdersCancelled int64  `json:"orders_cancelled,omitempty"`
	TimeIn          string `json:"time_in"`
	TimeOut         string `json:"time_out"`
}

// WSNumber renders d as a JSON number, the form the v2 API expects for
// prices and quantities.
func WSNumber(d *apd.Decimal) json.Number {
	if d == nil {
		return ""
	}
	return json.Number(d.Text('f'))
}

// WSTradingClient places, edits and cancels orders over the authenticated
// WebSocket v2 API. Given a TradingLimiter it charges every call exactly
// like RateLimitedClient, so both can share one budget.
type WSTradingClient struct {
	conn    *ws.Client
	token   string
	trading *ratelimit.TradingLimiter
	reqID   atomic.Int64
	logger  zerolog.Logger
}

type WSOption func(*wsOptions)

type wsOptions struct {
	trading   *ratelimit.TradingLimiter
	logger    zerolog.Logger
	reconnect bool
}

// WithWSTradingLimiter charges calls against l.
func WithWSTradingLimiter(l *ratelimit.TradingLimiter) WSOption {
	return func(o *wsOptions) {
		o.trading = l
	}
}

func WithWSLogger(l zerolog.Logger) WSOption {
	return func(o *wsOptions) {
		o.logger = l
	}
}

// WithWSReconnect turns on automatic reconnection. Calls in flight when the
// connection drops fail with core.ErrNotConnected.
func WithWSReconnect(enabled bool) WSOption {
	return func(o *wsOptions) {
		o.reconnect = enabled
	}
}

// NewWSTradingClient returns an unconnected client for url that
// authenticates with token, as returned by GetWebSocketsToken.
func NewWSTradingClient(url, token string, opts ...WSOption) *WSTradingClient {
	o := &wsOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	conn := ws.NewClient(ws.Config{
		URL:              url,
		ReconnectEnabled: o.reconnect,
	})
	conn.SetLogger(o.logger)

	return &WSTradingClient{
		conn:    conn,
		token:   token,
		trading: o.trading,
		logger:  o.logger,
	}
}

// DialWSTrading fetches a WebSocket token through client, then connects to
// url. When client is a RateLimitedClient its trading budget is shared
// unless opts supply another.
func DialWSTrading(ctx context.Context, client Client, url string, opts ...WSOption) (*WSTradingClient, error) {
	resp, err := client.GetWebSocketsToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get websockets token: %w", err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("get websockets token: %v", resp.Error)
	}

	if rl, ok := client.(*RateLimitedClient); ok {
		opts = append([]WSOption{WithWSTradingLimiter(rl.TradingLimiter())}, opts...)
	}

	c := NewWSTradingClient(url, resp.Result.Token, opts...)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *WSTradingClient) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

func (c *WSTradingClient) Close() error {
	return c.conn.Close()
}

// Status returns the frames of the status channel, which Kraken sends on
// connect and whenever the trading engine changes state.
func (c *WSTradingClient) Status() <-chan []byte {
	return c.conn.Subscribe("status")
}

func (c *WSTradingClient) AddOrder(ctx context.Context, params *WSAddOrderParams) (*WSAddOrderResult, error) {
	if err := validateRequest(core.OpAddOrder, params); err != nil {
		return nil, err
	}
	if c.trading != nil {
		if err := c.trading.AddOrder(ctx); err != nil {
			return nil, err
		}
	}

	params.Token = c.token
	resp, err := wsCall[*WSAddOrderParams, WSAddOrderResult](ctx, c, "add_order", params)
	if err != nil {
		return nil, err
	}
	if c.trading != nil && resp.Result != nil && resp.Result.OrderID != "" {
		c.trading.NotifyAddOrder(resp.Result.OrderID, c.trading.Now(), params.OrderUserRef)
	}
	return resp.Result, nil
}

// BatchAdd places 2 to 15 orders for one symbol. Results are in request order.
func (c *WSTradingClient) BatchAdd(ctx context.Context, params *WSBatchAddParams) ([]WSAddOrderResult, error) {
	if err := validateRequest(core.OpAddOrderBatch, params); err != nil {
		return nil, err
	}
	if c.trading != nil {
		if err := c.trading.AddOrderBatch(ctx, len(params.Orders)); err != nil {
			return nil, err
		}
	}

	params.Token = c.token
	resp, err := wsCall[*WSBatchAddParams, []WSAddOrderResult](ctx, c, "batch_add", params)
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, nil
	}
	results := *resp.Result
	if c.trading != nil {
		now := c.trading.Now()
		for i, placed := range results {
			if i >= len(params.Orders) || placed.OrderID == "" {
				continue
			}
			c.trading.NotifyAddOrder(placed.OrderID, now, params.Orders[i].OrderUserRef)
		}
	}
	return results, nil
}

func (c *WSTradingClient) EditOrder(ctx context.Context, params *WSEditOrderParams) (*WSEditOrderResult, error) {
	if err := validateRequest(core.OpEditOrder, params); err != nil {
		return nil, err
	}
	if c.trading != nil {
		if err := c.trading.EditOrder(ctx, params.OrderID); err != nil {
			return nil, err
		}
	}

	params.Token = c.token
	resp, err := wsCall[*WSEditOrderParams, WSEditOrderResult](ctx, c, "edit_order", params)
	if err != nil {
		return nil, err
	}
	if c.trading != nil && resp.Result != nil && resp.Result.OrderID != "" {
		c.trading.NotifyAddOrder(resp.Result.OrderID, c.trading.Now(), params.OrderUserRef)
	}
	return resp.Result, nil
}

// CancelOrder cancels every order named in params. Orders named by client
// order id are not tracked by the limiter and cost nothing.
func (c *WSTradingClient) CancelOrder(ctx context.Context, params *WSCancelOrderParams) (*WSCancelOrderResult, error) {
	if c.trading != nil {
		refs := make([]core.OrderRef, 0, len(params.OrderID)+len(params.OrderUserRef))
		for _, id := range params.OrderID {
			refs = append(refs, core.TxID(id))
		}
		for _, ref := range params.OrderUserRef {
			refs = append(refs, core.UserRef(ref))
		}
		if err := c.trading.CancelOrderBatch(ctx, refs); err != nil {
			return nil, err
		}
	}

	params.Token = c.token
	resp, err := wsCall[*WSCancelOrderParams, WSCancelOrderResult](ctx, c, "cancel_order", params)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// BatchCancel cancels up to 50 orders and returns how many were cancelled.
func (c *WSTradingClient) BatchCancel(ctx context.Context, orders []core.OrderRef) (int64, error) {
	if len(orders) == 0 || len(orders) > 50 {
		return 0, core.NewExchangeError(core.Exchange, core.ErrorTypeBadRequest, 0,
			fmt.Sprintf("batch_cancel: %d orders, want 1 to 50", len(orders))).WithCode(core.ErrCodeInvalidArguments)
	}
	if c.trading != nil {
		if err := c.trading.CancelOrderBatch(ctx, orders); err != nil {
			return 0, err
		}
	}

	resp, err := wsCall[wsBatchCancelParams, struct{}](ctx, c, "batch_cancel", wsBatchCancelParams{
		Orders: orders,
		Token:  c.token,
	})
	if err != nil {
		return 0, err
	}
	return resp.OrdersCancelled, nil
}

// CancelAll is not charged against the trading budget.
func (c *WSTradingClient) CancelAll(ctx context.Context) (*WSCancelAllResult, error) {
	resp, err := wsCall[wsTokenParams, WSCancelAllResult](ctx, c, "cancel_all", wsTokenParams{Token: c.token})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// CancelOnDisconnect arms the dead man's switch for timeout seconds; zero
// disarms it. It is not charged against the trading budget.
func (c *WSTradingClient) CancelOnDisconnect(ctx context.Context, timeout int) (*WSCancelOnDisconnectResult, error) {
	resp, err := wsCall[wsCancelOnDisconnectParams, WSCancelOnDisconnectResult](ctx, c, "cancel_all_orders_after",
		wsCancelOnDisconnectParams{Timeout: timeout, Token: c.token})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func wsCall[P, T any](ctx context.Context, c *WSTradingClient, method string, params P) (*WSResponse[T], error) {
	id := c.reqID.Add(1)
	reply, err := c.conn.Call(ctx, id, wsRequest[P]{Method: method, Params: params, ReqID: id})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	var resp WSResponse[T]
	if err := sonic.Unmarshal(reply, &resp); err != nil {
		exErr := core.NewExchangeError(core.Exchange, core.ErrorTypeUnknown, 0,
			fmt.Sprintf("decode %s reply: %v", method, err)).WithCode(core.ErrCodeDecode)
		exErr.RawError = string(reply)
		return nil, exErr
	}
	if !resp.Success {
		exErr, _ := core.ParseKrakenError(resp.Error)
		exErr.RawError = string(reply)
		return nil, exErr
	}

	c.logger.Debug().
		Str("method", method).
		Int64("req_id", id).
		Str("time_in", resp.TimeIn).
		Str("time_out", resp.TimeOut).
		Msg("websocket call completed")
	return &resp, nil
}
