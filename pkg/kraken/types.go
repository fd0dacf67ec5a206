package kraken

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"

	"kraken/pkg/core"
)

// Response is the envelope around every REST result. Error holds Kraken's
// error strings; known errors are also returned as a Go error by CoreClient.
type Response[T any] struct {
	Result *T       `json:"result,omitempty"`
	Error  []string `json:"error"`
}

type ServerTime struct {
	UnixTime int64  `json:"unixtime"`
	RFC1123  string `json:"rfc1123"`
}

type SystemStatus struct {
	// Status is one of online, maintenance, cancel_only or post_only.
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type TickerRequest struct {
	Pairs []string `validate:"omitempty,dive,required"`
}

func (r *TickerRequest) params() core.Params {
	return make(core.Params).Set("pair", r.Pairs)
}

// TickerInfo is the ticker of one pair. Array fields follow Kraken's
// layout, e.g. Ask is price, whole lot volume and lot volume.
type TickerInfo struct {
	Ask       []apd.Decimal `json:"a"`
	Bid       []apd.Decimal `json:"b"`
	LastTrade []apd.Decimal `json:"c"`
	Volume    []apd.Decimal `json:"v"`
	VWAP      []apd.Decimal `json:"p"`
	Trades    []int64       `json:"t"`
	Low       []apd.Decimal `json:"l"`
	High      []apd.Decimal `json:"h"`
	Open      apd.Decimal   `json:"o"`
}

type OHLCRequest struct {
	Pair string `validate:"required"`
	// Interval in minutes: 1, 5, 15, 30, 60, 240, 1440, 10080 or 21600.
	Interval int    `validate:"omitempty,oneof=1 5 15 30 60 240 1440 10080 21600"`
	Since    *int64 `validate:"omitempty"`
}

func (r *OHLCRequest) params() core.Params {
	p := make(core.Params).Set("pair", r.Pair).Set("since", r.Since)
	if r.Interval > 0 {
		p.Set("interval", r.Interval)
	}
	return p
}

type Candle struct {
	Time   int64
	Open   apd.Decimal
	High   apd.Decimal
	Low    apd.Decimal
	Close  apd.Decimal
	VWAP   apd.Decimal
	Volume apd.Decimal
	Count  int64
}

func (c *Candle) UnmarshalJSON(data []byte) error {
	var fields []any
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) < 8 {
		return fmt.Errorf("candle: want 8 fields, got %d", len(fields))
	}
	var err error
	if c.Time, err = tupleInt(fields[0]); err != nil {
		return fmt.Errorf("candle time: %w", err)
	}
	for i, dst := range []*apd.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.VWAP, &c.Volume} {
		if err := tupleDecimal(fields[i+1], dst); err != nil {
			return fmt.Errorf("candle field %d: %w", i+1, err)
		}
	}
	if c.Count, err = tupleInt(fields[7]); err != nil {
		return fmt.Errorf("candle count: %w", err)
	}
	return nil
}

// OHLCResult holds the candles of the requested pair. Last is the id to
// pass as Since for the next poll.
type OHLCResult struct {
	Pair    string
	Candles []Candle
	Last    int64
}

func (r *OHLCResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if key == "last" {
			if err := sonic.Unmarshal(value, &r.Last); err != nil {
				return fmt.Errorf("ohlc last: %w", err)
			}
			continue
		}
		r.Pair = key
		if err := sonic.Unmarshal(value, &r.Candles); err != nil {
			return fmt.Errorf("ohlc %s: %w", key, err)
		}
	}
	return nil
}

type RecentTradesRequest struct {
	Pair  string `validate:"required"`
	Since string
	Count int `validate:"omitempty,min=1,max=1000"`
}

func (r *RecentTradesRequest) params() core.Params {
	p := make(core.Params).Set("pair", r.Pair).Set("since", r.Since)
	if r.Count > 0 {
		p.Set("count", r.Count)
	}
	return p
}

type PublicTrade struct {
	Price  apd.Decimal
	Volume apd.Decimal
	Time   float64
	// Side is "b" for buy or "s" for sell.
	Side string
	// OrderType is "m" for market or "l" for limit.
	OrderType string
	Misc      string
	TradeID   int64
}

func (t *PublicTrade) UnmarshalJSON(data []byte) error {
	var fields []any
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) < 6 {
		return fmt.Errorf("trade: want at least 6 fields, got %d", len(fields))
	}
	if err := tupleDecimal(fields[0], &t.Price); err != nil {
		return fmt.Errorf("trade price: %w", err)
	}
	if err := tupleDecimal(fields[1], &t.Volume); err != nil {
		return fmt.Errorf("trade volume: %w", err)
	}
	ts, ok := fields[2].(float64)
	if !ok {
		return fmt.Errorf("trade time: unexpected %T", fields[2])
	}
	t.Time = ts
	t.Side, _ = fields[3].(string)
	t.OrderType, _ = fields[4].(string)
	t.Misc, _ = fields[5].(string)
	if len(fields) > 6 {
		id, err := tupleInt(fields[6])
		if err != nil {
			return fmt.Errorf("trade id: %w", err)
		}
		t.TradeID = id
	}
	return nil
}

type RecentTradesResult struct {
	Pair   string
	Trades []PublicTrade
	Last   string
}

func (r *RecentTradesResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if key == "last" {
			if err := sonic.Unmarshal(value, &r.Last); err != nil {
				return fmt.Errorf("trades last: %w", err)
			}
			continue
		}
		r.Pair = key
		if err := sonic.Unmarshal(value, &r.Trades); err != nil {
			return fmt.Errorf("trades %s: %w", key, err)
		}
	}
	return nil
}

// AccountBalance maps asset names to balances.
type AccountBalance map[string]apd.Decimal

type OrderDescription struct {
	Pair      string `json:"pair"`
	Side      string `json:"type"`
	OrderType string `json:"ordertype"`
	Price     string `json:"price"`
	Price2    string `json:"price2"`
	Leverage  string `json:"leverage"`
	Order     string `json:"order"`
	Close     string `json:"close"`
}

type Order struct {
	RefID      *string          `json:"refid"`
	UserRef    *int64           `json:"userref"`
	ClOrdID    string           `json:"cl_ord_id,omitempty"`
	Status     string           `json:"status"`
	OpenTime   float64          `json:"opentm"`
	StartTime  float64          `json:"starttm"`
	ExpireTime float64          `json:"expiretm"`
	CloseTime  float64          `json:"closetm,omitempty"`
	Descr      OrderDescription `json:"descr"`
	Volume     apd.Decimal      `json:"vol"`
	VolumeExec apd.Decimal      `json:"vol_exec"`
	Cost       apd.Decimal      `json:"cost"`
	Fee        apd.Decimal      `json:"fee"`
	Price      apd.Decimal      `json:"price"`
	StopPrice  apd.Decimal      `json:"stopprice"`
	LimitPrice apd.Decimal      `json:"limitprice"`
	Misc       string           `json:"misc"`
	OFlags     string           `json:"oflags"`
	Reason     *string          `json:"reason,omitempty"`
	Trades     []string         `json:"trades,omitempty"`
}

type OpenOrdersRequest struct {
	Trades  bool
	UserRef *int64
}

func (r *OpenOrdersRequest) params() core.Params {
	p := make(core.Params).Set("userref", r.UserRef)
	if r.Trades {
		p.Set("trades", true)
	}
	return p
}

type OpenOrders struct {
	Open map[string]Order `json:"open"`
}

type ClosedOrdersRequest struct {
	Trades  bool
	UserRef *int64
	Start   *int64
	End     *int64
	Offset  int `validate:"min=0"`
	// CloseTime is open, close or both.
	CloseTime string `validate:"omitempty,oneof=open close both"`
}

func (r *ClosedOrdersRequest) params() core.Params {
	p := make(core.Params).
		Set("userref", r.UserRef).
		Set("start", r.Start).
		Set("end", r.End).
		Set("closetime", r.CloseTime)
	if r.Trades {
		p.Set("trades", true)
	}
	if r.Offset > 0 {
		p.Set("ofs", r.Offset)
	}
	return p
}

type ClosedOrders struct {
	Closed map[string]Order `json:"closed"`
	Count  int64            `json:"count"`
}

// AddOrderRequest places a single order. Volume is in the base asset.
type AddOrderRequest struct {
	UserRef     *int64
	ClOrdID     string `validate:"omitempty,max=36"`
	OrderType   core.OrderType
	Side        core.OrderSide
	Volume      apd.Decimal
	DisplayVol  *apd.Decimal
	Pair        string `validate:"required"`
	Price       *apd.Decimal
	Price2      *apd.Decimal
	Trigger     string `validate:"omitempty,oneof=index last"`
	Leverage    string
	ReduceOnly  bool
	OFlags      []string
	TimeInForce string `validate:"omitempty,oneof=GTC IOC GTD"`
	StartTime   string
	ExpireTime  string
	Deadline    string
	Validate    bool
}

func (r *AddOrderRequest) params() core.Params {
	p := make(core.Params).
		Set("userref", r.UserRef).
		Set("cl_ord_id", r.ClOrdID).
		Set("ordertype", r.OrderType.String()).
		Set("type", r.Side.String()).
		Set("volume", r.Volume).
		Set("displayvol", r.DisplayVol).
		Set("pair", r.Pair).
		Set("price", r.Price).
		Set("price2", r.Price2).
		Set("trigger", r.Trigger).
		Set("leverage", r.Leverage).
		Set("oflags", r.OFlags).
		Set("timeinforce", r.TimeInForce).
		Set("starttm", r.StartTime).
		Set("expiretm", r.ExpireTime).
		Set("deadline", r.Deadline)
	if r.ReduceOnly {
		p.Set("reduce_only", true)
	}
	if r.Validate {
		p.Set("validate", true)
	}
	return p
}

type AddOrderDescription struct {
	Order string `json:"order"`
	Close string `json:"close,omitempty"`
}

type AddOrder struct {
	TxID  []string            `json:"txid"`
	Descr AddOrderDescription `json:"descr"`
}

// BatchOrder is one order of an AddOrderBatchRequest. All orders in a batch
// share the request's pair.
type BatchOrder struct {
	UserRef     *int64         `json:"userref,omitempty"`
	ClOrdID     string         `json:"cl_ord_id,omitempty" validate:"omitempty,max=36"`
	OrderType   core.OrderType `json:"ordertype"`
	Side        core.OrderSide `json:"type"`
	Volume      apd.Decimal    `json:"volume"`
	DisplayVol  *apd.Decimal   `json:"displayvol,omitempty"`
	Price       *apd.Decimal   `json:"price,omitempty"`
	Price2      *apd.Decimal   `json:"price2,omitempty"`
	Trigger     string         `json:"trigger,omitempty"`
	Leverage    string         `json:"leverage,omitempty"`
	ReduceOnly  bool           `json:"reduce_only,omitempty"`
	OFlags      string         `json:"oflags,omitempty"`
	TimeInForce string         `json:"timeinforce,omitempty" validate:"omitempty,oneof=GTC IOC GTD"`
	StartTime   string         `json:"starttm,omitempty"`
	ExpireTime  string         `json:"expiretm,omitempty"`
}

type AddOrderBatchRequest struct {
	Orders   []BatchOrder `json:"orders" validate:"min=2,max=15,dive"`
	Pair     string       `json:"pair" validate:"required"`
	Deadline string       `json:"deadline,omitempty"`
	Validate bool         `json:"validate,omitempty"`
}

type BatchedOrder struct {
	TxID  string              `json:"txid"`
	Descr AddOrderDescription `json:"descr"`
	Error string              `json:"error,omitempty"`
}

// AddOrderBatch lists the placed orders in request order. Entries that
// failed carry an Error and no TxID.
type AddOrderBatch struct {
	Orders []BatchedOrder `json:"orders"`
}

type EditOrderRequest struct {
	UserRef        *int64
	TxID           string `validate:"required"`
	Volume         *apd.Decimal
	DisplayVol     *apd.Decimal
	Pair           string `validate:"required"`
	Price          *apd.Decimal
	Price2         *apd.Decimal
	OFlags         []string
	Deadline       string
	CancelResponse bool
	Validate       bool
}

func (r *EditOrderRequest) params() core.Params {
	p := make(core.Params).
		Set("userref", r.UserRef).
		Set("txid", r.TxID).
		Set("volume", r.Volume).
		Set("displayvol", r.DisplayVol).
		Set("pair", r.Pair).
		Set("price", r.Price).
		Set("price2", r.Price2).
		Set("oflags", r.OFlags).
		Set("deadline", r.Deadline)
	if r.CancelResponse {
		p.Set("cancel_response", true)
	}
	if r.Validate {
		p.Set("validate", true)
	}
	return p
}

type OrderEdit struct {
	Status          string              `json:"status"`
	TxID            string              `json:"txid"`
	OriginalTxID    string              `json:"originaltxid"`
	Volume          apd.Decimal         `json:"volume"`
	Price           apd.Decimal         `json:"price"`
	Price2          *apd.Decimal        `json:"price2,omitempty"`
	OrdersCancelled int64               `json:"orders_cancelled"`
	Descr           AddOrderDescription `json:"descr"`
}

type CancelOrderRequest struct {
	Ref core.OrderRef
}

func (r *CancelOrderRequest) params() core.Params {
	return make(core.Params).Set("txid", r.Ref.String())
}

type CancelOrder struct {
	Count   int64 `json:"count"`
	Pending bool  `json:"pending,omitempty"`
}

type CancelAllOrdersAfterRequest struct {
	// Timeout in seconds; zero disarms the timer.
	Timeout int `validate:"min=0,max=86400"`
}

func (r *CancelAllOrdersAfterRequest) params() core.Params {
	return make(core.Params).Set("timeout", r.Timeout)
}

type CancelAllOrdersAfter struct {
	CurrentTime string `json:"currentTime"`
	TriggerTime string `json:"triggerTime"`
}

type CancelOrderBatchRequest struct {
	Orders []core.OrderRef `json:"orders" validate:"min=1,max=50"`
}

type WebSocketToken struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

func tupleInt(v any) (int64, error) {
	switch val := v.(type) {
	case float64:
		return int64(val), nil
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}

func tupleDecimal(v any, dst *apd.Decimal) error {
	switch val := v.(type) {
	case string:
		_, _, err := dst.SetString(val)
		return err
	case float64:
		_, err := dst.SetFloat64(val)
		return err
	default:
		return fmt.Errorf("unexpected %T", v)
	}
}
