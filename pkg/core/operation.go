package core

// Operation represents a REST endpoint of the Kraken API.
type Operation int

// Operation constants define all supported endpoints.
const (
	// OpServerTime retrieves the server time.
	OpServerTime Operation = iota
	// OpSystemStatus retrieves the exchange status.
	OpSystemStatus
	// OpTicker retrieves ticker information for one or more pairs.
	OpTicker
	// OpOHLC retrieves candlestick data for a pair.
	OpOHLC
	// OpRecentTrades retrieves recent trades for a pair.
	OpRecentTrades
	// OpBalance retrieves account balances.
	OpBalance
	// OpOpenOrders retrieves open orders.
	OpOpenOrders
	// OpClosedOrders retrieves closed orders.
	OpClosedOrders
	// OpAddOrder places an order.
	OpAddOrder
	// OpAddOrderBatch places up to 15 orders for one pair.
	OpAddOrderBatch
	// OpEditOrder edits an open order.
	OpEditOrder
	// OpCancelOrder cancels an order by id or user reference.
	OpCancelOrder
	// OpCancelAll cancels all open orders.
	OpCancelAll
	// OpCancelAllOrdersAfter arms or disarms the dead man's switch.
	OpCancelAllOrdersAfter
	// OpCancelOrderBatch cancels up to 50 orders.
	OpCancelOrderBatch
	// OpWebSocketsToken retrieves a token for the authenticated WebSocket.
	OpWebSocketsToken
)

var operationEndpoints = [...]struct {
	name    string
	path    string
	private bool
}{
	{"Time", "/0/public/Time", false},
	{"SystemStatus", "/0/public/SystemStatus", false},
	{"Ticker", "/0/public/Ticker", false},
	{"OHLC", "/0/public/OHLC", false},
	{"Trades", "/0/public/Trades", false},
	{"Balance", "/0/private/Balance", true},
	{"OpenOrders", "/0/private/OpenOrders", true},
	{"ClosedOrders", "/0/private/ClosedOrders", true},
	{"AddOrder", "/0/private/AddOrder", true},
	{"AddOrderBatch", "/0/private/AddOrderBatch", true},
	{"EditOrder", "/0/private/EditOrder", true},
	{"CancelOrder", "/0/private/CancelOrder", true},
	{"CancelAll", "/0/private/CancelAll", true},
	{"CancelAllOrdersAfter", "/0/private/CancelAllOrdersAfter", true},
	{"CancelOrderBatch", "/0/private/CancelOrderBatch", true},
	{"GetWebSocketsToken", "/0/private/GetWebSocketsToken", true},
}

// String returns the endpoint name, e.g. "AddOrder".
func (o Operation) String() string {
	return operationEndpoints[o].name
}

// Path returns the URL path of the endpoint.
func (o Operation) Path() string {
	return operationEndpoints[o].path
}

// IsPrivate reports whether the endpoint requires a signed request.
func (o Operation) IsPrivate() bool {
	return operationEndpoints[o].private
}
