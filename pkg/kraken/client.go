package kraken

import "context"

// Client is the Kraken REST API. CoreClient implements it directly and
// RateLimitedClient wraps another Client.
type Client interface {
	GetServerTime(ctx context.Context) (*Response[ServerTime], error)
	GetSystemStatus(ctx context.Context) (*Response[SystemStatus], error)
	GetTickerInformation(ctx context.Context, req *TickerRequest) (*Response[map[string]TickerInfo], error)
	GetOHLC(ctx context.Context, req *OHLCRequest) (*Response[OHLCResult], error)
	GetRecentTrades(ctx context.Context, req *RecentTradesRequest) (*Response[RecentTradesResult], error)

	GetAccountBalance(ctx context.Context) (*Response[AccountBalance], error)
	GetOpenOrders(ctx context.Context, req *OpenOrdersRequest) (*Response[OpenOrders], error)
	GetClosedOrders(ctx context.Context, req *ClosedOrdersRequest) (*Response[ClosedOrders], error)

	AddOrder(ctx context.Context, req *AddOrderRequest) (*Response[AddOrder], error)
	AddOrderBatch(ctx context.Context, req *AddOrderBatchRequest) (*Response[AddOrderBatch], error)
	EditOrder(ctx context.Context, req *EditOrderRequest) (*Response[OrderEdit], error)
	CancelOrder(ctx context.Context, req *CancelOrderRequest) (*Response[CancelOrder], error)
	CancelAllOrders(ctx context.Context) (*Response[CancelOrder], error)
	CancelAllOrdersAfter(ctx context.Context, req *CancelAllOrdersAfterRequest) (*Response[CancelAllOrdersAfter], error)
	CancelOrderBatch(ctx context.Context, req *CancelOrderBatchRequest) (*Response[CancelOrder], error)

	GetWebSocketsToken(ctx context.Context) (*Response[WebSocketToken], error)

	Close() error
}
