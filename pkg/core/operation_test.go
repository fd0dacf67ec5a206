package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op      Operation
		name    string
		path    string
		private bool
	}{
		{OpServerTime, "Time", "/0/public/Time", false},
		{OpSystemStatus, "SystemStatus", "/0/public/SystemStatus", false},
		{OpTicker, "Ticker", "/0/public/Ticker", false},
		{OpOHLC, "OHLC", "/0/public/OHLC", false},
		{OpRecentTrades, "Trades", "/0/public/Trades", false},
		{OpBalance, "Balance", "/0/private/Balance", true},
		{OpOpenOrders, "OpenOrders", "/0/private/OpenOrders", true},
		{OpClosedOrders, "ClosedOrders", "/0/private/ClosedOrders", true},
		{OpAddOrder, "AddOrder", "/0/private/AddOrder", true},
		{OpAddOrderBatch, "AddOrderBatch", "/0/private/AddOrderBatch", true},
		{OpEditOrder, "EditOrder", "/0/private/EditOrder", true},
		{OpCancelOrder, "CancelOrder", "/0/private/CancelOrder", true},
		{OpCancelAll, "CancelAll", "/0/private/CancelAll", true},
		{OpCancelAllOrdersAfter, "CancelAllOrdersAfter", "/0/private/CancelAllOrdersAfter", true},
		{OpCancelOrderBatch, "CancelOrderBatch", "/0/private/CancelOrderBatch", true},
		{OpWebSocketsToken, "GetWebSocketsToken", "/0/private/GetWebSocketsToken", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.op.String())
			assert.Equal(t, tt.path, tt.op.Path())
			assert.Equal(t, tt.private, tt.op.IsPrivate())
			assert.True(t, strings.HasSuffix(tt.op.Path(), "/"+tt.name))
		})
	}
}
