package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		name      string
		errorType ErrorType
		want      string
	}{
		{"unknown", ErrorTypeUnknown, "UNKNOWN"},
		{"network", ErrorTypeNetwork, "NETWORK"},
		{"timeout", ErrorTypeTimeout, "TIMEOUT"},
		{"rate_limit", ErrorTypeRateLimit, "RATE_LIMIT"},
		{"authentication", ErrorTypeAuthentication, "AUTHENTICATION"},
		{"bad_request", ErrorTypeBadRequest, "BAD_REQUEST"},
		{"not_found", ErrorTypeNotFound, "NOT_FOUND"},
		{"server_error", ErrorTypeServerError, "SERVER_ERROR"},
		{"insufficient_funds", ErrorTypeInsufficientFunds, "INSUFFICIENT_FUNDS"},
		{"invalid_order", ErrorTypeInvalidOrder, "INVALID_ORDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.errorType.String())
		})
	}
}

func TestExchangeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ExchangeError
		want string
	}{
		{
			name: "without_code",
			err: &ExchangeError{
				Exchange:   "kraken",
				Type:       ErrorTypeRateLimit,
				StatusCode: 429,
				Message:    "too many requests",
			},
			want: "[kraken] RATE_LIMIT (429): too many requests",
		},
		{
			name: "with_code",
			err: &ExchangeError{
				Exchange: "kraken",
				Type:     ErrorTypeAuthentication,
				Code:     "INVALID_NONCE",
				Message:  "EAPI:Invalid nonce",
			},
			want: "[kraken] AUTHENTICATION (0/INVALID_NONCE): EAPI:Invalid nonce",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestNewExchangeError(t *testing.T) {
	err := NewExchangeError(Exchange, ErrorTypeNetwork, 503, "service unavailable")

	assert.NotNil(t, err)
	assert.Equal(t, "kraken", err.Exchange)
	assert.Equal(t, ErrorTypeNetwork, err.Type)
	assert.Equal(t, 503, err.StatusCode)
	assert.Equal(t, "service unavailable", err.Message)
	assert.False(t, err.Timestamp.IsZero())
}

func TestParseKrakenError(t *testing.T) {
	tests := []struct {
		message  string
		wantType ErrorType
		wantCode ErrorCode
	}{
		{"EGeneral:Permission denied", ErrorTypeAuthentication, ErrCodePermissionDenied},
		{"EAPI:Invalid key", ErrorTypeAuthentication, ErrCodeInvalidKey},
		{"EQuery:Unknown asset pair", ErrorTypeBadRequest, ErrCodeInvalidSymbol},
		{"EGeneral:Invalid arguments:volume", ErrorTypeBadRequest, ErrCodeInvalidArguments},
		{"EAPI:Invalid signature", ErrorTypeAuthentication, ErrCodeInvalidSignature},
		{"EAPI:Invalid nonce", ErrorTypeAuthentication, ErrCodeInvalidNonce},
		{"ESession:Invalid session", ErrorTypeAuthentication, ErrCodeInvalidSession},
		{"EAPI:Bad request", ErrorTypeBadRequest, ErrCodeBadRequest},
		{"EGeneral:Unknown Method", ErrorTypeBadRequest, ErrCodeUnknownMethod},
		{"EAPI:Rate limit exceeded", ErrorTypeRateLimit, ErrCodeRateLimit},
		{"EOrder:Rate limit exceeded", ErrorTypeRateLimit, ErrCodeOrderRateLimit},
		{"EGeneral:Temporary lockout", ErrorTypeRateLimit, ErrCodeTemporaryLockout},
		{"EService:Unavailable", ErrorTypeServerError, ErrCodeServiceUnavailable},
		{"EService:Busy", ErrorTypeServerError, ErrCodeServiceBusy},
		{"EGeneral:Internal error", ErrorTypeServerError, ErrCodeServerError},
		{"ETrade:Locked", ErrorTypeServerError, ErrCodeTradeLocked},
		{"EAPI:Feature disabled", ErrorTypeBadRequest, ErrCodeFeatureDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			err, known := ParseKrakenError(tt.message)
			require.True(t, known)
			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, string(tt.wantCode), err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, Exchange, err.Exchange)
		})
	}
}

func TestParseKrakenError_Unknown(t *testing.T) {
	err, known := ParseKrakenError("EOrder:Unknown order")

	assert.False(t, known)
	assert.Equal(t, ErrorTypeUnknown, err.Type)
	assert.True(t, IsErrorCode(err, ErrCodeUnknown))
}

func TestErrorTypeFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{401, ErrorTypeAuthentication},
		{403, ErrorTypeAuthentication},
		{404, ErrorTypeNotFound},
		{408, ErrorTypeTimeout},
		{504, ErrorTypeTimeout},
		{500, ErrorTypeServerError},
		{502, ErrorTypeServerError},
		{400, ErrorTypeBadRequest},
		{302, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorTypeFromStatus(tt.status), "status %d", tt.status)
	}
}

func TestIsRateLimitError(t *testing.T) {
	orderLimit, _ := ParseKrakenError("EOrder:Rate limit exceeded")
	wrapped := fmt.Errorf("add order: %w", orderLimit)
	networkErr := NewExchangeError(Exchange, ErrorTypeNetwork, 500, "network error")

	assert.True(t, IsRateLimitError(orderLimit))
	assert.True(t, IsRateLimitError(wrapped))
	assert.False(t, IsRateLimitError(networkErr))
	assert.False(t, IsRateLimitError(nil))
}

func TestIsAuthenticationError(t *testing.T) {
	nonceErr, _ := ParseKrakenError("EAPI:Invalid nonce")
	networkErr := NewExchangeError(Exchange, ErrorTypeNetwork, 500, "network error")

	assert.True(t, IsAuthenticationError(nonceErr))
	assert.False(t, IsAuthenticationError(networkErr))
	assert.False(t, IsAuthenticationError(nil))
}

func TestIsNetworkAndTimeoutError(t *testing.T) {
	networkErr := NewExchangeError(Exchange, ErrorTypeNetwork, 0, "dial tcp")
	timeoutErr := NewExchangeError(Exchange, ErrorTypeTimeout, 408, "timeout")

	assert.True(t, IsNetworkError(networkErr))
	assert.False(t, IsNetworkError(timeoutErr))
	assert.True(t, IsTimeoutError(timeoutErr))
	assert.False(t, IsTimeoutError(networkErr))
}

func TestIsTerminalError(t *testing.T) {
	tests := []struct {
		name     string
		errType  ErrorType
		terminal bool
	}{
		{"insufficient_funds", ErrorTypeInsufficientFunds, true},
		{"invalid_order", ErrorTypeInvalidOrder, true},
		{"not_found", ErrorTypeNotFound, true},
		{"bad_request", ErrorTypeBadRequest, true},
		{"network", ErrorTypeNetwork, false},
		{"timeout", ErrorTypeTimeout, false},
		{"rate_limit", ErrorTypeRateLimit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewExchangeError(Exchange, tt.errType, 500, "message")
			assert.Equal(t, tt.terminal, IsTerminalError(err))
		})
	}

	assert.False(t, IsTerminalError(nil))
}
