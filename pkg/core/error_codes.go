package core

import "errors"

// ErrorCode represents a machine-readable error identifier.
type ErrorCode string

// Transport level codes.
const (
	// ErrCodeUnknown marks an error string that is not a known Kraken error.
	ErrCodeUnknown ErrorCode = "UNKNOWN"
	// ErrCodeNetwork indicates a network connectivity failure.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"
	// ErrCodeTimeout indicates the request exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeHTTPStatus marks a non-2xx HTTP response.
	ErrCodeHTTPStatus ErrorCode = "HTTP_STATUS"
	// ErrCodeDecode indicates a response body that could not be decoded.
	ErrCodeDecode ErrorCode = "DECODE_ERROR"

	// ErrCodeInvalidConfig marks configuration validation failures.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Codes for the errors Kraken reports in a response's error array.
const (
	ErrCodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	ErrCodeInvalidKey         ErrorCode = "INVALID_KEY"
	ErrCodeInvalidSymbol      ErrorCode = "INVALID_SYMBOL"
	ErrCodeInvalidArguments   ErrorCode = "INVALID_ARGUMENTS"
	ErrCodeInvalidSignature   ErrorCode = "INVALID_SIGNATURE"
	ErrCodeInvalidNonce       ErrorCode = "INVALID_NONCE"
	ErrCodeInvalidSession     ErrorCode = "INVALID_SESSION"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeUnknownMethod      ErrorCode = "UNKNOWN_METHOD"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT"
	ErrCodeOrderRateLimit     ErrorCode = "ORDER_RATE_LIMIT"
	ErrCodeTemporaryLockout   ErrorCode = "TEMPORARY_LOCKOUT"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeServiceBusy        ErrorCode = "SERVICE_BUSY"
	ErrCodeServerError        ErrorCode = "SERVER_ERROR"
	ErrCodeTradeLocked        ErrorCode = "TRADE_LOCKED"
	ErrCodeFeatureDisabled    ErrorCode = "FEATURE_DISABLED"
)

// IsErrorCode checks if the error matches the specified error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return ErrorCode(exErr.Code) == code
	}
	return false
}
