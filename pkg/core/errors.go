package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Exchange is the name stamped on every ExchangeError.
const Exchange = "kraken"

// ErrorType represents the category of an exchange error.
type ErrorType int

// Error type constants categorize errors for handling by callers.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a network connectivity issue.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeRateLimit indicates a rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeAuthentication indicates invalid credentials, signature or nonce.
	ErrorTypeAuthentication
	// ErrorTypeBadRequest indicates invalid request parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates the requested resource does not exist.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a server-side error.
	ErrorTypeServerError
	// ErrorTypeInsufficientFunds indicates account lacks required balance.
	ErrorTypeInsufficientFunds
	// ErrorTypeInvalidOrder indicates the order violates exchange rules.
	ErrorTypeInvalidOrder
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"TIMEOUT",
		"RATE_LIMIT",
		"AUTHENTICATION",
		"BAD_REQUEST",
		"NOT_FOUND",
		"SERVER_ERROR",
		"INSUFFICIENT_FUNDS",
		"INVALID_ORDER",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrNotConnected is returned when WebSocket is not connected.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrCircuitBreakerOpen is returned when circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// ExchangeError represents a structured error returned from Kraken.
type ExchangeError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code from the response, zero for
	// errors reported inside a 200 envelope or over WebSocket.
	StatusCode int `json:"status_code"`
	// Code is the machine-readable error code.
	Code string `json:"code"`
	// Message is the raw error text, e.g. "EAPI:Invalid nonce".
	Message string `json:"message"`
	// RawError contains the original error response for debugging.
	RawError any `json:"raw_error,omitempty"`
	// Exchange identifies which exchange returned this error.
	Exchange string `json:"exchange"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for ExchangeError.
func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Exchange, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Exchange, e.Type, e.StatusCode, e.Message)
}

// WithCode sets the error code and returns the error for chaining.
func (e *ExchangeError) WithCode(code ErrorCode) *ExchangeError {
	e.Code = string(code)
	return e
}

// NewExchangeError creates a new ExchangeError with the specified details.
// The timestamp is automatically set to the current time.
func NewExchangeError(exchange string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewExchangeErrorWithCode creates a new ExchangeError including an error code.
func NewExchangeErrorWithCode(exchange string, errorType ErrorType, statusCode int, code, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

type krakenError struct {
	prefix    string
	errorType ErrorType
	code      ErrorCode
}

// Kraken reports errors as "<severity><category>:<message>" strings. Messages
// may carry a suffix, so matching is by prefix.
var krakenErrors = []krakenError{
	{"EGeneral:Permission denied", ErrorTypeAuthentication, ErrCodePermissionDenied},
	{"EAPI:Invalid key", ErrorTypeAuthentication, ErrCodeInvalidKey},
	{"EQuery:Unknown asset pair", ErrorTypeBadRequest, ErrCodeInvalidSymbol},
	{"EGeneral:Invalid arguments", ErrorTypeBadRequest, ErrCodeInvalidArguments},
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

// ParseKrakenError converts a Kraken error string into an ExchangeError.
// The boolean reports whether the string is one of the known Kraken errors;
// unknown strings yield ErrCodeUnknown.
func ParseKrakenError(message string) (*ExchangeError, bool) {
	for _, ke := range krakenErrors {
		if strings.HasPrefix(message, ke.prefix) {
			return NewExchangeErrorWithCode(Exchange, ke.errorType, 0, string(ke.code), message), true
		}
	}
	return NewExchangeErrorWithCode(Exchange, ErrorTypeUnknown, 0, string(ErrCodeUnknown), message), false
}

// ErrorTypeFromStatus maps an HTTP status code to an error type.
func ErrorTypeFromStatus(statusCode int) ErrorType {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuthentication
	case statusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case statusCode >= 500:
		return ErrorTypeServerError
	case statusCode >= 400:
		return ErrorTypeBadRequest
	default:
		return ErrorTypeUnknown
	}
}

func isType(err error, t ErrorType) bool {
	var e *ExchangeError
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsNetworkError returns true if the error is a network connectivity issue.
func IsNetworkError(err error) bool {
	return isType(err, ErrorTypeNetwork)
}

// IsTimeoutError returns true if the error is a timeout.
func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

// IsRateLimitError returns true if the error is a rate limit violation,
// including Kraken's order rate limit and temporary lockout.
func IsRateLimitError(err error) bool {
	return isType(err, ErrorTypeRateLimit)
}

// IsAuthenticationError returns true if the error is an authentication failure.
// An invalid nonce is reported as an authentication failure too.
func IsAuthenticationError(err error) bool {
	return isType(err, ErrorTypeAuthentication)
}

// IsTerminalError returns true if the error indicates a terminal condition.
// Terminal errors will not succeed if sent again unchanged.
func IsTerminalError(err error) bool {
	var e *ExchangeError
	if errors.As(err, &e) {
		return e.Type == ErrorTypeInsufficientFunds ||
			e.Type == ErrorTypeInvalidOrder ||
			e.Type == ErrorTypeNotFound ||
			e.Type == ErrorTypeBadRequest
	}
	return false
}
