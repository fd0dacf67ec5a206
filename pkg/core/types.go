package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// VerificationTier is the account verification level. It sizes the trading
// and private-endpoint rate-limit budgets.
type VerificationTier int

const (
	// TierIntermediate is the Intermediate verification level.
	TierIntermediate VerificationTier = iota
	// TierPro is the Pro verification level.
	TierPro
)

// String returns "intermediate" or "pro".
func (t VerificationTier) String() string {
	switch t {
	case TierIntermediate:
		return "intermediate"
	case TierPro:
		return "pro"
	default:
		return "unknown"
	}
}

// ParseVerificationTier parses a tier name, ignoring case.
func ParseVerificationTier(s string) (VerificationTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "intermediate":
		return TierIntermediate, nil
	case "pro":
		return TierPro, nil
	}
	return TierIntermediate, fmt.Errorf("unknown verification tier %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t VerificationTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *VerificationTier) UnmarshalText(data []byte) error {
	tier, err := ParseVerificationTier(string(data))
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// OrderSide represents the direction of an order (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
const (
	// SideBuy indicates an order to purchase an asset.
	SideBuy OrderSide = iota
	// SideSell indicates an order to sell an asset.
	SideSell
)

// String returns the wire representation of the order side ("buy" or "sell").
func (s OrderSide) String() string {
	return [...]string{"buy", "sell"}[s]
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "buy":
		*s = SideBuy
	case "sell":
		*s = SideSell
	default:
		return fmt.Errorf("unknown order side %s", data)
	}
	return nil
}

// OrderType represents how an order is executed.
type OrderType int

// Order type constants, in Kraken's vocabulary.
const (
	// TypeMarket executes immediately at the best available price.
	TypeMarket OrderType = iota
	// TypeLimit executes at a specified price or better.
	TypeLimit
	// TypeStopLoss triggers a market order when price reaches the stop price.
	TypeStopLoss
	// TypeTakeProfit triggers a market order when price reaches the target.
	TypeTakeProfit
	// TypeStopLossLimit triggers a limit order when price reaches the stop price.
	TypeStopLossLimit
	// TypeTakeProfitLimit triggers a limit order when price reaches the target.
	TypeTakeProfitLimit
	// TypeTrailingStop follows the market by a fixed offset.
	TypeTrailingStop
	// TypeTrailingStopLimit places a limit order once the trailing stop triggers.
	TypeTrailingStopLimit
	// TypeSettlePosition closes a margin position.
	TypeSettlePosition
)

var orderTypeNames = [...]string{
	"market",
	"limit",
	"stop-loss",
	"take-profit",
	"stop-loss-limit",
	"take-profit-limit",
	"trailing-stop",
	"trailing-stop-limit",
	"settle-position",
}

// String returns the wire representation of the order type.
func (t OrderType) String() string {
	return orderTypeNames[t]
}

// MarshalJSON implements json.Marshaler for OrderType.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderType.
func (t *OrderType) UnmarshalJSON(data []byte) error {
	name := strings.Trim(string(data), `"`)
	for i, n := range orderTypeNames {
		if n == name {
			*t = OrderType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown order type %s", data)
}

// OrderRef identifies an existing order either by the exchange-assigned
// transaction id or by the integer user reference supplied at placement.
// It encodes as a JSON string or number respectively.
type OrderRef struct {
	txID    string
	userRef int64
	byRef   bool
}

// TxID returns a reference to the order with the given exchange id.
func TxID(id string) OrderRef {
	return OrderRef{txID: id}
}

// UserRef returns a reference to the orders placed with the given user reference.
func UserRef(ref int64) OrderRef {
	return OrderRef{userRef: ref, byRef: true}
}

// IsUserRef reports whether the reference is a user reference.
func (r OrderRef) IsUserRef() bool {
	return r.byRef
}

// ID returns the exchange order id. It is empty for user references.
func (r OrderRef) ID() string {
	return r.txID
}

// Ref returns the user reference. It is zero for exchange ids.
func (r OrderRef) Ref() int64 {
	return r.userRef
}

// String returns the form-encoded value of the reference.
func (r OrderRef) String() string {
	if r.byRef {
		return strconv.FormatInt(r.userRef, 10)
	}
	return r.txID
}

// MarshalJSON implements json.Marshaler for OrderRef.
func (r OrderRef) MarshalJSON() ([]byte, error) {
	if r.byRef {
		return []byte(strconv.FormatInt(r.userRef, 10)), nil
	}
	return sonic.Marshal(r.txID)
}

// UnmarshalJSON implements json.Unmarshaler for OrderRef.
func (r *OrderRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := sonic.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = TxID(id)
		return nil
	}
	ref, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse order reference: %w", err)
	}
	*r = UserRef(ref)
	return nil
}
