package enum

import "strings"

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

// Sign is +1 for buy and -1 for sell.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return ""
	}
}

// ParseOrderSide accepts "buy"/"sell" in any case.
func ParseOrderSide(s string) (OrderSide, bool) {
	switch strings.ToUpper(s) {
	case "BUY":
		return OrderSideBuy, true
	case "SELL":
		return OrderSideSell, true
	default:
		return _order_side_beg, false
	}
}

// OrderType limit, market
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeMarket:
		return "MARKET"
	default:
		return ""
	}
}

// OrderStatus pending, pending cancel, new, partially filled, filled, canceled, rejected, unknown
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusPending
	OrderStatusPendingCancel
	OrderStatusNew
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusRejected
	// OrderStatusUnknown marks a submit whose call ended without telling
	// whether the exchange booked the order.
	OrderStatusUnknown
	_order_status_end
)

var orderStatusNames = [...]string{
	OrderStatusPending:         "PENDING",
	OrderStatusPendingCancel:   "PENDING_CANCEL",
	OrderStatusNew:             "NEW",
	OrderStatusPartiallyFilled: "PARTIALLY_FILLED",
	OrderStatusFilled:          "FILLED",
	OrderStatusCanceled:        "CANCELED",
	OrderStatusRejected:        "REJECTED",
	OrderStatusUnknown:         "UNKNOWN",
}

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

// IsTerminal reports FILLED, CANCELED and REJECTED.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	if !s.IsAvailable() {
		return "INVALID"
	}
	return orderStatusNames[s]
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseOrderStatus maps the canonical names plus the exchange vocabulary
// (EXPIRED, NEW_INSURANCE, ...) onto OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch strings.ToUpper(s) {
	case "PENDING":
		return OrderStatusPending, true
	case "PENDING_CANCEL":
		return OrderStatusPendingCancel, true
	case "NEW", "NEW_INSURANCE", "NEW_ADL":
		return OrderStatusNew, true
	case "PARTIALLY_FILLED":
		return OrderStatusPartiallyFilled, true
	case "FILLED":
		return OrderStatusFilled, true
	case "CANCELED", "CANCELLED", "EXPIRED", "EXPIRED_IN_MATCH":
		return OrderStatusCanceled, true
	case "REJECTED":
		return OrderStatusRejected, true
	case "UNKNOWN":
		return OrderStatusUnknown, true
	default:
		return _order_status_beg, false
	}
}
