package adapter

import (
	"time"

	"cryptofutures/internal/adapter/enum"
)

// RawEvent is an exchange user stream message with the exchange field names
// already resolved. Numeric values stay as the exchange sent them; the
// reconciler parses and defaults them.
type RawEvent struct {
	Kind       enum.EventKind
	EventTime  time.Time
	Account    *RawAccount
	OrderTrade *RawOrderTrade
	Lifecycle  enum.Lifecycle
	Message    []byte
}

type RawAccount struct {
	Balances  []RawBalance
	Positions []RawPosition
}

type RawBalance struct {
	Asset              string
	WalletBalance      string
	CrossWalletBalance string
}

type RawPosition struct {
	Symbol     string
	Amount     string
	EntryPrice string
	// LiquidationPrice is nil when the exchange does not report it.
	LiquidationPrice *string
}

type RawOrderTrade struct {
	OrderID        string
	ClientOrderID  string
	Symbol         string
	Side           string
	Type           string
	Status         string
	Price          string
	AveragePrice   string
	Quantity       string
	FilledQuantity string
	// Fee and FeeAsset are nil until the order trades.
	Fee       *string
	FeeAsset  *string
	TradeTime time.Time
}
