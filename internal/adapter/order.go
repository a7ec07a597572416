package adapter

import (
	"math"
	"time"

	"cryptofutures/internal/adapter/enum"
)

// Order is the canonical state of one order.
//
// Volume and RealizedVolume are signed: positive for buy, negative for sell.
// An absent Price means a market order. AveragePrice is NaN until the
// exchange reports one.
type Order struct {
	OrderID        string
	ClientOrderID  string
	Status         enum.OrderStatus
	Symbol         string
	Price          Optional[float64]
	AveragePrice   float64
	Fee            float64
	FeeAsset       string
	Volume         float64
	RealizedVolume float64
	UpdateTime     time.Time
	// Raw is the originating exchange payload, kept for diagnostics only.
	Raw []byte
}

func (o Order) Side() enum.OrderSide {
	if o.Volume < 0 {
		return enum.OrderSideSell
	}
	return enum.OrderSideBuy
}

func (o Order) IsMarket() bool {
	return !o.Price.Valid
}

// Key returns the lookup key of the order.
func (o Order) Key() OrderKey {
	return OrderKey{OrderID: o.OrderID, ClientOrderID: o.ClientOrderID}
}

// OrderKey addresses an order by exchange id, client id, or both.
// An empty string means the id is not known.
type OrderKey struct {
	OrderID       string
	ClientOrderID string
}

func (k OrderKey) IsEmpty() bool {
	return len(k.OrderID) == 0 && len(k.ClientOrderID) == 0
}

func (k OrderKey) String() string {
	switch {
	case len(k.OrderID) != 0 && len(k.ClientOrderID) != 0:
		return "order_id=" + k.OrderID + " client_order_id=" + k.ClientOrderID
	case len(k.OrderID) != 0:
		return "order_id=" + k.OrderID
	case len(k.ClientOrderID) != 0:
		return "client_order_id=" + k.ClientOrderID
	default:
		return "<empty key>"
	}
}

// OrderField selects the fields an OrderPatch overwrites.
type OrderField uint16

const (
	FieldStatus OrderField = 1 << iota
	FieldSymbol
	FieldPrice
	FieldAveragePrice
	FieldFee
	FieldFeeAsset
	FieldVolume
	FieldRealizedVolume
	FieldUpdateTime
	FieldRaw

	FieldAll = FieldStatus | FieldSymbol | FieldPrice | FieldAveragePrice | FieldFee |
		FieldFeeAsset | FieldVolume | FieldRealizedVolume | FieldUpdateTime | FieldRaw
)

func (f OrderField) Has(field OrderField) bool {
	return f&field == field
}

// OrderPatch is a partial update keyed by OrderID, ClientOrderID or both.
// Only the fields present in Fields are applied; the keys are always
// considered when non-empty.
type OrderPatch struct {
	Order
	Fields OrderField
}

// FullPatch builds a patch that overwrites every field of o.
func FullPatch(o Order) OrderPatch {
	return OrderPatch{Order: o, Fields: FieldAll}
}

// ApplyTo returns base with the selected fields of the patch applied.
// Keys are back-filled when base does not have them yet.
func (p OrderPatch) ApplyTo(base Order) Order {
	if len(base.OrderID) == 0 {
		base.OrderID = p.OrderID
	}
	if len(base.ClientOrderID) == 0 {
		base.ClientOrderID = p.ClientOrderID
	}
	if p.Fields.Has(FieldStatus) {
		base.Status = p.Status
	}
	if p.Fields.Has(FieldSymbol) {
		base.Symbol = p.Symbol
	}
	if p.Fields.Has(FieldPrice) {
		base.Price = p.Price
	}
	if p.Fields.Has(FieldAveragePrice) {
		base.AveragePrice = p.AveragePrice
	}
	if p.Fields.Has(FieldFee) {
		base.Fee = p.Fee
	}
	if p.Fields.Has(FieldFeeAsset) {
		base.FeeAsset = p.FeeAsset
	}
	if p.Fields.Has(FieldVolume) {
		base.Volume = p.Volume
	}
	if p.Fields.Has(FieldRealizedVolume) && math.Abs(p.RealizedVolume) >= math.Abs(base.RealizedVolume) {
		base.RealizedVolume = p.RealizedVolume
	}
	if p.Fields.Has(FieldUpdateTime) {
		base.UpdateTime = p.UpdateTime
	}
	if p.Fields.Has(FieldRaw) {
		base.Raw = p.Raw
	}
	return base
}

// OrderSpec is what an exchange adapter needs to place one order.
// Price and Volume must already be quantized to the symbol precision.
type OrderSpec struct {
	Symbol        string
	Side          enum.OrderSide
	Price         Optional[float64]
	Volume        float64
	ClientOrderID string
}

func (s OrderSpec) Type() enum.OrderType {
	if s.Price.Valid {
		return enum.OrderTypeLimit
	}
	return enum.OrderTypeMarket
}

// OrderRequest is one entry of a batch submit.
type OrderRequest struct {
	Side          enum.OrderSide
	Price         Optional[float64]
	Volume        float64
	ClientOrderID string
}

// OrderHandle identifies a submitted order.
type OrderHandle struct {
	OrderID       string
	ClientOrderID string
}

// BatchResult is the outcome of one entry of a batch submit or cancel.
type BatchResult struct {
	OrderHandle
	Err error
}

// BatchLimits are the native batch sizes of an exchange.
type BatchLimits struct {
	Submit int
	Cancel int
}
