package order

import (
	"math"
	"strings"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"

	"github.com/shopspring/decimal"
)

// parseNumber reads an exchange numeric string. Empty means zero.
func parseNumber(field, s string) (float64, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return 0, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "parse %s %q", field, s)
	}
	return d.InexactFloat64(), nil
}

func parseOptionalNumber(field string, s *string) (adapter.Optional[float64], error) {
	if s == nil {
		return adapter.None[float64](), nil
	}

	v, err := parseNumber(field, *s)
	if err != nil {
		return adapter.None[float64](), err
	}
	return adapter.Some(v), nil
}

// orderPatchFromRaw turns an ORDER_TRADE_UPDATE payload into a full patch.
func orderPatchFromRaw(raw *adapter.RawOrderTrade, message []byte, now time.Time) (adapter.OrderPatch, error) {
	if raw == nil {
		return adapter.OrderPatch{}, errors.Wrap(exception.ErrInvalidArgument, "order trade event without payload")
	}

	key := adapter.OrderKey{OrderID: raw.OrderID, ClientOrderID: raw.ClientOrderID}
	if key.IsEmpty() {
		return adapter.OrderPatch{}, errors.Wrap(exception.ErrInvalidArgument, "order trade event without order key")
	}

	status, ok := enum.ParseOrderStatus(raw.Status)
	if !ok {
		return adapter.OrderPatch{}, errors.Wrapf(exception.ErrInvalidArgument, "unsupported order status %q, %s", raw.Status, key)
	}

	side, ok := enum.ParseOrderSide(raw.Side)
	if !ok {
		return adapter.OrderPatch{}, errors.Wrapf(exception.ErrInvalidArgument, "unsupported order side %q, %s", raw.Side, key)
	}

	price, err := parseNumber("price", raw.Price)
	if err != nil {
		return adapter.OrderPatch{}, err
	}

	averagePrice, err := parseNumber("average price", raw.AveragePrice)
	if err != nil {
		return adapter.OrderPatch{}, err
	}

	quantity, err := parseNumber("quantity", raw.Quantity)
	if err != nil {
		return adapter.OrderPatch{}, err
	}

	filled, err := parseNumber("filled quantity", raw.FilledQuantity)
	if err != nil {
		return adapter.OrderPatch{}, err
	}

	fee := 0.0
	if raw.Fee != nil {
		if fee, err = parseNumber("fee", *raw.Fee); err != nil {
			return adapter.OrderPatch{}, err
		}
	}

	feeAsset := ""
	if raw.FeeAsset != nil {
		feeAsset = *raw.FeeAsset
	}

	o := adapter.Order{
		OrderID:        raw.OrderID,
		ClientOrderID:  raw.ClientOrderID,
		Status:         status,
		Symbol:         raw.Symbol,
		Price:          adapter.None[float64](),
		AveragePrice:   averagePrice,
		Fee:            fee,
		FeeAsset:       feeAsset,
		Volume:         side.Sign() * math.Abs(quantity),
		RealizedVolume: side.Sign() * math.Abs(filled),
		UpdateTime:     raw.TradeTime,
		Raw:            message,
	}

	if price != 0 && !strings.EqualFold(raw.Type, enum.OrderTypeMarket.String()) {
		o.Price = adapter.Some(price)
	}
	if averagePrice == 0 && filled == 0 {
		o.AveragePrice = math.NaN()
	}
	if o.UpdateTime.IsZero() {
		o.UpdateTime = now
	}

	return adapter.FullPatch(o), nil
}

func positionFromRaw(raw adapter.RawPosition, at time.Time) (adapter.Position, error) {
	size, err := parseNumber("position amount", raw.Amount)
	if err != nil {
		return adapter.Position{}, err
	}

	entry, err := parseNumber("entry price", raw.EntryPrice)
	if err != nil {
		return adapter.Position{}, err
	}

	liquidation, err := parseOptionalNumber("liquidation price", raw.LiquidationPrice)
	if err != nil {
		return adapter.Position{}, err
	}

	return adapter.Position{
		Symbol:           raw.Symbol,
		Size:             size,
		Value:            size * entry,
		EntryPrice:       entry,
		LiquidationPrice: liquidation,
		UpdateTime:       at,
	}, nil
}

func balanceFromRaw(raw adapter.RawBalance, at time.Time) (adapter.Balance, error) {
	total, err := parseNumber("wallet balance", raw.WalletBalance)
	if err != nil {
		return adapter.Balance{}, err
	}

	free, err := parseNumber("cross wallet balance", raw.CrossWalletBalance)
	if err != nil {
		return adapter.Balance{}, err
	}

	return adapter.Balance{
		Asset:      raw.Asset,
		Free:       free,
		Total:      total,
		UpdateTime: at,
	}, nil
}
