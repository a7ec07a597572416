package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

const (
	// _timeInForcePostOnly makes every limit order maker only.
	_timeInForcePostOnly = "GTX"
	_newOrderRespTypeAck = "ACK"
)

// orderParams is one order of /fapi/v1/order and /fapi/v1/batchOrders.
type orderParams struct {
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Type             string `json:"type"`
	Quantity         string `json:"quantity"`
	Price            string `json:"price,omitempty"`
	TimeInForce      string `json:"timeInForce,omitempty"`
	NewClientOrderID string `json:"newClientOrderId,omitempty"`
	NewOrderRespType string `json:"newOrderRespType,omitempty"`
}

func newOrderParams(spec adapter.OrderSpec) orderParams {
	p := orderParams{
		Symbol:           spec.Symbol,
		Side:             spec.Side.String(),
		Type:             spec.Type().String(),
		Quantity:         formatNumber(spec.Volume),
		NewClientOrderID: spec.ClientOrderID,
		NewOrderRespType: _newOrderRespTypeAck,
	}
	if spec.Price.Valid {
		p.Price = formatNumber(spec.Price.Value)
		p.TimeInForce = _timeInForcePostOnly
	}
	return p
}

func (p orderParams) values() url.Values {
	v := url.Values{}
	v.Set("symbol", p.Symbol)
	v.Set("side", p.Side)
	v.Set("type", p.Type)
	v.Set("quantity", p.Quantity)
	if len(p.Price) != 0 {
		v.Set("price", p.Price)
		v.Set("timeInForce", p.TimeInForce)
	}
	if len(p.NewClientOrderID) != 0 {
		v.Set("newClientOrderId", p.NewClientOrderID)
	}
	v.Set("newOrderRespType", p.NewOrderRespType)
	return v
}

func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// orderResponse is an order ack, or an error entry inside a batch response.
type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Code          int    `json:"code"`
	Msg           string `json:"msg"`
}

func (r orderResponse) handle() adapter.OrderHandle {
	return adapter.OrderHandle{
		OrderID:       strconv.FormatInt(r.OrderID, 10),
		ClientOrderID: r.ClientOrderID,
	}
}

func (f *Futures) SubmitOrder(ctx context.Context, spec adapter.OrderSpec) (adapter.OrderHandle, error) {
	var resp orderResponse
	if err := f.rest.signed(ctx, http.MethodPost, "/fapi/v1/order", newOrderParams(spec).values(), &resp); err != nil {
		return adapter.OrderHandle{ClientOrderID: spec.ClientOrderID}, err
	}
	if resp.OrderID == 0 {
		return adapter.OrderHandle{ClientOrderID: spec.ClientOrderID}, errors.Wrap(exception.ErrInResponseError, exception.ErrOrderEmptyResponseID.Error())
	}
	return resp.handle(), nil
}

// SubmitBatch places up to BatchSubmitLimit orders in one call. The results
// follow the order of specs.
func (f *Futures) SubmitBatch(ctx context.Context, specs []adapter.OrderSpec) ([]adapter.BatchResult, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	if len(specs) > BatchSubmitLimit {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "%s: %d > %d", exception.ErrOrderBatchTooLarge, len(specs), BatchSubmitLimit)
	}

	batch := make([]orderParams, 0, len(specs))
	for _, spec := range specs {
		batch = append(batch, newOrderParams(spec))
	}
	payload, err := sonic.MarshalString(batch)
	if err != nil {
		return nil, errors.Wrap(err, "marshal batch orders")
	}

	var resp []orderResponse
	if err := f.rest.signed(ctx, http.MethodPost, "/fapi/v1/batchOrders", url.Values{"batchOrders": {payload}}, &resp); err != nil {
		return nil, err
	}
	if len(resp) != len(specs) {
		return nil, errors.Wrapf(exception.ErrInResponseError, "batch of %d answered with %d entries", len(specs), len(resp))
	}

	results := make([]adapter.BatchResult, len(specs))
	for i, r := range resp {
		results[i].ClientOrderID = specs[i].ClientOrderID
		if r.Code != 0 {
			results[i].Err = apiError{Code: r.Code, Msg: r.Msg}.err()
			continue
		}
		results[i].OrderID = strconv.FormatInt(r.OrderID, 10)
	}
	return results, nil
}

// CancelOrder cancels by orderId when known, otherwise by origClientOrderId.
func (f *Futures) CancelOrder(ctx context.Context, key adapter.OrderKey, symbol string) error {
	params := url.Values{"symbol": {symbol}}
	switch {
	case len(key.OrderID) != 0:
		params.Set("orderId", key.OrderID)
	case len(key.ClientOrderID) != 0:
		params.Set("origClientOrderId", key.ClientOrderID)
	default:
		return errors.Wrap(exception.ErrInvalidArgument, "cancel without order id or client order id")
	}

	return f.rest.signed(ctx, http.MethodDelete, "/fapi/v1/order", params, nil)
}

// CancelBatch cancels up to BatchCancelLimit orders of one symbol. The
// response entries follow orderIdList, so the results follow orderIDs.
func (f *Futures) CancelBatch(ctx context.Context, symbol string, orderIDs []string) ([]adapter.BatchResult, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	if len(orderIDs) > BatchCancelLimit {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "%s: %d > %d", exception.ErrOrderBatchTooLarge, len(orderIDs), BatchCancelLimit)
	}

	ids := make([]int64, 0, len(orderIDs))
	for _, id := range orderIDs {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "order id %q is not numeric", id)
		}
		ids = append(ids, n)
	}
	list, err := sonic.MarshalString(ids)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order id list")
	}

	var resp []orderResponse
	if err := f.rest.signed(ctx, http.MethodDelete, "/fapi/v1/batchOrders", url.Values{"symbol": {symbol}, "orderIdList": {list}}, &resp); err != nil {
		return nil, err
	}
	if len(resp) != len(orderIDs) {
		return nil, errors.Wrapf(exception.ErrInResponseError, "cancel batch of %d answered with %d entries", len(orderIDs), len(resp))
	}

	results := make([]adapter.BatchResult, len(orderIDs))
	for i, r := range resp {
		results[i].OrderID = orderIDs[i]
		if r.Code != 0 {
			results[i].Err = errors.Wrapf(apiError{Code: r.Code, Msg: r.Msg}.err(), "cancel order_id=%s", orderIDs[i])
		}
	}
	return results, nil
}
