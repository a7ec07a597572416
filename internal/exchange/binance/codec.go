package binance

import (
	"strconv"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"

	"github.com/bytedance/sonic"
)

const (
	_eventAccountUpdate    = "ACCOUNT_UPDATE"
	_eventOrderTradeUpdate = "ORDER_TRADE_UPDATE"
	_eventListenKeyExpired = "listenKeyExpired"
)

// Binance reuses single letter keys that differ only by case ("x"/"X",
// "t"/"T", ...). Both members of every such pair are declared so a case
// insensitive match never lands on the wrong field.

type userEventHeader struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
}

type accountUpdateMessage struct {
	Event           string `json:"e"`
	EventTime       int64  `json:"E"`
	TransactionTime int64  `json:"T"`
	Account         struct {
		Reason   string `json:"m"`
		Balances []struct {
			Asset              string `json:"a"`
			WalletBalance      string `json:"wb"`
			CrossWalletBalance string `json:"cw"`
			BalanceChange      string `json:"bc"`
		} `json:"B"`
		Positions []struct {
			Symbol           string  `json:"s"`
			Amount           string  `json:"pa"`
			EntryPrice       string  `json:"ep"`
			UnrealizedPnL    string  `json:"up"`
			PositionSide     string  `json:"ps"`
			LiquidationPrice *string `json:"lp"`
		} `json:"P"`
	} `json:"a"`
}

type orderTradeMessage struct {
	Event           string `json:"e"`
	EventTime       int64  `json:"E"`
	TransactionTime int64  `json:"T"`
	Order           struct {
		Symbol         string  `json:"s"`
		ClientOrderID  string  `json:"c"`
		Side           string  `json:"S"`
		Type           string  `json:"o"`
		TimeInForce    string  `json:"f"`
		Quantity       string  `json:"q"`
		Price          string  `json:"p"`
		AveragePrice   string  `json:"ap"`
		StopPrice      string  `json:"sp"`
		ExecutionType  string  `json:"x"`
		Status         string  `json:"X"`
		OrderID        int64   `json:"i"`
		LastFilled     string  `json:"l"`
		FilledQuantity string  `json:"z"`
		LastPrice      string  `json:"L"`
		Fee            *string `json:"n"`
		FeeAsset       *string `json:"N"`
		TradeTime      int64   `json:"T"`
		TradeID        int64   `json:"t"`
	} `json:"o"`
}

// decodeUserEvent maps one user data stream frame. It returns ok false
// for events the service does not consume (MARGIN_CALL, ...).
func decodeUserEvent(message []byte) (ev adapter.RawEvent, ok bool, err error) {
	var header userEventHeader
	if err := sonic.Unmarshal(message, &header); err != nil {
		return adapter.RawEvent{}, false, errors.Wrapf(exception.ErrUnsupportedFormat, "decode header, err: %v", err)
	}

	switch header.Event {
	case _eventAccountUpdate:
		var msg accountUpdateMessage
		if err := sonic.Unmarshal(message, &msg); err != nil {
			return adapter.RawEvent{}, false, errors.Wrapf(exception.ErrUnsupportedFormat, "decode %s, err: %v", header.Event, err)
		}

		account := &adapter.RawAccount{
			Balances:  make([]adapter.RawBalance, 0, len(msg.Account.Balances)),
			Positions: make([]adapter.RawPosition, 0, len(msg.Account.Positions)),
		}
		for _, b := range msg.Account.Balances {
			account.Balances = append(account.Balances, adapter.RawBalance{
				Asset:              b.Asset,
				WalletBalance:      b.WalletBalance,
				CrossWalletBalance: b.CrossWalletBalance,
			})
		}
		for _, p := range msg.Account.Positions {
			account.Positions = append(account.Positions, adapter.RawPosition{
				Symbol:           p.Symbol,
				Amount:           p.Amount,
				EntryPrice:       p.EntryPrice,
				LiquidationPrice: p.LiquidationPrice,
			})
		}

		return adapter.RawEvent{
			Kind:      enum.EventKindAccount,
			EventTime: millis(msg.EventTime),
			Account:   account,
			Message:   message,
		}, true, nil

	case _eventOrderTradeUpdate:
		var msg orderTradeMessage
		if err := sonic.Unmarshal(message, &msg); err != nil {
			return adapter.RawEvent{}, false, errors.Wrapf(exception.ErrUnsupportedFormat, "decode %s, err: %v", header.Event, err)
		}

		o := msg.Order
		trade := &adapter.RawOrderTrade{
			ClientOrderID:  o.ClientOrderID,
			Symbol:         o.Symbol,
			Side:           o.Side,
			Type:           o.Type,
			Status:         o.Status,
			Price:          o.Price,
			AveragePrice:   o.AveragePrice,
			Quantity:       o.Quantity,
			FilledQuantity: o.FilledQuantity,
			Fee:            o.Fee,
			FeeAsset:       o.FeeAsset,
			TradeTime:      millis(o.TradeTime),
		}
		if o.OrderID != 0 {
			trade.OrderID = strconv.FormatInt(o.OrderID, 10)
		}

		return adapter.RawEvent{
			Kind:       enum.EventKindOrderTrade,
			EventTime:  millis(msg.EventTime),
			OrderTrade: trade,
			Message:    message,
		}, true, nil

	case _eventListenKeyExpired:
		return adapter.RawEvent{
			Kind:      enum.EventKindLifecycle,
			EventTime: millis(header.EventTime),
			Lifecycle: enum.LifecycleListenKeyExpired,
			Message:   message,
		}, true, nil

	default:
		return adapter.RawEvent{}, false, nil
	}
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
