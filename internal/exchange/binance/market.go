package binance

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"cryptofutures/internal/adapter"
	"cryptofutures/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const (
	_eventMarkPrice = "markPriceUpdate"
	_eventKline     = "kline"
)

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func subscribeResponseParser(m ws.Message) (subscribeResponse, bool) {
	var resp subscribeResponse
	err := m.Unmarshal(&resp)
	return resp, err == nil
}

// marketStream is the public market data websocket shared by every price and
// kline subscription.
type marketStream struct {
	wss   *ws.WebSocket
	reqID atomic.Int64
}

func newMarketStream(ctx context.Context, url string) (*marketStream, error) {
	wss := ws.New(ctx, url)
	if err := wss.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start market wss")
	}
	return &marketStream{wss: wss}, nil
}

func (m *marketStream) Close() {
	m.wss.Close()
}

func (m *marketStream) subscribe(ctx context.Context, stream string) error {
	id := m.reqID.Add(1)
	appendIntoRegister := true
	if err := m.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := subscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{stream},
				ID:     id,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, msg ws.Message) (bool, error) {
			resp, ok := subscribeResponseParser(msg)
			if !ok || resp.ID != id {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe %s and wait, err: %+v", stream, resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait").With("stream", stream)
	}

	return nil
}

// observe feeds every message of the shared socket to handle until ctx is
// done, the process shuts down or unsubscribe is called.
func (m *marketStream) observe(ctx context.Context, handle func(ws.Message)) (unsubscribe func()) {
	ch, cancel := m.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handle(msg)
			}
		}
	}()

	return cancel
}

func (f *Futures) marketData(ctx context.Context) (*marketStream, error) {
	f.marketMu.Lock()
	defer f.marketMu.Unlock()

	if f.market != nil {
		return f.market, nil
	}

	base := f.ctx
	if base == nil {
		base = context.WithoutCancel(ctx)
	}
	market, err := newMarketStream(base, f.cfg.StreamURL)
	if err != nil {
		return nil, err
	}
	f.market = market
	return market, nil
}

type markPriceMessage struct {
	Event       string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	MarkPrice   string `json:"p"`
	IndexPrice  string `json:"i"`
	SettlePrice string `json:"P"`
	FundingRate string `json:"r"`
	NextFunding int64  `json:"T"`
}

// SubscribePrice streams the mark price of symbol.
func (f *Futures) SubscribePrice(ctx context.Context, symbol string, handler func(adapter.Price)) (func(), error) {
	if handler == nil {
		return nil, exception.ErrNilHandler
	}

	market, err := f.marketData(ctx)
	if err != nil {
		return nil, err
	}

	unsubscribe := market.observe(ctx, func(msg ws.Message) {
		resp, ok := ws.ReadMessage[markPriceMessage](msg)
		if !ok || resp.Event != _eventMarkPrice || !strings.EqualFold(resp.Symbol, symbol) {
			return
		}

		price, err := decimal.NewFromString(resp.MarkPrice)
		if err != nil {
			logs.Errorf("parse mark price %s, err: %+v", resp.MarkPrice, err)
			return
		}

		handler(adapter.Price{
			Symbol: resp.Symbol,
			Price:  price.InexactFloat64(),
			Time:   millis(resp.EventTime),
		})
	})

	if err := market.subscribe(ctx, fmt.Sprintf("%s@markPrice", strings.ToLower(symbol))); err != nil {
		unsubscribe()
		return nil, err
	}

	return unsubscribe, nil
}

type klineMessage struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime   int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Symbol      string `json:"s"`
		Interval    string `json:"i"`
		FirstID     int64  `json:"f"`
		LastID      int64  `json:"L"`
		Open        string `json:"o"`
		Close       string `json:"c"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Volume      string `json:"v"`
		Trades      int64  `json:"n"`
		Final       bool   `json:"x"`
		QuoteVolume string `json:"q"`
		TakerVolume string `json:"V"`
		TakerQuote  string `json:"Q"`
		Ignore      string `json:"B"`
	} `json:"k"`
}

// SubscribeKlines streams candles of symbol for interval (1m, 5m, 1h, ...).
func (f *Futures) SubscribeKlines(ctx context.Context, symbol, interval string, handler func(adapter.Kline)) (func(), error) {
	if handler == nil {
		return nil, exception.ErrNilHandler
	}
	if len(interval) == 0 {
		return nil, exception.ErrInvalidInterval
	}

	market, err := f.marketData(ctx)
	if err != nil {
		return nil, err
	}

	unsubscribe := market.observe(ctx, func(msg ws.Message) {
		resp, ok := ws.ReadMessage[klineMessage](msg)
		if !ok || resp.Event != _eventKline || !strings.EqualFold(resp.Symbol, symbol) || resp.Kline.Interval != interval {
			return
		}

		kline, err := klineFromMessage(resp)
		if err != nil {
			logs.Errorf("parse kline of %s, err: %+v", resp.Symbol, err)
			return
		}
		handler(kline)
	})

	if err := market.subscribe(ctx, fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)); err != nil {
		unsubscribe()
		return nil, err
	}

	return unsubscribe, nil
}

func klineFromMessage(m klineMessage) (adapter.Kline, error) {
	var values [5]float64
	for i, s := range []string{m.Kline.Open, m.Kline.High, m.Kline.Low, m.Kline.Close, m.Kline.Volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return adapter.Kline{}, errors.Wrap(err, "parse kline value").With("value", s)
		}
		values[i] = d.InexactFloat64()
	}

	return adapter.Kline{
		Symbol:   m.Symbol,
		Interval: m.Kline.Interval,
		Time:     millis(m.Kline.StartTime),
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
		Final:    m.Kline.Final,
	}, nil
}
