package paper

import (
	"context"
	"math"
	"sync"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"
)

var _intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

type priceSub struct {
	symbol  string
	handler func(adapter.Price)
}

type klineSub struct {
	symbol   string
	interval string
	period   time.Duration
	candle   adapter.Kline
	open     bool
	handler  func(adapter.Kline)
}

// market drives price and kline subscribers from SetPrice.
type market struct {
	mu     sync.Mutex
	nextID uint64
	prices map[uint64]*priceSub
	klines map[uint64]*klineSub
}

func newMarket() *market {
	return &market{
		prices: make(map[uint64]*priceSub),
		klines: make(map[uint64]*klineSub),
	}
}

func (m *market) add(register func(id uint64)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	register(id)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.prices, id)
			delete(m.klines, id)
			m.mu.Unlock()
		})
	}
}

func (e *Exchange) SubscribePrice(ctx context.Context, symbol string, handler func(adapter.Price)) (func(), error) {
	if handler == nil {
		return nil, exception.ErrNilHandler
	}
	if _, err := e.symbol(symbol); err != nil {
		return nil, err
	}

	unsubscribe := e.market.add(func(id uint64) {
		e.market.prices[id] = &priceSub{symbol: symbol, handler: handler}
	})
	context.AfterFunc(ctx, unsubscribe)
	return unsubscribe, nil
}

func (e *Exchange) SubscribeKlines(ctx context.Context, symbol, interval string, handler func(adapter.Kline)) (func(), error) {
	if handler == nil {
		return nil, exception.ErrNilHandler
	}
	if _, err := e.symbol(symbol); err != nil {
		return nil, err
	}
	period, ok := _intervals[interval]
	if !ok {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "%s: %s", exception.ErrInvalidInterval, interval)
	}

	unsubscribe := e.market.add(func(id uint64) {
		e.market.klines[id] = &klineSub{symbol: symbol, interval: interval, period: period, handler: handler}
	})
	context.AfterFunc(ctx, unsubscribe)
	return unsubscribe, nil
}

// SetPrice publishes a price tick. Kline subscribers get the updated open
// candle, and the closed candle first when the tick starts a new period.
func (e *Exchange) SetPrice(symbol string, price float64) {
	now := e.now()

	type delivery struct {
		price  func(adapter.Price)
		kline  func(adapter.Kline)
		klines []adapter.Kline
	}

	e.market.mu.Lock()
	var deliveries []delivery
	for _, sub := range e.market.prices {
		if sub.symbol == symbol {
			deliveries = append(deliveries, delivery{price: sub.handler})
		}
	}
	for _, sub := range e.market.klines {
		if sub.symbol != symbol {
			continue
		}
		deliveries = append(deliveries, delivery{kline: sub.handler, klines: sub.tick(now, price)})
	}
	e.market.mu.Unlock()

	for _, d := range deliveries {
		if d.price != nil {
			d.price(adapter.Price{Symbol: symbol, Price: price, Time: now})
		}
		for _, k := range d.klines {
			d.kline(k)
		}
	}
}

func (s *klineSub) tick(now time.Time, price float64) []adapter.Kline {
	start := now.Truncate(s.period)

	var out []adapter.Kline
	if s.open && !s.candle.Time.Equal(start) {
		closed := s.candle
		closed.Final = true
		out = append(out, closed)
		s.open = false
	}

	if !s.open {
		s.candle = adapter.Kline{
			Symbol:   s.symbol,
			Interval: s.interval,
			Time:     start,
			Open:     price,
			High:     price,
			Low:      price,
		}
		s.open = true
	}

	s.candle.High = math.Max(s.candle.High, price)
	s.candle.Low = math.Min(s.candle.Low, price)
	s.candle.Close = price
	return append(out, s.candle)
}
