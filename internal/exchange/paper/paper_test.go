package paper

import (
	"context"
	"sync"
	"testing"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/order"
	"cryptofutures/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExchange() *Exchange {
	return New(Config{
		Symbols: map[string]SymbolSpec{
			"BTCUSDT": {PricePrecision: 1, VolumePrecision: 3},
			"ETHUSDT": {PricePrecision: 2, VolumePrecision: 2},
		},
		FeeRate: 0.001,
	})
}

func next(t *testing.T, ch <-chan adapter.RawEvent) adapter.RawEvent {
	t.Helper()

	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "no event within 1s")
		return adapter.RawEvent{}
	}
}

func TestSymbols(t *testing.T) {
	e := newTestExchange()

	symbols, err := e.TradableSymbols(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)

	p, err := e.PricePrecision(t.Context(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(2), p)

	_, err = e.VolumePrecision(t.Context(), "DOGEUSDT")
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
	assert.Equal(t, enum.PlatformPaper, e.Platform())
}

func TestOrderLifecycle(t *testing.T) {
	e := newTestExchange()
	events, err := e.UserStream(t.Context())
	require.NoError(t, err)
	assert.Equal(t, enum.LifecycleConnected, next(t, events).Lifecycle)

	_, err = e.UserStream(t.Context())
	require.ErrorIs(t, err, exception.ErrStreamStarted)

	handle, err := e.SubmitOrder(t.Context(), adapter.OrderSpec{
		Symbol: "BTCUSDT", Side: enum.OrderSideBuy, Price: adapter.Some(100.0), Volume: 2, ClientOrderID: "a",
	})
	require.NoError(t, err)
	assert.Equal(t, adapter.OrderHandle{OrderID: "1", ClientOrderID: "a"}, handle)

	ev := next(t, events)
	require.Equal(t, enum.EventKindOrderTrade, ev.Kind)
	assert.Equal(t, "NEW", ev.OrderTrade.Status)
	assert.Equal(t, "LIMIT", ev.OrderTrade.Type)
	assert.Equal(t, "100", ev.OrderTrade.Price)
	assert.Nil(t, ev.OrderTrade.Fee)

	require.NoError(t, e.Fill("1", 0.5, 100))
	ev = next(t, events)
	assert.Equal(t, "PARTIALLY_FILLED", ev.OrderTrade.Status)
	assert.Equal(t, "0.5", ev.OrderTrade.FilledQuantity)
	require.NotNil(t, ev.OrderTrade.Fee)
	assert.Equal(t, "0.05", *ev.OrderTrade.Fee)
	assert.Equal(t, "USDT", *ev.OrderTrade.FeeAsset)

	require.ErrorIs(t, e.Fill("1", 5, 100), exception.ErrInvalidArgument)

	require.NoError(t, e.CancelOrder(t.Context(), adapter.OrderKey{ClientOrderID: "a"}, "BTCUSDT"))
	ev = next(t, events)
	assert.Equal(t, "CANCELED", ev.OrderTrade.Status)

	require.ErrorIs(t, e.CancelOrder(t.Context(), adapter.OrderKey{OrderID: "1"}, "BTCUSDT"), exception.ErrNotFound)
	require.ErrorIs(t, e.Fill("1", 0.1, 100), exception.ErrNotFound)
}

func TestRejectNext(t *testing.T) {
	e := newTestExchange()
	e.RejectNext("margin is insufficient")

	handle, err := e.SubmitOrder(t.Context(), adapter.OrderSpec{Symbol: "BTCUSDT", Side: enum.OrderSideSell, Volume: 1, ClientOrderID: "x"})
	require.ErrorIs(t, err, exception.ErrRejected)
	assert.Equal(t, "x", handle.ClientOrderID)
	assert.Empty(t, handle.OrderID)

	_, err = e.SubmitOrder(t.Context(), adapter.OrderSpec{Symbol: "BTCUSDT", Side: enum.OrderSideSell, Volume: 1, ClientOrderID: "x"})
	require.NoError(t, err)

	_, err = e.SubmitOrder(t.Context(), adapter.OrderSpec{Symbol: "BTCUSDT", Side: enum.OrderSideSell, Volume: 1, ClientOrderID: "x"})
	require.ErrorIs(t, err, exception.ErrRejected)
}

func TestBatches(t *testing.T) {
	e := newTestExchange()

	specs := []adapter.OrderSpec{
		{Symbol: "ETHUSDT", Side: enum.OrderSideBuy, Price: adapter.Some(10.0), Volume: 1, ClientOrderID: "b1"},
		{Symbol: "ETHUSDT", Side: enum.OrderSideBuy, Price: adapter.Some(11.0), Volume: 1, ClientOrderID: "b2"},
		{Symbol: "NOPE", Side: enum.OrderSideBuy, Price: adapter.Some(11.0), Volume: 1, ClientOrderID: "b3"},
	}
	results, err := e.SubmitBatch(t.Context(), specs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, exception.ErrInvalidArgument)
	assert.Equal(t, "b3", results[2].ClientOrderID)

	canceled, err := e.CancelBatch(t.Context(), "ETHUSDT", []string{results[0].OrderID, results[1].OrderID, "999"})
	require.NoError(t, err)
	require.Len(t, canceled, 3)
	assert.NoError(t, canceled[0].Err)
	assert.NoError(t, canceled[1].Err)
	assert.Equal(t, "999", canceled[2].OrderID)
	assert.ErrorIs(t, canceled[2].Err, exception.ErrNotFound)
}

func TestSetAccount(t *testing.T) {
	e := newTestExchange()
	events, err := e.UserStream(t.Context())
	require.NoError(t, err)
	next(t, events)

	e.SetAccount(
		[]adapter.Balance{{Asset: "USDT", Total: 1000, Free: 800}},
		[]adapter.Position{{Symbol: "BTCUSDT", Size: -0.5, EntryPrice: 50000, LiquidationPrice: adapter.Some(60000.0)}},
	)

	ev := next(t, events)
	require.Equal(t, enum.EventKindAccount, ev.Kind)
	require.Len(t, ev.Account.Balances, 1)
	assert.Equal(t, "1000", ev.Account.Balances[0].WalletBalance)
	assert.Equal(t, "800", ev.Account.Balances[0].CrossWalletBalance)
	require.Len(t, ev.Account.Positions, 1)
	assert.Equal(t, "-0.5", ev.Account.Positions[0].Amount)
	require.NotNil(t, ev.Account.Positions[0].LiquidationPrice)
	assert.Equal(t, "60000", *ev.Account.Positions[0].LiquidationPrice)
}

func TestPriceAndKlines(t *testing.T) {
	e := newTestExchange()
	clock := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	e.now = func() time.Time { return clock }

	var prices []adapter.Price
	unsubscribe, err := e.SubscribePrice(t.Context(), "BTCUSDT", func(p adapter.Price) { prices = append(prices, p) })
	require.NoError(t, err)

	var klines []adapter.Kline
	_, err = e.SubscribeKlines(t.Context(), "BTCUSDT", "1m", func(k adapter.Kline) { klines = append(klines, k) })
	require.NoError(t, err)

	e.SetPrice("BTCUSDT", 100)
	clock = clock.Add(20 * time.Second)
	e.SetPrice("BTCUSDT", 105)
	e.SetPrice("ETHUSDT", 1)
	clock = clock.Add(40 * time.Second)
	e.SetPrice("BTCUSDT", 98)

	require.Len(t, prices, 3)
	assert.Equal(t, 105.0, prices[1].Price)

	require.Len(t, klines, 4)
	closed := klines[2]
	assert.True(t, closed.Final)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), closed.Time)
	assert.Equal(t, 100.0, closed.Open)
	assert.Equal(t, 105.0, closed.High)
	assert.Equal(t, 100.0, closed.Low)
	assert.Equal(t, 105.0, closed.Close)

	open := klines[3]
	assert.False(t, open.Final)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), open.Time)
	assert.Equal(t, 98.0, open.Open)

	unsubscribe()
	unsubscribe()
	e.SetPrice("BTCUSDT", 99)
	assert.Len(t, prices, 3)
	assert.Len(t, klines, 5)
}

func TestSubscribeValidation(t *testing.T) {
	e := newTestExchange()

	_, err := e.SubscribePrice(t.Context(), "BTCUSDT", nil)
	require.ErrorIs(t, err, exception.ErrNilHandler)

	_, err = e.SubscribeKlines(t.Context(), "BTCUSDT", "7m", func(adapter.Kline) {})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "7m")

	_, err = e.SubscribeKlines(t.Context(), "NOPE", "1m", func(adapter.Kline) {})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestUsecaseOnPaper(t *testing.T) {
	e := newTestExchange()
	use, err := order.NewUsecase(e, order.DefaultConfig())
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		statuses []enum.OrderStatus
		done     = make(chan struct{})
	)
	use.SubscribeOrderUpdates(func(u adapter.Update) {
		ou, ok := u.(adapter.OrderUpdate)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, ou.Status)
		if ou.Status == enum.OrderStatusFilled {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = use.Run(ctx) }()

	handle, err := use.SubmitOrder(t.Context(), "BTCUSDT", enum.OrderSideBuy, adapter.Some(100.04), 1.2344, "")
	require.NoError(t, err)
	require.NotEmpty(t, handle.OrderID)

	require.NoError(t, e.Fill(handle.OrderID, 1.234, 100))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "order never filled")
	}

	o, ok := use.Order(adapter.OrderKey{OrderID: handle.OrderID})
	require.True(t, ok)
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
	assert.Equal(t, 1.234, o.Volume)
	assert.Equal(t, 1.234, o.RealizedVolume)
	assert.Equal(t, 100.0, o.Price.Value)
	assert.Equal(t, handle.ClientOrderID, o.ClientOrderID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []enum.OrderStatus{enum.OrderStatusPending, enum.OrderStatusNew, enum.OrderStatusFilled}, statuses)
}
