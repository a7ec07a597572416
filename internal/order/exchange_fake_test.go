package order

import (
	"context"
	"strconv"
	"sync"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/pkg/exception"
)

type cancelBatchCall struct {
	Symbol   string
	OrderIDs []string
}

type fakeExchange struct {
	mu sync.Mutex

	limits  adapter.BatchLimits
	nextID  int
	events  chan adapter.RawEvent
	symbols []string

	submitErr    error
	cancelErr    error
	cancelFails  map[string]error
	onSubmit     func(spec adapter.OrderSpec)
	submitSpecs  []adapter.OrderSpec
	batchSizes   []int
	cancelKeys   []adapter.OrderKey
	cancelBatchs []cancelBatchCall
}

var _ Exchange = (*fakeExchange)(nil)

func newFakeExchange(limits adapter.BatchLimits) *fakeExchange {
	return &fakeExchange{
		limits:  limits,
		nextID:  100,
		events:  make(chan adapter.RawEvent, 16),
		symbols: []string{"BTCUSD", "ETHUSD"},
	}
}

func (f *fakeExchange) Platform() enum.Platform { return enum.PlatformPaper }

func (f *fakeExchange) TradableSymbols(context.Context) ([]string, error) {
	return f.symbols, nil
}

func (f *fakeExchange) PricePrecision(_ context.Context, symbol string) (int32, error) {
	if symbol == "UNKNOWN" {
		return 0, exception.ErrUnknownSymbol
	}
	return 2, nil
}

func (f *fakeExchange) VolumePrecision(_ context.Context, symbol string) (int32, error) {
	if symbol == "UNKNOWN" {
		return 0, exception.ErrUnknownSymbol
	}
	return 3, nil
}

func (f *fakeExchange) BatchLimits() adapter.BatchLimits { return f.limits }

func (f *fakeExchange) SubmitOrder(ctx context.Context, spec adapter.OrderSpec) (adapter.OrderHandle, error) {
	if f.onSubmit != nil {
		f.onSubmit(spec)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitSpecs = append(f.submitSpecs, spec)
	if err := ctx.Err(); err != nil {
		return adapter.OrderHandle{}, err
	}
	if f.submitErr != nil {
		return adapter.OrderHandle{}, f.submitErr
	}
	f.nextID++
	return adapter.OrderHandle{OrderID: strconv.Itoa(f.nextID), ClientOrderID: spec.ClientOrderID}, nil
}

func (f *fakeExchange) SubmitBatch(ctx context.Context, specs []adapter.OrderSpec) ([]adapter.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batchSizes = append(f.batchSizes, len(specs))
	if f.submitErr != nil {
		return nil, f.submitErr
	}

	results := make([]adapter.BatchResult, 0, len(specs))
	for _, spec := range specs {
		f.nextID++
		results = append(results, adapter.BatchResult{
			OrderHandle: adapter.OrderHandle{OrderID: strconv.Itoa(f.nextID), ClientOrderID: spec.ClientOrderID},
		})
	}
	return results, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, key adapter.OrderKey, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelKeys = append(f.cancelKeys, key)
	return f.cancelErr
}

func (f *fakeExchange) CancelBatch(_ context.Context, symbol string, orderIDs []string) ([]adapter.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelBatchs = append(f.cancelBatchs, cancelBatchCall{Symbol: symbol, OrderIDs: append([]string(nil), orderIDs...)})
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}

	results := make([]adapter.BatchResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		results = append(results, adapter.BatchResult{
			OrderHandle: adapter.OrderHandle{OrderID: id},
			Err:         f.cancelFails[id],
		})
	}
	return results, nil
}

func (f *fakeExchange) UserStream(context.Context) (<-chan adapter.RawEvent, error) {
	return f.events, nil
}

func (f *fakeExchange) SubscribePrice(context.Context, string, func(adapter.Price)) (func(), error) {
	return func() {}, nil
}

func (f *fakeExchange) SubscribeKlines(context.Context, string, string, func(adapter.Kline)) (func(), error) {
	return func() {}, nil
}

func (f *fakeExchange) cancelCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelKeys) + len(f.cancelBatchs)
}

type fixedGenerator struct {
	ids []string
	n   int
}

func (g *fixedGenerator) Generate() string {
	id := g.ids[g.n%len(g.ids)]
	g.n++
	return id
}

func rawTrade(orderID, clientOrderID, status, side string) adapter.RawEvent {
	return adapter.RawEvent{
		Kind: enum.EventKindOrderTrade,
		OrderTrade: &adapter.RawOrderTrade{
			OrderID:        orderID,
			ClientOrderID:  clientOrderID,
			Symbol:         "BTCUSD",
			Side:           side,
			Type:           "LIMIT",
			Status:         status,
			Price:          "50000",
			AveragePrice:   "0",
			Quantity:       "0.01",
			FilledQuantity: "0",
		},
	}
}
