package paper

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/internal/order"
	"cryptofutures/pkg/exception"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const _eventBuffer = 1024

// SymbolSpec is the precision of one paper symbol.
type SymbolSpec struct {
	PricePrecision  int32 `yaml:"price_precision"`
	VolumePrecision int32 `yaml:"volume_precision"`
}

type Config struct {
	Symbols  map[string]SymbolSpec `yaml:"symbols"`
	FeeRate  float64               `yaml:"fee_rate"`
	FeeAsset string                `yaml:"fee_asset"`
	// Zero BatchLimits send a whole batch in one call.
	BatchLimits adapter.BatchLimits `yaml:"batch_limits"`
}

type paperOrder struct {
	spec     adapter.OrderSpec
	orderID  string
	status   enum.OrderStatus
	filled   decimal.Decimal
	notional decimal.Decimal
	fee      decimal.Decimal
}

// Exchange is an in-memory venue. Orders rest until Fill or CancelOrder
// moves them; every change is reported on the user stream like a real
// exchange would.
type Exchange struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	nextID   int64
	orders   map[string]*paperOrder
	byClient map[string]string
	rejects  []string

	events    chan adapter.RawEvent
	streaming bool
	streamCtx context.Context

	market *market
}

var _ order.Exchange = (*Exchange)(nil)

func New(cfg Config) *Exchange {
	if cfg.Symbols == nil {
		cfg.Symbols = map[string]SymbolSpec{}
	}
	if len(cfg.FeeAsset) == 0 {
		cfg.FeeAsset = "USDT"
	}

	return &Exchange{
		cfg:      cfg,
		now:      time.Now,
		orders:   make(map[string]*paperOrder),
		byClient: make(map[string]string),
		events:   make(chan adapter.RawEvent, _eventBuffer),
		market:   newMarket(),
	}
}

func (e *Exchange) Platform() enum.Platform {
	return enum.PlatformPaper
}

func (e *Exchange) BatchLimits() adapter.BatchLimits {
	return e.cfg.BatchLimits
}

func (e *Exchange) TradableSymbols(context.Context) ([]string, error) {
	symbols := make([]string, 0, len(e.cfg.Symbols))
	for s := range e.cfg.Symbols {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (e *Exchange) symbol(symbol string) (SymbolSpec, error) {
	spec, ok := e.cfg.Symbols[symbol]
	if !ok {
		return SymbolSpec{}, errors.Wrapf(exception.ErrInvalidArgument, "%s: %s", exception.ErrUnknownSymbol, symbol)
	}
	return spec, nil
}

func (e *Exchange) PricePrecision(_ context.Context, symbol string) (int32, error) {
	spec, err := e.symbol(symbol)
	return spec.PricePrecision, err
}

func (e *Exchange) VolumePrecision(_ context.Context, symbol string) (int32, error) {
	spec, err := e.symbol(symbol)
	return spec.VolumePrecision, err
}

// RejectNext makes the next submit fail with reason.
func (e *Exchange) RejectNext(reason string) {
	e.mu.Lock()
	e.rejects = append(e.rejects, reason)
	e.mu.Unlock()
}

func (e *Exchange) SubmitOrder(ctx context.Context, spec adapter.OrderSpec) (adapter.OrderHandle, error) {
	if err := ctx.Err(); err != nil {
		return adapter.OrderHandle{ClientOrderID: spec.ClientOrderID}, err
	}
	if _, err := e.symbol(spec.Symbol); err != nil {
		return adapter.OrderHandle{ClientOrderID: spec.ClientOrderID}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.rejects) != 0 {
		reason := e.rejects[0]
		e.rejects = e.rejects[1:]
		return adapter.OrderHandle{ClientOrderID: spec.ClientOrderID}, errors.Wrap(exception.ErrRejected, reason)
	}
	if _, ok := e.byClient[spec.ClientOrderID]; ok && len(spec.ClientOrderID) != 0 {
		return adapter.OrderHandle{ClientOrderID: spec.ClientOrderID}, errors.Wrapf(exception.ErrRejected, "duplicate client order id %s", spec.ClientOrderID)
	}

	e.nextID++
	o := &paperOrder{
		spec:    spec,
		orderID: strconv.FormatInt(e.nextID, 10),
		status:  enum.OrderStatusNew,
	}
	e.orders[o.orderID] = o
	if len(spec.ClientOrderID) != 0 {
		e.byClient[spec.ClientOrderID] = o.orderID
	}

	e.emitLocked(e.tradeEventLocked(o))
	return adapter.OrderHandle{OrderID: o.orderID, ClientOrderID: spec.ClientOrderID}, nil
}

// SubmitBatch places every order concurrently; the batch is not atomic.
func (e *Exchange) SubmitBatch(ctx context.Context, specs []adapter.OrderSpec) ([]adapter.BatchResult, error) {
	results := make([]adapter.BatchResult, len(specs))

	var eg errgroup.Group
	for i, spec := range specs {
		eg.Go(func() error {
			handle, err := e.SubmitOrder(ctx, spec)
			results[i] = adapter.BatchResult{OrderHandle: handle, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	return results, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, key adapter.OrderKey, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.lookupLocked(key)
	if !ok || o.status.IsTerminal() {
		return errors.Wrapf(exception.ErrNotFound, "paper cancel %s", key)
	}

	o.status = enum.OrderStatusCanceled
	e.emitLocked(e.tradeEventLocked(o))
	return nil
}

// CancelBatch cancels every order concurrently. Failures are reported per
// order id.
func (e *Exchange) CancelBatch(ctx context.Context, symbol string, orderIDs []string) ([]adapter.BatchResult, error) {
	results := make([]adapter.BatchResult, len(orderIDs))

	eg, ctx := errgroup.WithContext(ctx)
	for i, id := range orderIDs {
		eg.Go(func() error {
			results[i] = adapter.BatchResult{
				OrderHandle: adapter.OrderHandle{OrderID: id},
				Err:         e.CancelOrder(ctx, adapter.OrderKey{OrderID: id}, symbol),
			}
			return nil
		})
	}
	_ = eg.Wait()

	return results, nil
}

// Fill executes qty of an open order at price.
func (e *Exchange) Fill(orderID string, qty, price float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok || o.status.IsTerminal() {
		return errors.Wrapf(exception.ErrNotFound, "paper fill order_id=%s", orderID)
	}

	total := decimal.NewFromFloat(o.spec.Volume)
	remaining := total.Sub(o.filled)
	q := decimal.NewFromFloat(qty)
	if !q.IsPositive() || q.GreaterThan(remaining) {
		return errors.Wrapf(exception.ErrInvalidArgument, "paper fill %s of remaining %s", q, remaining)
	}

	p := decimal.NewFromFloat(price)
	o.filled = o.filled.Add(q)
	o.notional = o.notional.Add(q.Mul(p))
	o.fee = o.fee.Add(q.Mul(p).Mul(decimal.NewFromFloat(e.cfg.FeeRate)))
	if o.filled.Equal(total) {
		o.status = enum.OrderStatusFilled
	} else {
		o.status = enum.OrderStatusPartiallyFilled
	}

	e.emitLocked(e.tradeEventLocked(o))
	return nil
}

// SetAccount reports balances and positions on the user stream.
func (e *Exchange) SetAccount(balances []adapter.Balance, positions []adapter.Position) {
	account := &adapter.RawAccount{
		Balances:  make([]adapter.RawBalance, 0, len(balances)),
		Positions: make([]adapter.RawPosition, 0, len(positions)),
	}
	for _, b := range balances {
		account.Balances = append(account.Balances, adapter.RawBalance{
			Asset:              b.Asset,
			WalletBalance:      format(b.Total),
			CrossWalletBalance: format(b.Free),
		})
	}
	for _, p := range positions {
		raw := adapter.RawPosition{
			Symbol:     p.Symbol,
			Amount:     format(p.Size),
			EntryPrice: format(p.EntryPrice),
		}
		if p.LiquidationPrice.Valid {
			s := format(p.LiquidationPrice.Value)
			raw.LiquidationPrice = &s
		}
		account.Positions = append(account.Positions, raw)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(adapter.RawEvent{Kind: enum.EventKindAccount, EventTime: e.now(), Account: account})
}

// UserStream returns the event channel of the venue. Events produced
// before the first call are buffered.
func (e *Exchange) UserStream(ctx context.Context) (<-chan adapter.RawEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streaming {
		return nil, exception.ErrStreamStarted
	}
	e.streaming = true
	e.streamCtx = ctx
	e.emitLocked(adapter.RawEvent{Kind: enum.EventKindLifecycle, EventTime: e.now(), Lifecycle: enum.LifecycleConnected})
	return e.events, nil
}

func (e *Exchange) lookupLocked(key adapter.OrderKey) (*paperOrder, bool) {
	if o, ok := e.orders[key.OrderID]; ok {
		return o, true
	}
	if id, ok := e.byClient[key.ClientOrderID]; ok && len(key.ClientOrderID) != 0 {
		return e.orders[id], true
	}
	return nil, false
}

func (e *Exchange) tradeEventLocked(o *paperOrder) adapter.RawEvent {
	now := e.now()
	trade := &adapter.RawOrderTrade{
		OrderID:        o.orderID,
		ClientOrderID:  o.spec.ClientOrderID,
		Symbol:         o.spec.Symbol,
		Side:           o.spec.Side.String(),
		Type:           o.spec.Type().String(),
		Status:         o.status.String(),
		Price:          "0",
		AveragePrice:   "0",
		Quantity:       format(o.spec.Volume),
		FilledQuantity: o.filled.String(),
		TradeTime:      now,
	}
	if o.spec.Price.Valid {
		trade.Price = format(o.spec.Price.Value)
	}
	if o.filled.IsPositive() {
		trade.AveragePrice = o.notional.Div(o.filled).String()
		fee, asset := o.fee.String(), e.cfg.FeeAsset
		trade.Fee, trade.FeeAsset = &fee, &asset
	}

	return adapter.RawEvent{Kind: enum.EventKindOrderTrade, EventTime: now, OrderTrade: trade}
}

// emitLocked keeps event order per order by sending under e.mu.
func (e *Exchange) emitLocked(ev adapter.RawEvent) {
	if e.streamCtx == nil {
		select {
		case e.events <- ev:
		default:
		}
		return
	}

	select {
	case e.events <- ev:
	case <-e.streamCtx.Done():
	}
}

func format(v float64) string {
	return decimal.NewFromFloat(v).String()
}
