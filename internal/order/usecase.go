package order

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/clientid"
	"cryptofutures/internal/errors"
	"cryptofutures/internal/obs"
	"cryptofutures/internal/state"
	"cryptofutures/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

// Config bounds the network calls the usecase makes.
type Config struct {
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	CancelTimeout time.Duration `yaml:"cancel_timeout"`
	QueryTimeout  time.Duration `yaml:"query_timeout"`
}

func DefaultConfig() Config {
	return Config{
		SubmitTimeout: 5 * time.Second,
		CancelTimeout: 5 * time.Second,
		QueryTimeout:  10 * time.Second,
	}
}

type Option func(*Usecase)

// WithGenerator replaces the client order id generator.
func WithGenerator(g clientid.Generator) Option {
	return func(use *Usecase) { use.ids = g }
}

func WithMetrics(m *obs.Metrics) Option {
	return func(use *Usecase) { use.metrics = m }
}

// Usecase is the caller facing surface of the order lifecycle: it places and
// cancels orders on one exchange and keeps the local view consistent with
// the exchange user stream.
type Usecase struct {
	exchange   Exchange
	cfg        Config
	ids        clientid.Generator
	metrics    *obs.Metrics
	store      *Store
	book       *state.Book
	fanout     *Fanout
	reconciler *Reconciler
	projector  *Projector

	running atomic.Bool
}

func NewUsecase(exchange Exchange, cfg Config, opts ...Option) (*Usecase, error) {
	if exchange == nil {
		return nil, exception.ErrOrderNilExchange
	}

	def := DefaultConfig()
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = def.SubmitTimeout
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = def.CancelTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}

	use := &Usecase{
		exchange: exchange,
		cfg:      cfg,
		ids:      clientid.New(),
		metrics:  obs.NewMetrics(),
	}
	for _, opt := range opts {
		opt(use)
	}

	use.store = NewStore()
	use.book = state.NewBook()
	use.fanout = NewFanout(use.metrics)
	use.reconciler = NewReconciler(use.store, use.book, use.fanout, use.metrics)
	use.projector = NewProjector(use.reconciler, use.store, use.metrics)
	return use, nil
}

func (use *Usecase) Platform() enum.Platform {
	return use.exchange.Platform()
}

func (use *Usecase) Metrics() *obs.Metrics {
	return use.metrics
}

// OnCorrelationError registers a hook for updates that contradict the
// stored order state.
func (use *Usecase) OnCorrelationError(fn func(error)) {
	use.reconciler.OnCorrelationError(fn)
}

// TradableSymbols returns the symbols the exchange currently trades.
func (use *Usecase) TradableSymbols(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, use.cfg.QueryTimeout)
	defer cancel()

	symbols, err := use.exchange.TradableSymbols(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set, nil
}

// SubmitOrder places one order. An absent price places a market order and an
// empty clientOrderID gets a generated one. The PENDING record is visible to
// subscribers before the exchange is called. The returned handle always
// carries the client order id, even on error.
func (use *Usecase) SubmitOrder(ctx context.Context, symbol string, side enum.OrderSide, price adapter.Optional[float64], volume float64, clientOrderID string) (adapter.OrderHandle, error) {
	spec, err := use.prepare(ctx, symbol, adapter.OrderRequest{Side: side, Price: price, Volume: volume, ClientOrderID: clientOrderID})
	if err != nil {
		return adapter.OrderHandle{ClientOrderID: clientOrderID}, err
	}

	handle := adapter.OrderHandle{ClientOrderID: spec.ClientOrderID}
	if _, err := use.projector.Submit(spec.ClientOrderID, spec.Price, spec.Volume, spec.Symbol, spec.Side); err != nil {
		return handle, err
	}

	callCtx, cancel := context.WithTimeout(ctx, use.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	res, err := use.exchange.SubmitOrder(callCtx, spec)
	use.metrics.ObserveSubmit(time.Since(start))
	if err != nil {
		use.submitFailed(spec.ClientOrderID, err)
		return handle, err
	}

	handle.OrderID = res.OrderID
	if err := use.reconciler.Link(handle); err != nil {
		logs.Errorf("link order %s, err: %+v", handle.ClientOrderID, err)
	}
	return handle, nil
}

// SubmitMarketOrder places a market order.
func (use *Usecase) SubmitMarketOrder(ctx context.Context, symbol string, side enum.OrderSide, volume float64, clientOrderID string) (adapter.OrderHandle, error) {
	return use.SubmitOrder(ctx, symbol, side, adapter.None[float64](), volume, clientOrderID)
}

// SubmitOrders places orders of one symbol in exchange sized batches. Every
// PENDING record is projected before the first batch is sent. The results
// are aligned with reqs; the error reports batches that failed as a whole.
func (use *Usecase) SubmitOrders(ctx context.Context, symbol string, reqs []adapter.OrderRequest) ([]adapter.BatchResult, error) {
	if len(reqs) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "submit empty batch")
	}

	results := make([]adapter.BatchResult, len(reqs))
	specs := make([]adapter.OrderSpec, 0, len(reqs))
	index := make([]int, 0, len(reqs))
	for i, req := range reqs {
		results[i].ClientOrderID = req.ClientOrderID

		spec, err := use.prepare(ctx, symbol, req)
		if err != nil {
			results[i].Err = err
			continue
		}

		results[i].ClientOrderID = spec.ClientOrderID
		if _, err := use.projector.Submit(spec.ClientOrderID, spec.Price, spec.Volume, spec.Symbol, spec.Side); err != nil {
			results[i].Err = err
			continue
		}

		specs = append(specs, spec)
		index = append(index, i)
	}

	var errs []error
	size := chunkSize(use.exchange.BatchLimits().Submit, len(specs))
	for lo := 0; lo < len(specs); lo += size {
		hi := min(lo+size, len(specs))
		if err := use.submitChunk(ctx, specs[lo:hi], index[lo:hi], results); err != nil {
			errs = append(errs, err)
		}
	}

	return results, errors.Join(errs...)
}

func (use *Usecase) submitChunk(ctx context.Context, specs []adapter.OrderSpec, index []int, results []adapter.BatchResult) error {
	callCtx, cancel := context.WithTimeout(ctx, use.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	res, err := use.exchange.SubmitBatch(callCtx, specs)
	use.metrics.ObserveSubmit(time.Since(start))
	if err == nil && len(res) != len(specs) {
		err = errors.Wrapf(exception.ErrTransport, "batch of %d answered with %d results", len(specs), len(res))
	}
	if err != nil {
		for i, spec := range specs {
			results[index[i]].Err = err
			use.submitFailed(spec.ClientOrderID, err)
		}
		return err
	}

	for i, spec := range specs {
		r := &results[index[i]]
		r.OrderID = res[i].OrderID
		r.Err = res[i].Err
		if r.Err != nil {
			use.submitFailed(spec.ClientOrderID, r.Err)
			continue
		}
		if err := use.reconciler.Link(adapter.OrderHandle{OrderID: r.OrderID, ClientOrderID: spec.ClientOrderID}); err != nil {
			logs.Errorf("link order %s, err: %+v", spec.ClientOrderID, err)
		}
	}
	return nil
}

// submitFailed settles a PENDING record after a failed submit call. Only an
// explicit refusal or a request the exchange never accepted is REJECTED;
// anything else may have booked the order and stays UNKNOWN until the
// stream tells.
func (use *Usecase) submitFailed(clientOrderID string, err error) {
	if errors.Is(err, exception.ErrRejected) || errors.Is(err, exception.ErrInvalidArgument) {
		use.projector.Failed(clientOrderID, err)
		return
	}
	use.projector.Unknown(clientOrderID, err)
}

// prepare validates a request, quantizes it to the symbol precision and
// assigns a client order id.
func (use *Usecase) prepare(ctx context.Context, symbol string, req adapter.OrderRequest) (adapter.OrderSpec, error) {
	if len(symbol) == 0 {
		return adapter.OrderSpec{}, errors.Wrap(exception.ErrInvalidArgument, exception.ErrOrderEmptySymbol.Error())
	}
	if !req.Side.IsAvailable() {
		return adapter.OrderSpec{}, errors.Wrap(exception.ErrInvalidArgument, exception.ErrOrderInvalidSide.Error())
	}
	if !(req.Volume > 0) || math.IsInf(req.Volume, 0) {
		return adapter.OrderSpec{}, errors.Wrapf(exception.ErrInvalidArgument, "%s: %v", exception.ErrOrderInvalidVolume, req.Volume)
	}
	if req.Price.Valid && (!(req.Price.Value > 0) || math.IsInf(req.Price.Value, 0)) {
		return adapter.OrderSpec{}, errors.Wrapf(exception.ErrInvalidArgument, "%s: %v", exception.ErrOrderInvalidPrice, req.Price.Value)
	}

	queryCtx, cancel := context.WithTimeout(ctx, use.cfg.QueryTimeout)
	defer cancel()

	volumePrecision, err := use.exchange.VolumePrecision(queryCtx, symbol)
	if err != nil {
		return adapter.OrderSpec{}, err
	}
	volume := quantize(req.Volume, volumePrecision)
	if volume <= 0 {
		return adapter.OrderSpec{}, errors.Wrapf(exception.ErrInvalidArgument, "%s: %v rounds to zero at precision %d", exception.ErrOrderInvalidVolume, req.Volume, volumePrecision)
	}

	price := req.Price
	if price.Valid {
		pricePrecision, err := use.exchange.PricePrecision(queryCtx, symbol)
		if err != nil {
			return adapter.OrderSpec{}, err
		}
		price = adapter.Some(quantize(price.Value, pricePrecision))
		if price.Value <= 0 {
			return adapter.OrderSpec{}, errors.Wrapf(exception.ErrInvalidArgument, "%s: %v rounds to zero at precision %d", exception.ErrOrderInvalidPrice, req.Price.Value, pricePrecision)
		}
	}

	clientOrderID := req.ClientOrderID
	if len(clientOrderID) == 0 {
		clientOrderID = use.ids.Generate()
	}

	return adapter.OrderSpec{
		Symbol:        symbol,
		Side:          req.Side,
		Price:         price,
		Volume:        volume,
		ClientOrderID: clientOrderID,
	}, nil
}

func quantize(v float64, precision int32) float64 {
	return decimal.NewFromFloat(v).Round(precision).InexactFloat64()
}

func chunkSize(limit, n int) int {
	if limit <= 0 {
		return max(n, 1)
	}
	return limit
}

// CancelOrder cancels one order by exchange order id or, when orderID is
// empty, by client order id. Unknown orders fail without a network call.
func (use *Usecase) CancelOrder(ctx context.Context, orderID, clientOrderID string) error {
	key := adapter.OrderKey{OrderID: orderID, ClientOrderID: clientOrderID}
	if key.IsEmpty() {
		return errors.Wrap(exception.ErrInvalidArgument, "cancel without order id or client order id")
	}

	current, projected, err := use.projector.Cancel(key)
	if err != nil {
		return err
	}

	target := adapter.OrderKey{OrderID: current.OrderID}
	if len(target.OrderID) == 0 {
		target.ClientOrderID = current.ClientOrderID
	}

	callCtx, cancel := context.WithTimeout(ctx, use.cfg.CancelTimeout)
	defer cancel()

	start := time.Now()
	err = use.exchange.CancelOrder(callCtx, target, current.Symbol)
	use.metrics.ObserveCancel(time.Since(start))
	if err != nil {
		if projected {
			use.projector.CancelRejected(current.Key(), current.Status, err)
		}
		return err
	}
	return nil
}

type cancelTarget struct {
	order     adapter.Order
	projected bool
}

// CancelOrders cancels orders by exchange order id, grouped per symbol in
// exchange sized batches. Every id must be known before anything is sent;
// orders already in a terminal status are skipped.
func (use *Usecase) CancelOrders(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "cancel empty batch")
	}

	seen := make(map[string]struct{}, len(orderIDs))
	known := make([]adapter.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if len(id) == 0 {
			return errors.Wrap(exception.ErrInvalidArgument, "cancel with empty order id")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		o, ok := use.store.GetByOrderID(id)
		if !ok {
			return errors.Wrapf(exception.ErrNotFound, "cancel order_id=%s", id)
		}
		known = append(known, o)
	}

	var (
		symbols []string
		groups  = make(map[string][]cancelTarget)
	)
	for _, o := range known {
		current, projected, err := use.projector.Cancel(o.Key())
		if err != nil {
			logs.Infof("skip cancel of %s, err: %v", o.Key(), err)
			continue
		}
		if _, ok := groups[current.Symbol]; !ok {
			symbols = append(symbols, current.Symbol)
		}
		groups[current.Symbol] = append(groups[current.Symbol], cancelTarget{order: current, projected: projected})
	}

	var errs []error
	size := use.exchange.BatchLimits().Cancel
	for _, symbol := range symbols {
		targets := groups[symbol]
		step := chunkSize(size, len(targets))
		for lo := 0; lo < len(targets); lo += step {
			hi := min(lo+step, len(targets))
			if err := use.cancelChunk(ctx, symbol, targets[lo:hi]); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (use *Usecase) cancelChunk(ctx context.Context, symbol string, targets []cancelTarget) error {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.order.OrderID)
	}

	callCtx, cancel := context.WithTimeout(ctx, use.cfg.CancelTimeout)
	defer cancel()

	start := time.Now()
	res, err := use.exchange.CancelBatch(callCtx, symbol, ids)
	use.metrics.ObserveCancel(time.Since(start))
	if err == nil && len(res) != len(ids) {
		err = errors.Wrapf(exception.ErrTransport, "cancel batch of %d answered with %d results", len(ids), len(res))
	}
	if err != nil {
		for _, t := range targets {
			if t.projected {
				use.projector.CancelRejected(t.order.Key(), t.order.Status, err)
			}
		}
		return errors.Wrapf(err, "cancel %d orders of %s", len(ids), symbol)
	}

	var errs []error
	for i, t := range targets {
		if res[i].Err == nil {
			continue
		}
		if t.projected {
			use.projector.CancelRejected(t.order.Key(), t.order.Status, res[i].Err)
		}
		errs = append(errs, errors.Wrapf(res[i].Err, "cancel order_id=%s of %s", t.order.OrderID, symbol))
	}
	return errors.Join(errs...)
}

// SubscribeOrderUpdates registers callback for order, position and balance
// updates. Callbacks run on the reconciling goroutine and must not call
// back into the usecase synchronously.
func (use *Usecase) SubscribeOrderUpdates(callback func(adapter.Update)) (unsubscribe func()) {
	return use.fanout.Subscribe(callback)
}

func (use *Usecase) SubscribePrice(ctx context.Context, symbol string, callback func(adapter.Price)) (func(), error) {
	if len(symbol) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, exception.ErrOrderEmptySymbol.Error())
	}
	if callback == nil {
		return nil, errors.Wrap(exception.ErrInvalidArgument, exception.ErrNilHandler.Error())
	}
	return use.exchange.SubscribePrice(ctx, symbol, callback)
}

func (use *Usecase) SubscribeKlines(ctx context.Context, symbol, interval string, callback func(adapter.Kline)) (func(), error) {
	if len(symbol) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, exception.ErrOrderEmptySymbol.Error())
	}
	if len(interval) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, exception.ErrInvalidInterval.Error())
	}
	if callback == nil {
		return nil, errors.Wrap(exception.ErrInvalidArgument, exception.ErrNilHandler.Error())
	}
	return use.exchange.SubscribeKlines(ctx, symbol, interval, callback)
}

// Order returns the stored record of key, order id first.
func (use *Usecase) Order(key adapter.OrderKey) (adapter.Order, bool) {
	return use.store.Get(key)
}

func (use *Usecase) Orders() []adapter.Order {
	return use.store.Snapshot()
}

func (use *Usecase) Positions() []adapter.Position {
	return use.book.Snapshot().Positions
}

func (use *Usecase) Balances() []adapter.Balance {
	return use.book.Snapshot().Balances
}

// Run opens the exchange user stream and reconciles it until ctx is done.
// A second concurrent call returns immediately.
func (use *Usecase) Run(ctx context.Context) error {
	if use.running.Swap(true) {
		return nil
	}
	defer use.running.Store(false)

	events, err := use.exchange.UserStream(ctx)
	if err != nil {
		return errors.Wrap(err, "open user stream")
	}

	logs.Infof("order usecase running on %s", use.exchange.Platform())
	return use.reconciler.Run(ctx, events)
}
