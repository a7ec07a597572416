package order

import (
	"context"
	"sync"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/internal/obs"
	"cryptofutures/internal/state"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

// Reconciler merges projected and exchange updates into the store and the
// account book, then fans the merged result out. Merge and publish share
// one lock so updates of the same order reach subscribers in merge order.
type Reconciler struct {
	mu            sync.Mutex
	store         *Store
	book          *state.Book
	fanout        *Fanout
	metrics       *obs.Metrics
	now           func() time.Time
	onCorrelation func(error)
}

func NewReconciler(store *Store, book *state.Book, fanout *Fanout, metrics *obs.Metrics) *Reconciler {
	return &Reconciler{
		store:   store,
		book:    book,
		fanout:  fanout,
		metrics: metrics,
		now:     time.Now,
	}
}

// OnCorrelationError registers a hook called with every CorrelationError.
// It runs under the reconciler lock and must not block.
func (r *Reconciler) OnCorrelationError(fn func(error)) {
	r.mu.Lock()
	r.onCorrelation = fn
	r.mu.Unlock()
}

// Apply merges the patch and publishes the merged record.
func (r *Reconciler) Apply(p adapter.OrderPatch) (adapter.Order, error) {
	merged, _, err := r.ApplyIf(p, nil)
	return merged, err
}

// ApplyIf merges the patch when cond holds for the current record, then
// publishes the merged record. Nothing is published when cond fails or the
// merge is refused.
func (r *Reconciler) ApplyIf(p adapter.OrderPatch, cond func(current adapter.Order, found bool) bool) (adapter.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged, applied, err := r.store.UpsertMergeIf(p, cond)
	if err != nil {
		r.reportLocked(err)
		return merged, false, err
	}
	if !applied {
		return merged, false, nil
	}

	r.fanout.Publish(adapter.OrderUpdate{Order: merged})
	return merged, true, nil
}

// Link records the exchange order id of a record known by client order id.
// Nothing is published; the status stays as it is.
func (r *Reconciler) Link(handle adapter.OrderHandle) error {
	if len(handle.OrderID) == 0 || len(handle.ClientOrderID) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, _, err := r.store.UpsertMergeIf(
		adapter.OrderPatch{Order: adapter.Order{OrderID: handle.OrderID, ClientOrderID: handle.ClientOrderID}},
		func(_ adapter.Order, found bool) bool { return found },
	)
	if err != nil {
		r.reportLocked(err)
	}
	return err
}

func (r *Reconciler) reportLocked(err error) {
	var ce *CorrelationError
	if !errors.As(err, &ce) {
		return
	}

	r.metrics.IncCorrelationError()
	logs.Errorf("reconcile order update, err: %+v", err)
	if r.onCorrelation != nil {
		r.onCorrelation(err)
	}
}

// Handle routes one raw user stream event.
func (r *Reconciler) Handle(ev adapter.RawEvent) {
	r.metrics.ObserveEvent(ev.Kind)

	switch ev.Kind {
	case enum.EventKindOrderTrade:
		patch, err := orderPatchFromRaw(ev.OrderTrade, ev.Message, r.now())
		if err != nil {
			r.metrics.IncStreamDrop()
			logs.Errorf("normalize order trade update, err: %+v", err)
			return
		}
		_, _ = r.Apply(patch)
	case enum.EventKindAccount:
		r.handleAccount(ev)
	case enum.EventKindLifecycle:
		logs.Infof("user stream %s", ev.Lifecycle)
	default:
		r.metrics.IncStreamDrop()
		logs.Infof("drop user stream event of kind %s", ev.Kind)
	}
}

func (r *Reconciler) handleAccount(ev adapter.RawEvent) {
	if ev.Account == nil {
		r.metrics.IncStreamDrop()
		return
	}

	at := ev.EventTime
	if at.IsZero() {
		at = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, raw := range ev.Account.Balances {
		bal, err := balanceFromRaw(raw, at)
		if err != nil {
			r.metrics.IncStreamDrop()
			logs.Errorf("normalize balance %s, err: %+v", raw.Asset, err)
			continue
		}
		r.book.ApplyBalance(bal)
		r.fanout.Publish(adapter.BalanceUpdate{Balance: bal})
	}

	for _, raw := range ev.Account.Positions {
		pos, err := positionFromRaw(raw, at)
		if err != nil {
			r.metrics.IncStreamDrop()
			logs.Errorf("normalize position %s, err: %+v", raw.Symbol, err)
			continue
		}
		r.book.ApplyPosition(pos)
		r.fanout.Publish(adapter.PositionUpdate{Position: pos})
	}
}

// Run consumes events until ctx is done, the process shuts down or the
// channel closes.
func (r *Reconciler) Run(ctx context.Context, events <-chan adapter.RawEvent) error {
	logs.Info("order reconciler started")
	defer logs.Info("order reconciler stopped")

	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Handle(ev)
		}
	}
}
