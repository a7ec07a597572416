package order

import (
	"math"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/internal/obs"
	"cryptofutures/pkg/exception"

	"github.com/yanun0323/logs"
)

// Projector writes locally derived states (PENDING, PENDING_CANCEL, ...)
// ahead of exchange confirmation. Every projection goes through the
// reconciler so it is ordered against exchange updates of the same order.
type Projector struct {
	reconciler *Reconciler
	store      *Store
	metrics    *obs.Metrics
	now        func() time.Time
}

func NewProjector(reconciler *Reconciler, store *Store, metrics *obs.Metrics) *Projector {
	return &Projector{
		reconciler: reconciler,
		store:      store,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Submit projects a PENDING record. A client order id that is already
// stored is refused.
func (p *Projector) Submit(clientOrderID string, price adapter.Optional[float64], volume float64, symbol string, side enum.OrderSide) (adapter.Order, error) {
	if len(clientOrderID) == 0 {
		return adapter.Order{}, errors.Wrap(exception.ErrInvalidArgument, "project submit without client order id")
	}

	patch := adapter.FullPatch(adapter.Order{
		ClientOrderID: clientOrderID,
		Status:        enum.OrderStatusPending,
		Symbol:        symbol,
		Price:         price,
		AveragePrice:  math.NaN(),
		Volume:        side.Sign() * math.Abs(volume),
		UpdateTime:    p.now(),
	})

	merged, applied, err := p.reconciler.ApplyIf(patch, func(_ adapter.Order, found bool) bool { return !found })
	if err != nil {
		return adapter.Order{}, err
	}
	if !applied {
		return merged, errors.Wrapf(exception.ErrInvalidArgument, "duplicate client order id %s", clientOrderID)
	}

	p.metrics.IncProjection()
	return merged, nil
}

// Cancel resolves key and projects PENDING_CANCEL onto an acknowledged
// order. It returns the record as it was before the projection and whether
// a projection happened. PENDING and UNKNOWN records are left as they are.
func (p *Projector) Cancel(key adapter.OrderKey) (adapter.Order, bool, error) {
	if key.IsEmpty() {
		return adapter.Order{}, false, errors.Wrap(exception.ErrInvalidArgument, "cancel without order id or client order id")
	}

	// a given order id never falls back to the client order id
	var (
		current adapter.Order
		ok      bool
	)
	if len(key.OrderID) != 0 {
		current, ok = p.store.GetByOrderID(key.OrderID)
	} else {
		current, ok = p.store.GetByClientOrderID(key.ClientOrderID)
	}
	if !ok {
		return adapter.Order{}, false, errors.Wrapf(exception.ErrNotFound, "cancel %s", key)
	}

	switch {
	case current.Status.IsTerminal():
		return current, false, errors.Wrapf(exception.ErrInvalidArgument, "cancel %s in status %s, err: %v", key, current.Status, exception.ErrOrderTerminal)
	case current.Status == enum.OrderStatusPendingCancel:
		return current, false, nil
	case current.Status != enum.OrderStatusNew && current.Status != enum.OrderStatusPartiallyFilled:
		return current, false, nil
	}

	before := current.Status
	_, applied, err := p.reconciler.ApplyIf(p.statusPatch(current.Key(), enum.OrderStatusPendingCancel), func(cur adapter.Order, found bool) bool {
		return found && cur.Status == before
	})
	if err != nil {
		return current, false, err
	}
	if applied {
		p.metrics.IncProjection()
	}
	return current, applied, nil
}

// Failed projects REJECTED onto a submit the exchange refused, unless a
// confirmation already moved the record on.
func (p *Projector) Failed(clientOrderID string, reason error) bool {
	return p.whileStatus(adapter.OrderKey{ClientOrderID: clientOrderID}, enum.OrderStatusPending, enum.OrderStatusRejected, reason)
}

// Unknown projects UNKNOWN onto a submit whose call ended without telling
// whether the exchange booked the order.
func (p *Projector) Unknown(clientOrderID string, reason error) bool {
	return p.whileStatus(adapter.OrderKey{ClientOrderID: clientOrderID}, enum.OrderStatusPending, enum.OrderStatusUnknown, reason)
}

// CancelRejected restores the status held before a failed cancel.
func (p *Projector) CancelRejected(key adapter.OrderKey, previous enum.OrderStatus, reason error) bool {
	return p.whileStatus(key, enum.OrderStatusPendingCancel, previous, reason)
}

func (p *Projector) whileStatus(key adapter.OrderKey, from, to enum.OrderStatus, reason error) bool {
	if key.IsEmpty() {
		return false
	}

	merged, applied, err := p.reconciler.ApplyIf(p.statusPatch(key, to), func(cur adapter.Order, found bool) bool {
		return found && cur.Status == from
	})
	if err != nil || !applied {
		return false
	}

	p.metrics.IncProjection()
	if reason != nil {
		logs.Infof("order %s projected %s -> %s, reason: %v", merged.Key(), from, to, reason)
	}
	return true
}

func (p *Projector) statusPatch(key adapter.OrderKey, status enum.OrderStatus) adapter.OrderPatch {
	return adapter.OrderPatch{
		Order: adapter.Order{
			OrderID:       key.OrderID,
			ClientOrderID: key.ClientOrderID,
			Status:        status,
			UpdateTime:    p.now(),
		},
		Fields: adapter.FieldStatus | adapter.FieldUpdateTime,
	}
}
