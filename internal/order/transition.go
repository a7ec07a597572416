package order

import (
	"fmt"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/pkg/exception"
)

type status = enum.OrderStatus

const (
	pending         = enum.OrderStatusPending
	pendingCancel   = enum.OrderStatusPendingCancel
	statusNew       = enum.OrderStatusNew
	partiallyFilled = enum.OrderStatusPartiallyFilled
	filled          = enum.OrderStatusFilled
	canceled        = enum.OrderStatusCanceled
	rejected        = enum.OrderStatusRejected
	unknown         = enum.OrderStatusUnknown
)

// transitions lists the statuses each status may move to besides itself.
// PENDING may skip NEW because the acknowledgement can fall into a stream
// reconnect gap. Terminal statuses only accept themselves.
var transitions = map[status][]status{
	pending:         {statusNew, rejected, partiallyFilled, filled, canceled, unknown},
	unknown:         {statusNew, rejected, partiallyFilled, filled, canceled},
	statusNew:       {partiallyFilled, filled, canceled, pendingCancel},
	partiallyFilled: {filled, canceled, pendingCancel},
	pendingCancel:   {canceled, statusNew, partiallyFilled, filled},
}

func canTransition(from, to status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CorrelationError reports an update that contradicts the stored state of an
// order: a terminal status regressing, an illegal transition, or keys that
// point at different orders. It matches exception.ErrCorrelation.
type CorrelationError struct {
	Key    adapter.OrderKey
	From   enum.OrderStatus
	To     enum.OrderStatus
	Reason error
}

func (e *CorrelationError) Error() string {
	if e.From.IsAvailable() || e.To.IsAvailable() {
		return fmt.Sprintf("%s: %s -> %s, %s: %v", exception.ErrCorrelation, e.From, e.To, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", exception.ErrCorrelation, e.Key, e.Reason)
}

func (e *CorrelationError) Unwrap() []error {
	return []error{exception.ErrCorrelation, e.Reason}
}

func checkTransition(key adapter.OrderKey, from, to status) error {
	if canTransition(from, to) {
		return nil
	}

	reason := exception.ErrOrderInvalidTransition
	if from.IsTerminal() {
		reason = exception.ErrOrderTerminal
	}
	return &CorrelationError{Key: key, From: from, To: to, Reason: reason}
}
