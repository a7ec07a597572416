package order

import (
	"context"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
)

// Exchange is the capability set one venue adapter provides.
//
// Submit and cancel calls are one-shot: they are not retried and their
// errors wrap exception.ErrRejected, exception.ErrNotFound or
// exception.ErrTransport. UserStream reconnects on its own and keeps the
// returned channel open until ctx is done.
type Exchange interface {
	Platform() enum.Platform

	TradableSymbols(ctx context.Context) ([]string, error)
	PricePrecision(ctx context.Context, symbol string) (int32, error)
	VolumePrecision(ctx context.Context, symbol string) (int32, error)

	// BatchLimits reports the native batch sizes. A venue without native
	// batch support still accepts batches and fans them out internally,
	// losing atomicity.
	BatchLimits() adapter.BatchLimits
	SubmitOrder(ctx context.Context, spec adapter.OrderSpec) (adapter.OrderHandle, error)
	SubmitBatch(ctx context.Context, specs []adapter.OrderSpec) ([]adapter.BatchResult, error)
	CancelOrder(ctx context.Context, key adapter.OrderKey, symbol string) error
	// CancelBatch reports one result per order id, aligned with orderIDs.
	// The error is set only when the call as a whole failed.
	CancelBatch(ctx context.Context, symbol string, orderIDs []string) ([]adapter.BatchResult, error)

	UserStream(ctx context.Context) (<-chan adapter.RawEvent, error)
	SubscribePrice(ctx context.Context, symbol string, handler func(adapter.Price)) (unsubscribe func(), err error)
	SubscribeKlines(ctx context.Context, symbol, interval string, handler func(adapter.Kline)) (unsubscribe func(), err error)
}
