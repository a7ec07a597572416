package exception

import "errors"

// Order lifecycle errors. Callers match them with errors.Is; context is
// attached by wrapping.
var (
	ErrInvalidArgument = errors.New("order: invalid argument")
	ErrNotFound        = errors.New("order: not found")
	ErrRejected        = errors.New("order: rejected by exchange")
	ErrTransport       = errors.New("order: transport failure")
	ErrCorrelation     = errors.New("order: correlation error")
)

var (
	ErrOrderNilExchange       = errors.New("order: nil exchange")
	ErrOrderEmptySymbol       = errors.New("order: empty symbol")
	ErrOrderInvalidSide       = errors.New("order: invalid side")
	ErrOrderInvalidVolume     = errors.New("order: volume must be positive")
	ErrOrderInvalidPrice      = errors.New("order: price must be positive")
	ErrOrderTerminal          = errors.New("order: already in terminal status")
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	ErrOrderIDConflict        = errors.New("order: order id conflict")
	ErrOrderKeyConflict       = errors.New("order: keys resolve to different orders")
	ErrOrderBatchTooLarge     = errors.New("order: batch exceeds exchange limit")
	ErrOrderEmptyResponseID   = errors.New("order: empty response order id")
)
