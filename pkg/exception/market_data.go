package exception

import "errors"

var (
	ErrUnknownSymbol       = errors.New("market data: unknown symbol")
	ErrUnsupportedPlatform = errors.New("market data: unsupported platform")
	ErrNilHandler          = errors.New("market data: nil handler")
	ErrInvalidInterval     = errors.New("market data: invalid kline interval")
)
