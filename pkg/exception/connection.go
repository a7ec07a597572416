package exception

import "errors"

var (
	ErrInResponseError   = errors.New("there is an error in response error field")
	ErrConnectionClose   = errors.New("connection closed")
	ErrListenKeyExpired  = errors.New("user stream: listen key expired")
	ErrStreamGiveUp      = errors.New("user stream: reconnect attempts exhausted")
	ErrStreamStarted     = errors.New("user stream: already started")
	ErrUnsupportedFormat = errors.New("user stream: unsupported message format")
)
