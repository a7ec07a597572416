package binance

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
)

const _userStreamBuffer = 256

// UserStream opens the user data stream. The returned channel survives
// reconnects and closes when ctx is done or reconnecting gives up.
func (f *Futures) UserStream(ctx context.Context) (<-chan adapter.RawEvent, error) {
	if f.streaming.Swap(true) {
		return nil, exception.ErrStreamStarted
	}

	key, err := f.rest.createListenKey(ctx)
	if err != nil {
		f.streaming.Store(false)
		return nil, errors.Wrap(err, "create listen key")
	}

	out := make(chan adapter.RawEvent, _userStreamBuffer)
	go f.runUserStream(ctx, key, out)
	return out, nil
}

func (f *Futures) runUserStream(ctx context.Context, key string, out chan<- adapter.RawEvent) {
	defer close(out)
	defer f.streaming.Store(false)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		var (
			connected bool
			err       error
		)
		if len(key) == 0 {
			key, err = f.rest.createListenKey(ctx)
		}
		if err == nil {
			connected, err = f.serveUserStream(ctx, key, out)
		}

		if connected {
			attempt = 0
			if !emit(ctx, out, lifecycleEvent(enum.LifecycleDisconnected)) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, exception.ErrListenKeyExpired) {
			key = ""
		}

		attempt++
		if f.cfg.Backoff.Exhausted(attempt) {
			logs.Errorf("binance user stream, %s, attempts: %d, err: %+v", exception.ErrStreamGiveUp, attempt-1, err)
			return
		}

		logs.Errorf("binance user stream reconnect, attempt: %d, err: %+v", attempt, err)
		if err := f.cfg.Backoff.Wait(ctx, attempt); err != nil {
			return
		}
	}
}

// serveUserStream holds one websocket session. connected reports whether
// the dial succeeded.
func (f *Futures) serveUserStream(ctx context.Context, key string, out chan<- adapter.RawEvent) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, strings.TrimRight(f.cfg.StreamURL, "/")+"/"+key, http.Header{})
	if err != nil {
		return false, errors.Wrapf(exception.ErrTransport, "dial user stream, err: %v", err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	var expired atomic.Bool
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()
	go f.keepAlive(sessionCtx, func() {
		expired.Store(true)
		cancel()
	})

	readTimeout := f.cfg.ReadTimeout
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	logs.Info("binance user stream connected")
	if !emit(ctx, out, lifecycleEvent(enum.LifecycleConnected)) {
		return true, ctx.Err()
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if expired.Load() {
				emit(ctx, out, lifecycleEvent(enum.LifecycleListenKeyExpired))
				return true, exception.ErrListenKeyExpired
			}
			return true, errors.Wrapf(exception.ErrConnectionClose, "read user stream, err: %v", err)
		}

		ev, ok, err := decodeUserEvent(message)
		if err != nil {
			logs.Errorf("decode user stream message, err: %+v, message: %s", err, message)
			continue
		}
		if !ok {
			continue
		}
		if !emit(ctx, out, ev) {
			return true, ctx.Err()
		}
		if ev.Kind == enum.EventKindLifecycle && ev.Lifecycle == enum.LifecycleListenKeyExpired {
			return true, exception.ErrListenKeyExpired
		}
	}
}

// keepAlive extends the listen key until ctx is done. A key the exchange no
// longer knows calls expire and stops.
func (f *Futures) keepAlive(ctx context.Context, expire func()) {
	ticker := time.NewTicker(f.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
			err := f.rest.keepAliveListenKey(callCtx)
			cancel()
			if err != nil {
				logs.Errorf("keep alive listen key, err: %+v", err)
			}
			if errors.Is(err, exception.ErrListenKeyExpired) {
				expire()
				return
			}
		}
	}
}

func lifecycleEvent(l enum.Lifecycle) adapter.RawEvent {
	return adapter.RawEvent{Kind: enum.EventKindLifecycle, EventTime: time.Now(), Lifecycle: l}
}

func emit(ctx context.Context, out chan<- adapter.RawEvent, ev adapter.RawEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
