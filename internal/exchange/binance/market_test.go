package binance

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/pkg/exception"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	_markPriceETH = `{"e":"markPriceUpdate","E":1562305380000,"s":"ETHUSDT","p":"3010.50","i":"3010.12","P":"3010.20","r":"0.00010000","T":1562306400000}`
	_markPriceBTC = `{"e":"markPriceUpdate","E":1562305380000,"s":"BTCUSDT","p":"11794.15000000","i":"11784.62659091","P":"11784.25641265","r":"0.00038167","T":1562306400000}`
	_kline5m      = `{"e":"kline","E":1638747660000,"s":"BTCUSDT","k":{"t":1638747600000,"T":1638747899999,"s":"BTCUSDT","i":"5m","f":1,"L":2,"o":"1","c":"1","h":"1","l":"1","v":"1","n":2,"x":false,"q":"1","V":"1","Q":"1","B":"0"}}`
	_kline1m      = `{"e":"kline","E":1638747660000,"s":"BTCUSDT","k":{"t":1638747660000,"T":1638747719999,"s":"BTCUSDT","i":"1m","f":100,"L":200,"o":"100.5","c":"100.8","h":"101.0","l":"100.0","v":"12.5","n":100,"x":true,"q":"1260.1","V":"6.2","Q":"625.0","B":"0"}}`
)

// marketServer acks every SUBSCRIBE and then pushes the frames queued for
// that stream.
type marketServer struct {
	frames map[string][]string
	conns  atomic.Int32

	mu      sync.Mutex
	streams []string
}

func (s *marketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/ws" {
		http.NotFound(w, r)
		return
	}

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.conns.Add(1)

	for {
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		s.mu.Lock()
		s.streams = append(s.streams, req.Params...)
		s.mu.Unlock()

		if err := conn.WriteJSON(map[string]any{"result": nil, "id": req.ID}); err != nil {
			return
		}
		for _, stream := range req.Params {
			for _, frame := range s.frames[stream] {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			}
		}
	}
}

func (s *marketServer) subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.streams...)
}

func newMarketFutures(t *testing.T, srv *marketServer) *Futures {
	t.Helper()

	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	f, err := New(t.Context(), Config{
		RestURL:   hs.URL,
		StreamURL: "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws",
		APIKey:    _testKey,
		APISecret: _testSecret,
	})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

func TestSubscribePrice(t *testing.T) {
	srv := &marketServer{frames: map[string][]string{
		"btcusdt@markPrice": {_markPriceETH, _markPriceBTC},
	}}
	f := newMarketFutures(t, srv)

	prices := make(chan adapter.Price, 4)
	unsubscribe, err := f.SubscribePrice(t.Context(), "BTCUSDT", func(p adapter.Price) { prices <- p })
	require.NoError(t, err)
	defer unsubscribe()

	select {
	case p := <-prices:
		assert.Equal(t, "BTCUSDT", p.Symbol)
		assert.InDelta(t, 11794.15, p.Price, 1e-9)
		assert.True(t, time.UnixMilli(1562305380000).Equal(p.Time))
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no mark price within 5s")
	}
	assert.Equal(t, []string{"btcusdt@markPrice"}, srv.subscribed())

	select {
	case p := <-prices:
		assert.Failf(t, "unexpected price", "%+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeKlines(t *testing.T) {
	srv := &marketServer{frames: map[string][]string{
		"btcusdt@kline_1m": {_kline5m, _kline1m},
	}}
	f := newMarketFutures(t, srv)

	klines := make(chan adapter.Kline, 4)
	unsubscribe, err := f.SubscribeKlines(t.Context(), "BTCUSDT", "1m", func(k adapter.Kline) { klines <- k })
	require.NoError(t, err)
	defer unsubscribe()

	select {
	case k := <-klines:
		assert.Equal(t, "BTCUSDT", k.Symbol)
		assert.Equal(t, "1m", k.Interval)
		assert.True(t, time.UnixMilli(1638747660000).Equal(k.Time))
		assert.InDelta(t, 100.5, k.Open, 1e-9)
		assert.InDelta(t, 101.0, k.High, 1e-9)
		assert.InDelta(t, 100.0, k.Low, 1e-9)
		assert.InDelta(t, 100.8, k.Close, 1e-9)
		assert.InDelta(t, 12.5, k.Volume, 1e-9)
		assert.True(t, k.Final)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no kline within 5s")
	}
	assert.Equal(t, []string{"btcusdt@kline_1m"}, srv.subscribed())
}

func TestSubscribeSharesMarketSocket(t *testing.T) {
	srv := &marketServer{frames: map[string][]string{
		"btcusdt@markPrice": {_markPriceBTC},
		"btcusdt@kline_1m":  {_kline1m},
	}}
	f := newMarketFutures(t, srv)

	prices := make(chan adapter.Price, 4)
	unsubscribePrice, err := f.SubscribePrice(t.Context(), "BTCUSDT", func(p adapter.Price) { prices <- p })
	require.NoError(t, err)
	defer unsubscribePrice()

	klines := make(chan adapter.Kline, 4)
	unsubscribeKlines, err := f.SubscribeKlines(t.Context(), "BTCUSDT", "1m", func(k adapter.Kline) { klines <- k })
	require.NoError(t, err)
	defer unsubscribeKlines()

	select {
	case <-prices:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no mark price within 5s")
	}
	select {
	case <-klines:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no kline within 5s")
	}

	assert.Equal(t, int32(1), srv.conns.Load())
	assert.Equal(t, []string{"btcusdt@markPrice", "btcusdt@kline_1m"}, srv.subscribed())
}

func TestSubscribeValidation(t *testing.T) {
	f := newMarketFutures(t, &marketServer{})

	_, err := f.SubscribePrice(t.Context(), "BTCUSDT", nil)
	require.ErrorIs(t, err, exception.ErrNilHandler)

	_, err = f.SubscribeKlines(t.Context(), "BTCUSDT", "", func(adapter.Kline) {})
	require.ErrorIs(t, err, exception.ErrInvalidInterval)

	f.marketMu.Lock()
	defer f.marketMu.Unlock()
	assert.Nil(t, f.market)
}
