package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	_testKey    = "test-key"
	_testSecret = "test-secret"
)

func newTestFutures(t *testing.T, handler http.HandlerFunc) *Futures {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f, err := New(t.Context(), Config{
		RestURL:   srv.URL,
		StreamURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		APIKey:    _testKey,
		APISecret: _testSecret,
	})
	require.NoError(t, err)
	return f
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func verifySignature(t *testing.T, r *http.Request) url.Values {
	t.Helper()

	raw := r.URL.RawQuery
	idx := strings.LastIndex(raw, "&signature=")
	require.Positive(t, idx, "signature must be the last parameter")

	mac := hmac.New(sha256.New, []byte(_testSecret))
	mac.Write([]byte(raw[:idx]))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), raw[idx+len("&signature="):])
	assert.Equal(t, _testKey, r.Header.Get("X-MBX-APIKEY"))

	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, values.Get("timestamp"))
	assert.Equal(t, "5000", values.Get("recvWindow"))
	return values
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(t.Context(), Config{APIKey: "k"})
	require.ErrorIs(t, err, exception.ErrInvalidConfig)
}

func TestSubmitOrderPostOnlyLimit(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)

		q := verifySignature(t, r)
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "GTX", q.Get("timeInForce"))
		assert.Equal(t, "50000.12", q.Get("price"))
		assert.Equal(t, "0.01", q.Get("quantity"))
		assert.Equal(t, "abc", q.Get("newClientOrderId"))

		writeJSON(w, http.StatusOK, `{"orderId":123,"clientOrderId":"abc","status":"NEW"}`)
	})

	handle, err := f.SubmitOrder(t.Context(), adapter.OrderSpec{
		Symbol:        "BTCUSDT",
		Side:          enum.OrderSideBuy,
		Price:         adapter.Some(50000.12),
		Volume:        0.01,
		ClientOrderID: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, adapter.OrderHandle{OrderID: "123", ClientOrderID: "abc"}, handle)
}

func TestSubmitOrderMarket(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		q := verifySignature(t, r)
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "SELL", q.Get("side"))
		assert.Empty(t, q.Get("price"))
		assert.Empty(t, q.Get("timeInForce"))

		writeJSON(w, http.StatusOK, `{"orderId":7,"clientOrderId":"m"}`)
	})

	handle, err := f.SubmitOrder(t.Context(), adapter.OrderSpec{Symbol: "BTCUSDT", Side: enum.OrderSideSell, Volume: 1, ClientOrderID: "m"})
	require.NoError(t, err)
	assert.Equal(t, "7", handle.OrderID)
}

func TestErrorMapping(t *testing.T) {
	testCases := []struct {
		desc   string
		status int
		body   string
		want   error
	}{
		{"unknown order", http.StatusBadRequest, `{"code":-2011,"msg":"Unknown order sent."}`, exception.ErrNotFound},
		{"no such order", http.StatusBadRequest, `{"code":-2013,"msg":"Order does not exist."}`, exception.ErrNotFound},
		{"post only", http.StatusBadRequest, `{"code":-5022,"msg":"Due to the order could not be executed as maker"}`, exception.ErrRejected},
		{"unavailable", http.StatusServiceUnavailable, ``, exception.ErrTransport},
		{"rate limited", http.StatusTooManyRequests, ``, exception.ErrTransport},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})

			err := f.CancelOrder(t.Context(), adapter.OrderKey{OrderID: "1"}, "BTCUSDT")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCancelOrderByClientID(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		q := verifySignature(t, r)
		assert.Equal(t, "abc", q.Get("origClientOrderId"))
		assert.Empty(t, q.Get("orderId"))
		writeJSON(w, http.StatusOK, `{"orderId":1,"status":"CANCELED"}`)
	})

	require.NoError(t, f.CancelOrder(t.Context(), adapter.OrderKey{ClientOrderID: "abc"}, "BTCUSDT"))
	require.ErrorIs(t, f.CancelOrder(t.Context(), adapter.OrderKey{}, "BTCUSDT"), exception.ErrInvalidArgument)
}

func TestSubmitBatch(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/batchOrders", r.URL.Path)
		q := verifySignature(t, r)
		assert.Contains(t, q.Get("batchOrders"), `"newClientOrderId":"a"`)
		assert.Contains(t, q.Get("batchOrders"), `"timeInForce":"GTX"`)

		writeJSON(w, http.StatusOK, `[{"orderId":1,"clientOrderId":"a"},{"code":-2019,"msg":"Margin is insufficient."}]`)
	})

	results, err := f.SubmitBatch(t.Context(), []adapter.OrderSpec{
		{Symbol: "BTCUSDT", Side: enum.OrderSideBuy, Price: adapter.Some(1.0), Volume: 1, ClientOrderID: "a"},
		{Symbol: "BTCUSDT", Side: enum.OrderSideBuy, Price: adapter.Some(1.0), Volume: 1, ClientOrderID: "b"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].OrderID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "b", results[1].ClientOrderID)
	assert.ErrorIs(t, results[1].Err, exception.ErrRejected)

	_, err = f.SubmitBatch(t.Context(), make([]adapter.OrderSpec, BatchSubmitLimit+1))
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestCancelBatch(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/fapi/v1/batchOrders", r.URL.Path)
		q := verifySignature(t, r)
		assert.Equal(t, "ETHUSDT", q.Get("symbol"))
		assert.Equal(t, "[1,2]", q.Get("orderIdList"))

		writeJSON(w, http.StatusOK, `[{"orderId":1,"status":"CANCELED"},{"code":-2011,"msg":"Unknown order sent."}]`)
	})

	results, err := f.CancelBatch(t.Context(), "ETHUSDT", []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].OrderID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "2", results[1].OrderID)
	require.ErrorIs(t, results[1].Err, exception.ErrNotFound)
	assert.Contains(t, results[1].Err.Error(), "order_id=2")

	_, err = f.CancelBatch(t.Context(), "ETHUSDT", []string{"x"})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestCancelBatchShortResponse(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"orderId":1,"status":"CANCELED"}]`)
	})

	_, err := f.CancelBatch(t.Context(), "ETHUSDT", []string{"1", "2"})
	require.ErrorIs(t, err, exception.ErrInResponseError)
}

func TestPrecisionCache(t *testing.T) {
	var hits atomic.Int32
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/exchangeInfo", r.URL.Path)
		hits.Add(1)
		writeJSON(w, http.StatusOK, `{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","pricePrecision":2,"quantityPrecision":3},
			{"symbol":"ETHUSDT","status":"TRADING","pricePrecision":2,"quantityPrecision":3},
			{"symbol":"OLDUSDT","status":"SETTLING","pricePrecision":4,"quantityPrecision":0}
		]}`)
	})

	symbols, err := f.TradableSymbols(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)

	p, err := f.PricePrecision(t.Context(), "OLDUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(4), p)

	v, err := f.VolumePrecision(t.Context(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)

	_, err = f.PricePrecision(t.Context(), "NOPE")
	require.ErrorIs(t, err, exception.ErrInvalidArgument)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, adapter.BatchLimits{Submit: 5, Cancel: 10}, f.BatchLimits())
	assert.Equal(t, enum.PlatformBinanceFutures, f.Platform())
}
