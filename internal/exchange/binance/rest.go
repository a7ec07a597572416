package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

const (
	_codeUnknownOrder     = -2011
	_codeNoSuchOrder      = -2013
	_codeListenKeyMissing = -1125
)

// apiError is the error body Binance returns on every failed call.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e apiError) err() error {
	switch e.Code {
	case 0:
		return nil
	case _codeUnknownOrder, _codeNoSuchOrder:
		return errors.Wrapf(exception.ErrNotFound, "binance %d: %s", e.Code, e.Msg)
	case _codeListenKeyMissing:
		return errors.Wrapf(exception.ErrListenKeyExpired, "binance %d: %s", e.Code, e.Msg)
	default:
		return errors.Wrapf(exception.ErrRejected, "binance %d: %s", e.Code, e.Msg)
	}
}

type restClient struct {
	http       *resty.Client
	secret     []byte
	recvWindow time.Duration
	now        func() time.Time
}

func newRestClient(cfg Config) *restClient {
	client := resty.New().
		SetBaseURL(cfg.RestURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("X-MBX-APIKEY", cfg.APIKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded")
	client.JSONMarshal = sonic.Marshal
	client.JSONUnmarshal = sonic.Unmarshal

	return &restClient{
		http:       client,
		secret:     []byte(cfg.APISecret),
		recvWindow: cfg.RecvWindow,
		now:        time.Now,
	}
}

// sign appends timestamp, recvWindow and the HMAC-SHA256 signature of the
// encoded query.
func (c *restClient) sign(params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))

	query := params.Encode()
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

// signed calls a SIGNED endpoint and decodes the body into result.
func (c *restClient) signed(ctx context.Context, method, path string, params url.Values, result any) error {
	return c.do(ctx, method, path, c.sign(params), result)
}

// keyed calls an endpoint that only needs the API key header.
func (c *restClient) keyed(ctx context.Context, method, path string, params url.Values, result any) error {
	return c.do(ctx, method, path, params.Encode(), result)
}

func (c *restClient) do(ctx context.Context, method, path, query string, result any) error {
	var apiErr apiError
	req := c.http.R().
		SetContext(ctx).
		SetError(&apiErr)
	if result != nil {
		req.SetResult(result)
	}

	// the raw query keeps the signature last; resty would re-sort query params
	target := path
	if len(query) != 0 {
		target += "?" + query
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "%s %s", method, path)
		}
		return errors.Wrapf(exception.ErrTransport, "%s %s, err: %v", method, path, err)
	}

	if resp.IsError() {
		if apiErr.Code != 0 {
			return errors.Wrapf(apiErr.err(), "%s %s", method, path)
		}
		if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
			return errors.Wrapf(exception.ErrTransport, "%s %s, status: %d, body: %s", method, path, resp.StatusCode(), resp.Body())
		}
		return errors.Wrapf(exception.ErrRejected, "%s %s, status: %d, body: %s", method, path, resp.StatusCode(), resp.Body())
	}

	return nil
}

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

func (c *restClient) createListenKey(ctx context.Context) (string, error) {
	var resp listenKeyResponse
	if err := c.keyed(ctx, http.MethodPost, "/fapi/v1/listenKey", url.Values{}, &resp); err != nil {
		return "", err
	}
	if len(resp.ListenKey) == 0 {
		return "", errors.Wrap(exception.ErrInResponseError, "empty listen key")
	}
	return resp.ListenKey, nil
}

func (c *restClient) keepAliveListenKey(ctx context.Context) error {
	return c.keyed(ctx, http.MethodPut, "/fapi/v1/listenKey", url.Values{}, nil)
}
