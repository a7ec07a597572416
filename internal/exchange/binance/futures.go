package binance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/order"
	"cryptofutures/pkg/backoff"
	"cryptofutures/pkg/exception"
)

const (
	_binanceFuturesRestUrl   = "https://fapi.binance.com"
	_binanceFuturesStreamUrl = "wss://fstream.binance.com/ws"

	// BatchSubmitLimit and BatchCancelLimit are the native batch sizes of
	// /fapi/v1/batchOrders.
	BatchSubmitLimit = 5
	BatchCancelLimit = 10
)

// Config holds the Binance USDⓈ-M futures connection settings.
type Config struct {
	RestURL         string          `yaml:"rest_url"`
	StreamURL       string          `yaml:"stream_url"`
	APIKey          string          `yaml:"api_key"`
	APISecret       string          `yaml:"api_secret"`
	RecvWindow      time.Duration   `yaml:"recv_window"`
	RequestTimeout  time.Duration   `yaml:"request_timeout"`
	ExchangeInfoTTL time.Duration   `yaml:"exchange_info_ttl"`
	KeepAlive       time.Duration   `yaml:"keep_alive"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	Backoff         backoff.Backoff `yaml:"backoff"`
}

func DefaultConfig() Config {
	return Config{
		RestURL:         _binanceFuturesRestUrl,
		StreamURL:       _binanceFuturesStreamUrl,
		RecvWindow:      5 * time.Second,
		RequestTimeout:  10 * time.Second,
		ExchangeInfoTTL: time.Hour,
		KeepAlive:       30 * time.Minute,
		ReadTimeout:     10 * time.Minute,
		Backoff:         backoff.Default(),
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if len(cfg.RestURL) == 0 {
		cfg.RestURL = def.RestURL
	}
	if len(cfg.StreamURL) == 0 {
		cfg.StreamURL = def.StreamURL
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = def.RecvWindow
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ExchangeInfoTTL <= 0 {
		cfg.ExchangeInfoTTL = def.ExchangeInfoTTL
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = def.KeepAlive
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.Backoff == (backoff.Backoff{}) {
		cfg.Backoff = def.Backoff
	}
	return cfg
}

// Futures is the Binance USDⓈ-M futures venue.
type Futures struct {
	cfg       Config
	rest      *restClient
	precision *precisionCache

	streaming atomic.Bool

	marketMu sync.Mutex
	market   *marketStream
	ctx      context.Context
}

var _ order.Exchange = (*Futures)(nil)

// New creates the venue. ctx bounds the lifetime of the market data
// websocket, which is opened on first subscription.
func New(ctx context.Context, cfg Config) (*Futures, error) {
	cfg = cfg.withDefaults()
	if len(cfg.APIKey) == 0 || len(cfg.APISecret) == 0 {
		return nil, exception.ErrInvalidConfig
	}

	rest := newRestClient(cfg)
	return &Futures{
		cfg:       cfg,
		rest:      rest,
		precision: newPrecisionCache(rest, cfg.ExchangeInfoTTL),
		ctx:       ctx,
	}, nil
}

func (f *Futures) Platform() enum.Platform {
	return enum.PlatformBinanceFutures
}

func (f *Futures) BatchLimits() adapter.BatchLimits {
	return adapter.BatchLimits{Submit: BatchSubmitLimit, Cancel: BatchCancelLimit}
}

func (f *Futures) TradableSymbols(ctx context.Context) ([]string, error) {
	return f.precision.TradableSymbols(ctx)
}

func (f *Futures) PricePrecision(ctx context.Context, symbol string) (int32, error) {
	info, err := f.precision.Symbol(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return info.PricePrecision, nil
}

func (f *Futures) VolumePrecision(ctx context.Context, symbol string) (int32, error) {
	info, err := f.precision.Symbol(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return info.QuantityPrecision, nil
}

// Close releases the market data websocket.
func (f *Futures) Close() {
	f.marketMu.Lock()
	defer f.marketMu.Unlock()

	if f.market != nil {
		f.market.Close()
		f.market = nil
	}
}
