package binance

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"
)

const _symbolStatusTrading = "TRADING"

type symbolInfo struct {
	Symbol            string `json:"symbol"`
	Status            string `json:"status"`
	PricePrecision    int32  `json:"pricePrecision"`
	QuantityPrecision int32  `json:"quantityPrecision"`
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

// precisionCache keeps /fapi/v1/exchangeInfo for ttl.
type precisionCache struct {
	rest *restClient
	ttl  time.Duration

	mu        sync.Mutex
	fetchedAt time.Time
	symbols   map[string]symbolInfo
}

func newPrecisionCache(rest *restClient, ttl time.Duration) *precisionCache {
	return &precisionCache{rest: rest, ttl: ttl}
}

func (c *precisionCache) load(ctx context.Context) (map[string]symbolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.symbols != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.symbols, nil
	}

	var info exchangeInfo
	if err := c.rest.keyed(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, &info); err != nil {
		if c.symbols != nil {
			// serve the stale table while the endpoint is down
			return c.symbols, nil
		}
		return nil, errors.Wrap(err, "load exchange info")
	}

	symbols := make(map[string]symbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		symbols[s.Symbol] = s
	}
	c.symbols = symbols
	c.fetchedAt = time.Now()
	return symbols, nil
}

func (c *precisionCache) Symbol(ctx context.Context, symbol string) (symbolInfo, error) {
	symbols, err := c.load(ctx)
	if err != nil {
		return symbolInfo{}, err
	}

	info, ok := symbols[symbol]
	if !ok {
		return symbolInfo{}, errors.Wrapf(exception.ErrInvalidArgument, "%s: %s", exception.ErrUnknownSymbol, symbol)
	}
	return info, nil
}

func (c *precisionCache) TradableSymbols(ctx context.Context) ([]string, error) {
	symbols, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(symbols))
	for name, info := range symbols {
		if info.Status == _symbolStatusTrading {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result, nil
}
