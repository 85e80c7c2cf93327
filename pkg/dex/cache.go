package dex

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long market data is served from memory.
const DefaultCacheTTL = 60 * time.Second

type cached[T any] struct {
	value T
	at    time.Time
}

// MarketCache memoizes market data per token and candles per token and
// timeframe.
type MarketCache struct {
	client MarketClient
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	data    map[string]cached[*MarketData]
	candles map[string]cached[[]Candle]
}

// NewMarketCache wraps client. A non-positive ttl uses DefaultCacheTTL.
func NewMarketCache(client MarketClient, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MarketCache{
		client:  client,
		ttl:     ttl,
		now:     time.Now,
		data:    make(map[string]cached[*MarketData]),
		candles: make(map[string]cached[[]Candle]),
	}
}

// MarketData returns the ticker, trades, candles and sentiment for token.
func (c *MarketCache) MarketData(ctx context.Context, token string) (*MarketData, error) {
	key := strings.ToUpper(strings.TrimPrefix(token, "$"))
	if key == "" {
		return nil, eris.New("dex: token is required")
	}

	c.mu.Lock()
	if e, ok := c.data[key]; ok && c.now().Sub(e.at) < c.ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	md, err := FetchMarketData(ctx, c.client, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.data[key] = cached[*MarketData]{value: md, at: c.now()}
	c.mu.Unlock()
	return md, nil
}

// Candles returns bars for token at timeframe, oldest first.
func (c *MarketCache) Candles(ctx context.Context, token, timeframe string) ([]Candle, error) {
	symbol := strings.ToUpper(strings.TrimPrefix(token, "$"))
	if symbol == "" {
		return nil, eris.New("dex: token is required")
	}
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	key := symbol + "|" + timeframe

	c.mu.Lock()
	if e, ok := c.candles[key]; ok && c.now().Sub(e.at) < c.ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	candles, err := c.client.Candles(ctx, symbol, timeframe, DefaultCandleLimit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, eris.Errorf("dex: no candle data for %s", symbol)
	}

	c.mu.Lock()
	c.candles[key] = cached[[]Candle]{value: candles, at: c.now()}
	c.mu.Unlock()
	zap.L().Debug("dex: candles cached", zap.String("token", symbol), zap.String("timeframe", timeframe), zap.Int("count", len(candles)))
	return candles, nil
}
