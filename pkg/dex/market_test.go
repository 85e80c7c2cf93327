package dex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postsignal/internal/resilience"
)

const (
	tickerBody  = `{"code":"0","msg":"","data":[{"instId":"SOL-USDT","last":"110","open24h":"100","high24h":"112.5","low24h":"98","vol24h":"123456.78","ts":"1714564800000"}]}`
	tradesBody  = `{"code":"0","msg":"","data":[{"px":"110","sz":"3","side":"buy","ts":"1714564800000"},{"px":"109.9","sz":"1","side":"sell","ts":"1714564799000"}]}`
	candlesBody = `{"code":"0","msg":"","data":[["1714568400000","110","111","109","110.5","900","0","0","1"],["1714564800000","100","110","99","110","1200","0","0","1"]]}`
)

func marketServer(t *testing.T, hits *atomic.Int32, tradesStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Empty(t, r.Header.Get(headerSign))
		assert.Equal(t, "SOL-USDT", r.URL.Query().Get("instId"))
		switch r.URL.Path {
		case tickerPath:
			fmt.Fprint(w, tickerBody)
		case tradesPath:
			if tradesStatus != http.StatusOK {
				w.WriteHeader(tradesStatus)
				return
			}
			fmt.Fprint(w, tradesBody)
		case candlesPath:
			fmt.Fprint(w, candlesBody)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testMarketClient(url string) MarketClient {
	return NewMarketClient(
		WithBaseURL(url),
		WithRetry(resilience.FlatRetry(1, time.Millisecond)),
		WithRateLimit(1000, 10),
	)
}

func TestInstrumentID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SOL-USDT", InstrumentID("sol"))
	assert.Equal(t, "BONK-USDT", InstrumentID("$bonk"))
	assert.Equal(t, "ETH-BTC", InstrumentID("eth-btc"))
}

func TestTicker(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := marketServer(t, &hits, http.StatusOK)

	tk, err := testMarketClient(srv.URL).Ticker(context.Background(), "sol")
	require.NoError(t, err)
	assert.Equal(t, "SOL-USDT", tk.InstID)
	assert.True(t, tk.Last.Equal(decimal.NewFromInt(110)))
	assert.True(t, tk.High24h.Equal(decimal.RequireFromString("112.5")))
	assert.Equal(t, time.UnixMilli(1714564800000).UTC(), tk.Timestamp)
}

func TestTicker_RequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewMarketClient().Ticker(context.Background(), "")
	require.Error(t, err)
}

func TestCandles_OldestFirst(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := marketServer(t, &hits, http.StatusOK)

	candles, err := testMarketClient(srv.URL).Candles(context.Background(), "SOL", "", 0)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Time.Before(candles[1].Time))
	assert.True(t, candles[0].Open.Equal(decimal.NewFromInt(100)))
	assert.True(t, candles[1].Close.Equal(decimal.RequireFromString("110.5")))
}

func TestTrades(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := marketServer(t, &hits, http.StatusOK)

	trades, err := testMarketClient(srv.URL).Trades(context.Background(), "SOL", 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, SideBuy, trades[0].Side)
	assert.Equal(t, SideSell, trades[1].Side)
	assert.True(t, trades[0].Size.Equal(decimal.NewFromInt(3)))
}

func TestFetchMarketData(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := marketServer(t, &hits, http.StatusOK)

	md, err := FetchMarketData(context.Background(), testMarketClient(srv.URL), "$sol")
	require.NoError(t, err)
	assert.Equal(t, "SOL", md.Symbol)
	assert.True(t, md.Price.Equal(decimal.NewFromInt(110)))
	assert.True(t, md.PriceChangePercent24h.Equal(decimal.NewFromInt(10)), md.PriceChangePercent24h.String())
	assert.Len(t, md.Candles, 2)
	assert.Len(t, md.RecentTrades, 2)
	// +10% with one buy against one sell is not enough for bullish.
	assert.Equal(t, Neutral, md.Sentiment)
}

func TestFetchMarketData_TradesOptional(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := marketServer(t, &hits, http.StatusBadRequest)

	md, err := FetchMarketData(context.Background(), testMarketClient(srv.URL), "SOL")
	require.NoError(t, err)
	assert.Empty(t, md.RecentTrades)
	assert.Len(t, md.Candles, 2)
}

func TestCalculateSentiment(t *testing.T) {
	t.Parallel()

	buy := func(size int64) Trade { return Trade{Side: SideBuy, Size: decimal.NewFromInt(size)} }
	sell := func(size int64) Trade { return Trade{Side: SideSell, Size: decimal.NewFromInt(size)} }

	tests := []struct {
		name   string
		trades []Trade
		change string
		want   Sentiment
	}{
		{"strong rally", []Trade{buy(5), buy(5), sell(1)}, "12", VeryBullish},
		{"rally on count only", []Trade{buy(1), buy(1), buy(1), sell(1), sell(1)}, "6", Bullish},
		{"crash", []Trade{buy(1), sell(5), sell(5), sell(5)}, "-15", VeryBearish},
		{"dip", []Trade{buy(1), buy(1), sell(1), sell(1), sell(1)}, "-7", Bearish},
		{"flat", []Trade{buy(1), sell(1)}, "0.5", Neutral},
		{"no trades", nil, "20", Neutral},
		{"buys without sells", []Trade{buy(2), buy(2)}, "11", VeryBullish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := CalculateSentiment(tt.trades, decimal.RequireFromString(tt.change))
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestMarketCache_ServesWithinTTL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := marketServer(t, &hits, http.StatusOK)

	now := fixedNow
	c := NewMarketCache(testMarketClient(srv.URL), 0)
	c.now = func() time.Time { return now }

	_, err := c.MarketData(context.Background(), "sol")
	require.NoError(t, err)
	first := hits.Load()
	assert.Equal(t, int32(3), first)

	_, err = c.MarketData(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, first, hits.Load())

	now = now.Add(DefaultCacheTTL)
	_, err = c.MarketData(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, first*2, hits.Load())
}

func TestMarketCache_CandlesPerTimeframe(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := marketServer(t, &hits, http.StatusOK)
	c := NewMarketCache(testMarketClient(srv.URL), time.Minute)

	_, err := c.Candles(context.Background(), "SOL", "1H")
	require.NoError(t, err)
	_, err = c.Candles(context.Background(), "SOL", "1H")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = c.Candles(context.Background(), "SOL", "4H")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestMarketCache_EmptyCandles(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code":"0","msg":"","data":[]}`)
	}))
	defer srv.Close()

	_, err := NewMarketCache(testMarketClient(srv.URL), 0).Candles(context.Background(), "SOL", "1D")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candle data")
}
