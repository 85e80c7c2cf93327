package dex

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	tickerPath  = "/api/v5/market/ticker"
	tradesPath  = "/api/v5/market/trades"
	candlesPath = "/api/v5/market/candles"

	// DefaultTimeframe is the candle bar used when none is given.
	DefaultTimeframe = "1H"
	// DefaultCandleLimit is the number of candles fetched per request.
	DefaultCandleLimit = 100
	// DefaultTradeLimit is the number of recent trades fetched.
	DefaultTradeLimit = 20
)

// MarketClient reads public market data for a token quoted in USDT.
type MarketClient interface {
	Ticker(ctx context.Context, token string) (*Ticker, error)
	// Trades returns the most recent trades, newest first.
	Trades(ctx context.Context, token string, limit int) ([]Trade, error)
	// Candles returns bars oldest first.
	Candles(ctx context.Context, token, bar string, limit int) ([]Candle, error)
}

// Ticker is a 24h market summary.
type Ticker struct {
	InstID    string          `json:"inst_id"`
	Last      decimal.Decimal `json:"last"`
	Open24h   decimal.Decimal `json:"open_24h"`
	High24h   decimal.Decimal `json:"high_24h"`
	Low24h    decimal.Decimal `json:"low_24h"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	Timestamp time.Time       `json:"timestamp"`
}

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade is one filled trade.
type Trade struct {
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Side      string          `json:"side"`
	Timestamp time.Time       `json:"timestamp"`
}

// Candle is one OHLC bar.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Sentiment is the market mood read from recent trades and the 24h move.
type Sentiment string

const (
	VeryBullish Sentiment = "VERY_BULLISH"
	Bullish     Sentiment = "BULLISH"
	Neutral     Sentiment = "NEUTRAL"
	Bearish     Sentiment = "BEARISH"
	VeryBearish Sentiment = "VERY_BEARISH"
)

// MarketData is everything known about a token's market at one time.
type MarketData struct {
	Symbol                string          `json:"symbol"`
	Price                 decimal.Decimal `json:"price"`
	PriceChangePercent24h decimal.Decimal `json:"price_change_percent_24h"`
	High24h               decimal.Decimal `json:"high_24h"`
	Low24h                decimal.Decimal `json:"low_24h"`
	Volume24h             decimal.Decimal `json:"volume_24h"`
	LastUpdated           time.Time       `json:"last_updated"`
	Candles               []Candle        `json:"candles"`
	RecentTrades          []Trade         `json:"recent_trades"`
	Sentiment             Sentiment       `json:"sentiment"`
	SentimentReason       string          `json:"sentiment_reason"`
}

// NewMarketClient returns an unsigned client for the public market
// endpoints. It accepts the same options as NewClient.
func NewMarketClient(opts ...Option) MarketClient {
	c := newHTTPClient(Credentials{}, opts...)
	c.public = true
	return &marketClient{http: c}
}

type marketClient struct {
	http *httpClient
}

// InstrumentID maps a token symbol to its USDT spot pair. Symbols that
// already name a pair are kept.
func InstrumentID(token string) string {
	token = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(token, "$")))
	if strings.Contains(token, "-") {
		return token
	}
	return token + "-USDT"
}

type wireTicker struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	Open24h string `json:"open24h"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Vol24h  string `json:"vol24h"`
	Ts      string `json:"ts"`
}

type wireTrade struct {
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Side string `json:"side"`
	Ts   string `json:"ts"`
}

func (m *marketClient) Ticker(ctx context.Context, token string) (*Ticker, error) {
	if token == "" {
		return nil, eris.New("dex: token is required")
	}
	q := url.Values{}
	q.Set("instId", InstrumentID(token))

	data, err := m.http.get(ctx, "ticker", tickerPath, q)
	if err != nil {
		return nil, err
	}
	var rows []wireTicker
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "dex: decode ticker data")
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("dex: no ticker for %s", InstrumentID(token))
	}

	w := rows[0]
	t := &Ticker{InstID: w.InstID}
	var p numParser
	t.Last = p.dec("last", w.Last)
	t.Open24h = p.dec("open24h", w.Open24h)
	t.High24h = p.dec("high24h", w.High24h)
	t.Low24h = p.dec("low24h", w.Low24h)
	t.Volume24h = p.dec("vol24h", w.Vol24h)
	t.Timestamp = p.millis("ts", w.Ts)
	if p.err != nil {
		return nil, eris.Wrap(p.err, "dex: parse ticker")
	}
	return t, nil
}

func (m *marketClient) Trades(ctx context.Context, token string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	q := url.Values{}
	q.Set("instId", InstrumentID(token))
	q.Set("limit", strconv.Itoa(limit))

	data, err := m.http.get(ctx, "trades", tradesPath, q)
	if err != nil {
		return nil, err
	}
	var rows []wireTrade
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "dex: decode trades data")
	}

	out := make([]Trade, 0, len(rows))
	for _, w := range rows {
		var p numParser
		tr := Trade{
			Price:     p.dec("px", w.Px),
			Size:      p.dec("sz", w.Sz),
			Side:      SideSell,
			Timestamp: p.millis("ts", w.Ts),
		}
		if p.err != nil {
			return nil, eris.Wrap(p.err, "dex: parse trade")
		}
		if w.Side == SideBuy {
			tr.Side = SideBuy
		}
		out = append(out, tr)
	}
	return out, nil
}

func (m *marketClient) Candles(ctx context.Context, token, bar string, limit int) ([]Candle, error) {
	if bar == "" {
		bar = DefaultTimeframe
	}
	if limit <= 0 {
		limit = DefaultCandleLimit
	}
	q := url.Values{}
	q.Set("instId", InstrumentID(token))
	q.Set("bar", bar)
	q.Set("limit", strconv.Itoa(limit))

	data, err := m.http.get(ctx, "candles", candlesPath, q)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "dex: decode candle data")
	}

	// Bars arrive newest first.
	out := make([]Candle, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, eris.Errorf("dex: candle has %d fields", len(row))
		}
		var p numParser
		c := Candle{
			Time:   p.millis("ts", row[0]),
			Open:   p.dec("o", row[1]),
			High:   p.dec("h", row[2]),
			Low:    p.dec("l", row[3]),
			Close:  p.dec("c", row[4]),
			Volume: p.dec("vol", row[5]),
		}
		if p.err != nil {
			return nil, eris.Wrap(p.err, "dex: parse candle")
		}
		out[len(rows)-1-i] = c
	}
	return out, nil
}

// FetchMarketData loads the ticker, candles and recent trades for token in
// parallel. Only the ticker is required; missing candles or trades are
// logged and left empty.
func FetchMarketData(ctx context.Context, mc MarketClient, token string) (*MarketData, error) {
	symbol := strings.ToUpper(strings.TrimPrefix(token, "$"))
	log := zap.L().With(zap.String("token", symbol))

	var (
		ticker  *Ticker
		candles []Candle
		trades  []Trade
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ticker, err = mc.Ticker(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		if candles, err = mc.Candles(gctx, symbol, DefaultTimeframe, DefaultCandleLimit); err != nil {
			log.Warn("dex: candles unavailable", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if trades, err = mc.Trades(gctx, symbol, DefaultTradeLimit); err != nil {
			log.Warn("dex: trades unavailable", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "dex: market data for %s", symbol)
	}

	md := &MarketData{
		Symbol:       symbol,
		Price:        ticker.Last,
		High24h:      ticker.High24h,
		Low24h:       ticker.Low24h,
		Volume24h:    ticker.Volume24h,
		LastUpdated:  ticker.Timestamp,
		Candles:      candles,
		RecentTrades: trades,
	}
	if !ticker.Open24h.IsZero() {
		md.PriceChangePercent24h = ticker.Last.Sub(ticker.Open24h).Div(ticker.Open24h).Mul(decimal.NewFromInt(100))
	}
	md.Sentiment, md.SentimentReason = CalculateSentiment(trades, md.PriceChangePercent24h)
	return md, nil
}

var (
	ten        = decimal.NewFromInt(10)
	five       = decimal.NewFromInt(5)
	minusTen   = decimal.NewFromInt(-10)
	minusFive  = decimal.NewFromInt(-5)
	ratioHigh  = decimal.RequireFromString("1.5")
	ratioUp    = decimal.RequireFromString("1.2")
	ratioLow   = decimal.RequireFromString("0.5")
	ratioDown  = decimal.RequireFromString("0.8")
	decimalOne = decimal.NewFromInt(1)
)

// CalculateSentiment grades trades against the 24h price change in percent.
// Buy/sell ratios divide by one when there are no sells.
func CalculateSentiment(trades []Trade, priceChange decimal.Decimal) (Sentiment, string) {
	var buys, sells int64
	buyVol, sellVol := decimal.Zero, decimal.Zero
	for _, t := range trades {
		if t.Side == SideBuy {
			buys++
			buyVol = buyVol.Add(t.Size)
		} else {
			sells++
			sellVol = sellVol.Add(t.Size)
		}
	}

	sellCount := decimal.NewFromInt(sells)
	if sells == 0 {
		sellCount = decimalOne
	}
	if sellVol.IsZero() {
		sellVol = decimalOne
	}
	tradeRatio := decimal.NewFromInt(buys).Div(sellCount)
	volumeRatio := buyVol.Div(sellVol)

	switch {
	case priceChange.GreaterThan(ten) && tradeRatio.GreaterThan(ratioHigh) && volumeRatio.GreaterThan(ratioHigh):
		return VeryBullish, "Strong price increase with high buy volume"
	case priceChange.GreaterThan(five) && tradeRatio.GreaterThan(ratioUp):
		return Bullish, "Price increase with more buyers than sellers"
	case priceChange.LessThan(minusTen) && tradeRatio.LessThan(ratioLow) && volumeRatio.LessThan(ratioLow):
		return VeryBearish, "Sharp price decrease with high sell volume"
	case priceChange.LessThan(minusFive) && tradeRatio.LessThan(ratioDown):
		return Bearish, "Price decrease with more sellers than buyers"
	default:
		return Neutral, "Balanced buying and selling activity"
	}
}

// numParser keeps the first parse error so a row can be decoded field by
// field.
type numParser struct {
	err error
}

func (p *numParser) dec(field, s string) decimal.Decimal {
	if p.err != nil {
		return decimal.Zero
	}
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.err = eris.Wrapf(err, "field %s", field)
	}
	return d
}

func (p *numParser) millis(field, s string) time.Time {
	if p.err != nil || s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.err = eris.Wrapf(err, "field %s", field)
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
