// Package background is the worker side of the message bus. It runs
// analysis, keeps the signal ledger and fronts the DEX and wallet
// collaborators.
package background

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/analysis"
	"github.com/sells-group/postsignal/internal/bus"
	"github.com/sells-group/postsignal/internal/ledger"
	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/internal/wallet"
	"github.com/sells-group/postsignal/pkg/dex"
)

// Worker handles every bus message type.
type Worker struct {
	analyzer analysis.Analyzer
	ledger   *ledger.Ledger
	dex      dex.Client
	market   *dex.MarketCache
	settings *ledger.Settings
	signer   wallet.Signer
	now      func() time.Time
}

// Option configures a Worker.
type Option func(*Worker)

// WithDex enables GET_QUOTE and EXECUTE_TRADE.
func WithDex(c dex.Client) Option {
	return func(w *Worker) { w.dex = c }
}

// WithMarket enables GET_TOKEN_MARKET_DATA and GET_CANDLESTICK_DATA.
func WithMarket(c *dex.MarketCache) Option {
	return func(w *Worker) { w.market = c }
}

// WithSettings enables the settings messages and reports Enabled on PING.
func WithSettings(s *ledger.Settings) Option {
	return func(w *Worker) { w.settings = s }
}

// WithSigner sets the wallet used by EXECUTE_TRADE.
func WithSigner(s wallet.Signer) Option {
	return func(w *Worker) { w.signer = s }
}

// WithClock overrides the PING clock.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// New returns a Worker.
func New(analyzer analysis.Analyzer, l *ledger.Ledger, opts ...Option) *Worker {
	w := &Worker{analyzer: analyzer, ledger: l, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register installs the worker's handlers on r.
func (w *Worker) Register(r *bus.Router) {
	r.Handle(bus.AnalyzeContent, bus.Bind(w.analyze))
	r.Handle(bus.GetRecentSignals, bus.Bind(w.recentSignals))
	r.Handle(bus.GetStats, bus.Bind(w.stats))
	r.Handle(bus.ClearData, bus.Bind(w.clear))
	r.Handle(bus.GetQuote, bus.Bind(w.quote))
	r.Handle(bus.ExecuteTrade, bus.Bind(w.trade))
	r.Handle(bus.Ping, bus.Bind(w.ping))
	r.Handle(bus.GetTokenMarketData, bus.Bind(w.marketData))
	r.Handle(bus.GetCandlestickData, bus.Bind(w.candles))
	r.Handle(bus.GetSettings, bus.Bind(w.getSettings))
	r.Handle(bus.UpdateSettings, bus.Bind(w.updateSettings))
	r.Handle(bus.ToggleExtension, bus.Bind(w.toggle))
}

// Router returns a new Router with the worker registered.
func (w *Worker) Router() *bus.Router {
	r := bus.NewRouter()
	w.Register(r)
	return r
}

type none struct{}

// analyze never fails: model errors become a failure signal, and ledger
// errors are logged.
func (w *Worker) analyze(ctx context.Context, req bus.AnalyzeRequest) (any, error) {
	log := zap.L().With(zap.String("post_id", req.PostID))

	signal, err := w.analyzer.Analyze(ctx, req.Content)
	if err != nil {
		log.Warn("background: analysis failed", zap.Error(err))
		signal = model.FailureSignal(req.Content, eris.Cause(err).Error())
	}

	content := req.Content
	if _, err := w.ledger.Record(ctx, signal, &content); err != nil {
		log.Error("background: record signal", zap.Error(err))
	}
	if _, err := w.ledger.UpdateStats(ctx, signal); err != nil {
		log.Error("background: update stats", zap.Error(err))
	}

	log.Info("background: signal ready",
		zap.String("action", string(signal.Action)),
		zap.Int("confidence", signal.Confidence),
		zap.String("token", signal.Token),
	)
	return bus.AnalyzeResult{Signal: signal}, nil
}

func (w *Worker) recentSignals(ctx context.Context, _ none) (any, error) {
	entries, err := w.ledger.Recent(ctx)
	if err != nil {
		return nil, err
	}
	return bus.SignalsResult{Signals: entries}, nil
}

func (w *Worker) stats(ctx context.Context, _ none) (any, error) {
	s, err := w.ledger.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return bus.StatsResult{Stats: s}, nil
}

func (w *Worker) clear(ctx context.Context, _ none) (any, error) {
	if err := w.ledger.Clear(ctx); err != nil {
		return nil, err
	}
	zap.L().Info("background: ledger cleared")
	return nil, nil
}

func (w *Worker) quote(ctx context.Context, req dex.QuoteRequest) (any, error) {
	if w.dex == nil {
		return nil, eris.New("background: dex client not configured")
	}
	q, err := w.dex.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	return bus.QuoteResult{Quote: *q}, nil
}

func (w *Worker) trade(ctx context.Context, req dex.SwapRequest) (any, error) {
	if w.dex == nil {
		return nil, eris.New("background: dex client not configured")
	}
	if w.signer == nil {
		return nil, eris.New("background: wallet signer not configured")
	}

	swap, err := w.dex.Swap(ctx, req)
	if err != nil {
		return nil, err
	}
	signed, err := w.signer.Sign(ctx, wallet.SignRequest{
		Payload: map[string]any{"transaction": swap.Tx},
		Wallet:  req.UserWalletAddress,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("background: trade signed",
		zap.String("from", swap.Quote.From.Symbol),
		zap.String("to", swap.Quote.To.Symbol),
		zap.String("amount", swap.Quote.From.Amount.String()),
	)
	return bus.TradeResult{Quote: swap.Quote, Signature: signed.Signature, Strategy: signed.Strategy}, nil
}

func (w *Worker) ping(ctx context.Context, _ none) (any, error) {
	res := bus.PingResult{Timestamp: w.now().UnixMilli()}
	if w.settings != nil {
		s, err := w.settings.Get(ctx)
		if err != nil {
			zap.L().Warn("background: read settings for ping", zap.Error(err))
			return res, nil
		}
		res.Enabled = &s.Enabled
	}
	return res, nil
}

func (w *Worker) marketData(ctx context.Context, req bus.MarketDataRequest) (any, error) {
	if w.market == nil {
		return nil, eris.New("background: market data not configured")
	}
	md, err := w.market.MarketData(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	return bus.MarketDataResult{MarketData: *md}, nil
}

func (w *Worker) candles(ctx context.Context, req bus.CandlesRequest) (any, error) {
	if w.market == nil {
		return nil, eris.New("background: market data not configured")
	}
	candles, err := w.market.Candles(ctx, req.Token, req.Timeframe)
	if err != nil {
		return nil, err
	}
	return bus.CandlesResult{Candles: candles}, nil
}

func (w *Worker) getSettings(ctx context.Context, _ none) (any, error) {
	if w.settings == nil {
		return nil, eris.New("background: settings not configured")
	}
	s, err := w.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return bus.SettingsResult{Settings: s}, nil
}

func (w *Worker) updateSettings(ctx context.Context, req bus.SettingsRequest) (any, error) {
	if w.settings == nil {
		return nil, eris.New("background: settings not configured")
	}
	s, err := w.settings.Update(ctx, req.Settings)
	if err != nil {
		return nil, err
	}
	zap.L().Info("background: settings updated", zap.Bool("enabled", s.Enabled))
	return bus.SettingsResult{Settings: s}, nil
}

func (w *Worker) toggle(ctx context.Context, req bus.ToggleRequest) (any, error) {
	if w.settings == nil {
		return nil, eris.New("background: settings not configured")
	}
	s, err := w.settings.SetEnabled(ctx, req.Enabled)
	if err != nil {
		return nil, err
	}
	zap.L().Info("background: scanning toggled", zap.Bool("enabled", s.Enabled))
	return bus.SettingsResult{Settings: s}, nil
}
