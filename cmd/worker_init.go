package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/analysis"
	"github.com/sells-group/postsignal/internal/background"
	"github.com/sells-group/postsignal/internal/bus"
	"github.com/sells-group/postsignal/internal/ledger"
	"github.com/sells-group/postsignal/internal/resilience"
	"github.com/sells-group/postsignal/internal/store"
	"github.com/sells-group/postsignal/internal/wallet"
	anthropicpkg "github.com/sells-group/postsignal/pkg/anthropic"
	"github.com/sells-group/postsignal/pkg/dex"
)

// workerEnv holds the store, ledger and message router behind a worker.
type workerEnv struct {
	Store  store.KV
	Ledger *ledger.Ledger
	Router *bus.Router
}

// Close releases resources held by the worker environment.
func (we *workerEnv) Close() {
	if we.Store != nil {
		_ = we.Store.Close()
	}
}

// initStore opens and migrates the configured key/value backend.
func initStore(ctx context.Context) (store.KV, error) {
	kv, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return kv, nil
}

// initDex builds the aggregator client from config.
func initDex() dex.Client {
	return dex.NewClient(cfg.Dex.Credentials(),
		dex.WithBaseURL(cfg.Dex.BaseURL),
		dex.WithRateLimit(cfg.Dex.RateLimit, cfg.Dex.Burst),
		dex.WithRetry(cfg.Resilience.Retry.RetryConfig()),
	)
}

// initMarket builds the cached public market data client from config.
func initMarket() *dex.MarketCache {
	opts := []dex.Option{dex.WithRetry(cfg.Resilience.Retry.RetryConfig())}
	if cfg.Market.BaseURL != "" {
		opts = append(opts, dex.WithBaseURL(cfg.Market.BaseURL))
	}
	if cfg.Market.RateLimit > 0 {
		opts = append(opts, dex.WithRateLimit(cfg.Market.RateLimit, cfg.Market.Burst))
	}
	return dex.NewMarketCache(dex.NewMarketClient(opts...), cfg.Market.CacheTTL)
}

// initWorker wires the analyzer, ledger and optional trading collaborators
// into a router. Callers should defer env.Close().
func initWorker(ctx context.Context) (*workerEnv, error) {
	kv, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	l := ledger.New(kv, ledger.WithCapacity(cfg.Ledger.Capacity))
	bc := cfg.Resilience.Circuit.CircuitBreakerConfig()
	bc.OnStateChange = analysis.BreakerGauge("anthropic")
	analyzer := analysis.NewClaudeAnalyzer(
		anthropicpkg.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.Analysis(),
		resilience.NewCircuitBreaker(bc),
	)

	opts := []background.Option{
		background.WithMarket(initMarket()),
		background.WithSettings(ledger.NewSettings(kv)),
	}
	if cfg.Dex.Enabled() {
		opts = append(opts, background.WithDex(initDex()))
	} else {
		zap.L().Debug("dex credentials not set, quotes and trades disabled")
	}
	if cfg.Wallet.BridgeURL != "" {
		opts = append(opts, background.WithSigner(wallet.NewBridgeSigner(cfg.Wallet.BridgeURL, cfg.Wallet.Timeout)))
	}

	w := background.New(analyzer, l, opts...)
	return &workerEnv{Store: kv, Ledger: l, Router: w.Router()}, nil
}

// openChannel connects to the worker at busURL, falling back to the
// configured bus URL and then to an in-process worker. The returned func
// releases whatever was opened.
func openChannel(ctx context.Context, busURL string) (bus.Channel, func(), error) {
	if busURL == "" {
		busURL = cfg.Bus.URL
	}
	if busURL != "" {
		zap.L().Debug("using remote worker", zap.String("url", busURL))
		return bus.NewHTTPChannel(busURL, cfg.Coordinator.RequestTimeout), func() {}, nil
	}

	env, err := initWorker(ctx)
	if err != nil {
		return nil, nil, err
	}
	return bus.NewLocalChannel(env.Router), env.Close, nil
}

// openScanChannel is openChannel plus the dead letter queue for abandoned
// requests. The queue lives in the local store even when the worker is
// remote.
func openScanChannel(ctx context.Context, busURL string) (bus.Channel, *ledger.DeadLetters, func(), error) {
	if busURL == "" {
		busURL = cfg.Bus.URL
	}
	if busURL != "" {
		kv, err := initStore(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		zap.L().Debug("using remote worker", zap.String("url", busURL))
		release := func() { _ = kv.Close() }
		return bus.NewHTTPChannel(busURL, cfg.Coordinator.RequestTimeout), ledger.NewDeadLetters(kv), release, nil
	}

	env, err := initWorker(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return bus.NewLocalChannel(env.Router), ledger.NewDeadLetters(env.Store), env.Close, nil
}
