// Package analysis turns detected post content into a trading signal using
// an LLM.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/metrics"
	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/internal/resilience"
	"github.com/sells-group/postsignal/pkg/anthropic"
)

// Analyzer produces a signal for detected content.
type Analyzer interface {
	Analyze(ctx context.Context, content model.DetectedContent) (model.TradingSignal, error)
}

// Config tunes the model call.
type Config struct {
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	CacheTTL    string  `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ClaudeAnalyzer implements Analyzer with the Anthropic Messages API.
type ClaudeAnalyzer struct {
	client  anthropic.Client
	breaker *resilience.CircuitBreaker
	cfg     Config
}

// NewClaudeAnalyzer wires client behind breaker. A nil breaker gets the
// default configuration.
func NewClaudeAnalyzer(client anthropic.Client, cfg Config, breaker *resilience.CircuitBreaker) *ClaudeAnalyzer {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.CacheTTL == "" {
		cfg.CacheTTL = "5m"
	}
	if breaker == nil {
		bc := resilience.DefaultCircuitBreakerConfig()
		bc.OnStateChange = BreakerGauge("anthropic")
		breaker = resilience.NewCircuitBreaker(bc)
	}
	return &ClaudeAnalyzer{client: client, breaker: breaker, cfg: cfg}
}

// BreakerGauge returns an OnStateChange callback that mirrors the state into
// the circuit_state gauge.
func BreakerGauge(dependency string) func(from, to resilience.CircuitState) {
	return func(from, to resilience.CircuitState) {
		metrics.CircuitState.WithLabelValues(dependency).Set(float64(to))
		zap.L().Warn("circuit state change",
			zap.String("dependency", dependency),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
}

// Analyze asks the model for a signal and parses the reply.
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, content model.DetectedContent) (model.TradingSignal, error) {
	temp := a.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      anthropic.CachedSystem(SystemPrompt, a.cfg.CacheTTL),
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(content)}},
		Temperature: &temp,
	}

	start := time.Now()
	resp, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, req)
	})
	metrics.AnalyzeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return model.TradingSignal{}, eris.Wrap(err, "analysis: model call")
	}
	resp.Usage.LogCost(a.cfg.Model, "analyze")

	signal, tier, err := ParseSignal(resp.Text(), content)
	metrics.ParseTier.WithLabelValues(tier.String()).Inc()
	if err != nil {
		zap.L().Warn("analysis: could not parse reply", zap.String("reply", resp.Text()))
		return model.TradingSignal{}, err
	}
	zap.L().Debug("analysis: parsed reply",
		zap.Stringer("tier", tier),
		zap.String("action", string(signal.Action)),
		zap.Int("confidence", signal.Confidence),
	)
	return signal, nil
}
