package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/postsignal/internal/analysis"
	"github.com/sells-group/postsignal/internal/coordinator"
	"github.com/sells-group/postsignal/internal/ledger"
	"github.com/sells-group/postsignal/internal/resilience"
	"github.com/sells-group/postsignal/internal/scanner"
	"github.com/sells-group/postsignal/internal/store"
	"github.com/sells-group/postsignal/pkg/dex"
)

// Config holds the full application configuration.
type Config struct {
	Store       store.Config       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Dex         DexConfig          `yaml:"dex" mapstructure:"dex"`
	Market      MarketConfig       `yaml:"market" mapstructure:"market"`
	Resilience  ResilienceConfig   `yaml:"resilience" mapstructure:"resilience"`
	Wallet      WalletConfig       `yaml:"wallet" mapstructure:"wallet"`
	Scan        scanner.Config     `yaml:"scan" mapstructure:"scan"`
	Coordinator coordinator.Config `yaml:"coordinator" mapstructure:"coordinator"`
	Ledger      LedgerConfig       `yaml:"ledger" mapstructure:"ledger"`
	Bus         BusConfig          `yaml:"bus" mapstructure:"bus"`
	Server      ServerConfig       `yaml:"server" mapstructure:"server"`
	Log         LogConfig          `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds the API key and model tuning for signal analysis.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	CacheTTL    string  `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// Analysis returns the analyzer settings.
func (a AnthropicConfig) Analysis() analysis.Config {
	return analysis.Config{
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
		CacheTTL:    a.CacheTTL,
	}
}

// DexConfig configures the aggregator client.
type DexConfig struct {
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string  `yaml:"api_key" mapstructure:"api_key"`
	SecretKey  string  `yaml:"secret_key" mapstructure:"secret_key"`
	Passphrase string  `yaml:"passphrase" mapstructure:"passphrase"`
	ProjectID  string  `yaml:"project_id" mapstructure:"project_id"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
	Slippage   string  `yaml:"slippage" mapstructure:"slippage"`
}

// Credentials returns the request signing credentials.
func (d DexConfig) Credentials() dex.Credentials {
	return dex.Credentials{
		APIKey:     d.APIKey,
		SecretKey:  d.SecretKey,
		Passphrase: d.Passphrase,
		ProjectID:  d.ProjectID,
	}
}

// Enabled reports whether enough credentials are set to call the API.
func (d DexConfig) Enabled() bool {
	return d.APIKey != "" && d.SecretKey != ""
}

// MarketConfig configures the public market data client.
type MarketConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int           `yaml:"burst" mapstructure:"burst"`
}

// ResilienceConfig tunes retries for outbound HTTP and the analyzer's
// circuit breaker.
type ResilienceConfig struct {
	Retry   resilience.RetrySettings   `yaml:"retry" mapstructure:"retry"`
	Circuit resilience.CircuitSettings `yaml:"circuit" mapstructure:"circuit"`
}

// WalletConfig points at the wallet bridge that signs swap transactions.
type WalletConfig struct {
	BridgeURL string        `yaml:"bridge_url" mapstructure:"bridge_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LedgerConfig sizes the recent-signal list.
type LedgerConfig struct {
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
}

// BusConfig locates a remote worker. An empty URL runs the worker in
// process.
type BusConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ServerConfig configures the worker's HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Metrics         bool          `yaml:"metrics" mapstructure:"metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and POSTSIGNAL_*
// environment variables. Environment wins over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POSTSIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	scan := scanner.DefaultConfig()
	coord := coordinator.DefaultConfig()
	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.sqlite_path", "postsignal.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 4)
	v.SetDefault("store.pool.min_conns", 0)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 300)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("anthropic.cache_ttl", "5m")
	v.SetDefault("dex.base_url", dex.DefaultBaseURL)
	v.SetDefault("dex.api_key", "")
	v.SetDefault("dex.secret_key", "")
	v.SetDefault("dex.passphrase", "")
	v.SetDefault("dex.project_id", "")
	v.SetDefault("dex.rate_limit", 5.0)
	v.SetDefault("dex.burst", 1)
	v.SetDefault("dex.slippage", dex.DefaultSlippage)
	v.SetDefault("market.base_url", dex.DefaultBaseURL)
	v.SetDefault("market.cache_ttl", dex.DefaultCacheTTL.String())
	v.SetDefault("market.rate_limit", 10.0)
	v.SetDefault("market.burst", 3)
	v.SetDefault("resilience.retry.max_attempts", 3)
	v.SetDefault("resilience.retry.initial_backoff_ms", 500)
	v.SetDefault("resilience.retry.max_backoff_ms", 30000)
	v.SetDefault("resilience.retry.multiplier", 2.0)
	v.SetDefault("resilience.retry.jitter_fraction", 0.25)
	v.SetDefault("resilience.circuit.failure_threshold", 5)
	v.SetDefault("resilience.circuit.reset_timeout_secs", 30)
	v.SetDefault("wallet.bridge_url", "")
	v.SetDefault("wallet.timeout", "60s")
	v.SetDefault("scan.post_selector", scan.PostSelector)
	v.SetDefault("scan.min_text_length", scan.MinTextLength)
	v.SetDefault("scan.batch_size", scan.BatchSize)
	v.SetDefault("scan.item_delay", scan.ItemDelay.String())
	v.SetDefault("scan.rearm_delay", scan.RearmDelay.String())
	v.SetDefault("scan.min_hype_phrases", scan.MinHypePhrases)
	v.SetDefault("scan.handled_attr", scan.HandledAttr)
	v.SetDefault("scan.overlay_class", scan.OverlayClass)
	v.SetDefault("scan.janitor_interval", scan.JanitorInterval.String())
	v.SetDefault("coordinator.max_retries", coord.MaxRetries)
	v.SetDefault("coordinator.retry_delay", coord.RetryDelay.String())
	v.SetDefault("coordinator.request_timeout", coord.RequestTimeout.String())
	v.SetDefault("coordinator.heartbeat_interval", coord.HeartbeatInterval.String())
	v.SetDefault("coordinator.dlq_max_retries", coord.DLQMaxRetries)
	v.SetDefault("ledger.capacity", ledger.DefaultCapacity)
	v.SetDefault("bus.url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.metrics", true)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of "serve",
// "scan", "quote" or "trade".
func (c *Config) Validate(mode string) error {
	var missing []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Ledger.Capacity <= 0 {
		return eris.Errorf("config: ledger.capacity must be positive, got %d", c.Ledger.Capacity)
	}

	switch mode {
	case "serve":
		missing = c.requireStore(missing)
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key")
		}
	case "scan":
		if c.Bus.URL == "" {
			missing = c.requireStore(missing)
			if c.Anthropic.Key == "" {
				missing = append(missing, "anthropic.key")
			}
		}
	case "quote":
		missing = c.requireDex(missing)
	case "trade":
		missing = c.requireDex(missing)
		if c.Wallet.BridgeURL == "" {
			missing = append(missing, "wallet.bridge_url")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) requireStore(missing []string) []string {
	switch c.Store.Driver {
	case store.DriverSQLite:
		if c.Store.SQLitePath == "" {
			missing = append(missing, "store.sqlite_path")
		}
	case store.DriverPostgres:
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	}
	return missing
}

func (c *Config) requireDex(missing []string) []string {
	if c.Dex.APIKey == "" {
		missing = append(missing, "dex.api_key")
	}
	if c.Dex.SecretKey == "" {
		missing = append(missing, "dex.secret_key")
	}
	if c.Dex.Passphrase == "" {
		missing = append(missing, "dex.passphrase")
	}
	return missing
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
