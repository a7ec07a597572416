package ops

import (
	"os"
	"strings"
	"time"

	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/internal/exchange/binance"
	"cryptofutures/internal/exchange/paper"
	"cryptofutures/internal/order"
	"cryptofutures/pkg/exception"

	"gopkg.in/yaml.v3"
)

// Environment variables that take precedence over the config file.
const (
	EnvBinanceKey    = "FUTURES_BINANCE_KEY"
	EnvBinanceSecret = "FUTURES_BINANCE_SECRET"
)

// Config mirrors the YAML config layout.
type Config struct {
	Venue     string          `yaml:"venue"`
	Binance   binance.Config  `yaml:"binance"`
	Paper     paper.Config    `yaml:"paper"`
	Order     order.Config    `yaml:"order"`
	API       APIConfig       `yaml:"api"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

// APIConfig configures the operator HTTP server.
type APIConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProfilingConfig configures continuous profiling.
type ProfilingConfig struct {
	Enabled         bool              `yaml:"enabled"`
	ApplicationName string            `yaml:"application_name"`
	ServerAddress   string            `yaml:"server_address"`
	Tags            map[string]string `yaml:"tags"`
}

// Default returns a config that runs the paper venue locally.
func Default() Config {
	return Config{
		Venue:   enum.PlatformPaper.String(),
		Binance: binance.DefaultConfig(),
		Paper: paper.Config{
			FeeRate:  0.0004,
			FeeAsset: "USDT",
		},
		Order: order.DefaultConfig(),
		API: APIConfig{
			Listen:          ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Profiling: ProfilingConfig{
			ApplicationName: "cryptofutures",
			ServerAddress:   "http://localhost:4040",
		},
	}
}

func defaultPaperSymbols() map[string]paper.SymbolSpec {
	return map[string]paper.SymbolSpec{
		"BTCUSDT": {PricePrecision: 1, VolumePrecision: 3},
		"ETHUSDT": {PricePrecision: 2, VolumePrecision: 3},
	}
}

// Load reads a YAML config file over the defaults, applies the environment
// overrides and validates the result. An empty path loads the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if len(path) != 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(exception.ErrInvalidConfig, "parse config %s: %v", path, err)
		}
	}

	if len(cfg.Paper.Symbols) == 0 {
		cfg.Paper.Symbols = defaultPaperSymbols()
	}
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if key := strings.TrimSpace(os.Getenv(EnvBinanceKey)); len(key) != 0 {
		cfg.Binance.APIKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(EnvBinanceSecret)); len(secret) != 0 {
		cfg.Binance.APISecret = secret
	}
}

// Platform returns the configured venue.
func (cfg Config) Platform() enum.Platform {
	p, _ := enum.ParsePlatform(cfg.Venue)
	return p
}

// Validate checks the settings the selected venue needs.
func (cfg Config) Validate() error {
	platform, ok := enum.ParsePlatform(cfg.Venue)
	if !ok {
		return errors.Wrapf(exception.ErrInvalidConfig, "unknown venue %q", cfg.Venue)
	}

	switch platform {
	case enum.PlatformBinanceFutures:
		if len(cfg.Binance.APIKey) == 0 || len(cfg.Binance.APISecret) == 0 {
			return errors.Wrapf(exception.ErrInvalidConfig, "binance requires api key and secret, set %s and %s", EnvBinanceKey, EnvBinanceSecret)
		}
		if cfg.Binance.Backoff.MaxAttempts < 0 {
			return errors.Wrap(exception.ErrInvalidConfig, "binance backoff max_attempts must be >= 0")
		}
	case enum.PlatformPaper:
		if len(cfg.Paper.Symbols) == 0 {
			return errors.Wrap(exception.ErrInvalidConfig, "paper venue needs at least one symbol")
		}
		for symbol, spec := range cfg.Paper.Symbols {
			if spec.PricePrecision < 0 || spec.VolumePrecision < 0 {
				return errors.Wrapf(exception.ErrInvalidConfig, "paper symbol %s precision must be >= 0", symbol)
			}
		}
		if cfg.Paper.FeeRate < 0 || cfg.Paper.FeeRate >= 1 {
			return errors.Wrapf(exception.ErrInvalidConfig, "paper fee_rate %v out of [0, 1)", cfg.Paper.FeeRate)
		}
	}

	if cfg.Order.SubmitTimeout < 0 || cfg.Order.CancelTimeout < 0 || cfg.Order.QueryTimeout < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "order timeouts must be >= 0")
	}
	if len(cfg.API.Listen) == 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "api listen address is empty")
	}
	if cfg.Profiling.Enabled && len(cfg.Profiling.ServerAddress) == 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "profiling server_address is empty")
	}
	return nil
}
