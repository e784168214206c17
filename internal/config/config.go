// Package config defines all configuration for the pump anomaly watcher.
// Config is loaded from a TOML file (default: configs/config.toml) with
// sensitive-ish fields overridable via PUMP_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the TOML file
// structure: sections api, general, cooldowns, orderbook, strategy1..4.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	General    GeneralConfig    `mapstructure:"general"`
	Cooldowns  CooldownsConfig  `mapstructure:"cooldowns"`
	Orderbook  OrderbookConfig  `mapstructure:"orderbook"`
	Strategy1  Strategy1Config  `mapstructure:"strategy1"`
	Strategy2  Strategy2Config  `mapstructure:"strategy2"`
	Strategy3  Strategy3Config  `mapstructure:"strategy3"`
	Strategy4  Strategy4Config  `mapstructure:"strategy4"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// APIConfig holds the venue's REST/WS endpoints.
type APIConfig struct {
	RESTBaseURL string `mapstructure:"rest_base_url"`
	WSBaseURL   string `mapstructure:"ws_base_url"`
}

// GeneralConfig controls symbol selection, logging destination, and the
// informational poll interval (detection itself is event-driven).
type GeneralConfig struct {
	Symbols            []string      `mapstructure:"symbols"` // empty => all discovered
	LogDir             string        `mapstructure:"log_dir"`
	PollIntervalMS     int           `mapstructure:"poll_interval_ms"` // informational only
	DiscoveryRetries   int           `mapstructure:"discovery_retries"`
	DiscoveryRetryWait time.Duration `mapstructure:"discovery_retry_wait"`
}

// CooldownsConfig sets the per-symbol cooldown shared across strategies.
type CooldownsConfig struct {
	PerSymbolSeconds int `mapstructure:"per_symbol_seconds"`
}

// OrderbookConfig tunes depth handling and Strategy 4's thickness test.
type OrderbookConfig struct {
	MaxLevels         int     `mapstructure:"max_levels"`
	DepthBandPct      float64 `mapstructure:"depth_band_pct"`
	MinThickDepthUSDT float64 `mapstructure:"min_thick_depth_usdt"`
	MaxSpreadPct      float64 `mapstructure:"max_spread_pct"`
}

// commonStrategyConfig holds the fields every strategy shares.
type commonStrategyConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	SpreadRatioMin float64 `mapstructure:"spread_ratio_min"`
	MinAbsDiff     float64 `mapstructure:"min_abs_diff"`
	MinPrice       float64 `mapstructure:"min_price"`
}

type Strategy1Config struct {
	commonStrategyConfig `mapstructure:",squash"`
}

type Strategy2Config struct {
	commonStrategyConfig `mapstructure:",squash"`
	SpikeLookbackSecs    int     `mapstructure:"spike_lookback_secs"`
	SpikeRatioMin        float64 `mapstructure:"spike_ratio_min"`
}

type Strategy3Config struct {
	commonStrategyConfig `mapstructure:",squash"`
	BaselineWindowSecs   int     `mapstructure:"baseline_window_secs"`
	PumpVsBaselineMin    float64 `mapstructure:"pump_vs_baseline_min"`
	MarkStabilityMax     float64 `mapstructure:"mark_stability_max"`
}

type Strategy4Config struct {
	commonStrategyConfig `mapstructure:",squash"`
}

// DiagnosticsConfig controls the optional read-only HTTP surface.
type DiagnosticsConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a TOML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("PUMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if dir := os.Getenv("PUMP_LOG_DIR"); dir != "" {
		cfg.General.LogDir = dir
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills in zero-value fields the TOML file is allowed to omit.
func applyDefaults(cfg *Config) {
	if cfg.General.DiscoveryRetries == 0 {
		cfg.General.DiscoveryRetries = 3
	}
	if cfg.General.DiscoveryRetryWait == 0 {
		cfg.General.DiscoveryRetryWait = time.Second
	}
	if cfg.Orderbook.MaxLevels == 0 {
		cfg.Orderbook.MaxLevels = 50
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.API.RESTBaseURL == "" {
		return fmt.Errorf("api.rest_base_url is required")
	}
	if c.API.WSBaseURL == "" {
		return fmt.Errorf("api.ws_base_url is required")
	}
	if c.General.LogDir == "" {
		return fmt.Errorf("general.log_dir is required")
	}
	if c.Cooldowns.PerSymbolSeconds <= 0 {
		return fmt.Errorf("cooldowns.per_symbol_seconds must be > 0")
	}

	anyEnabled := false
	for name, sc := range c.strategies() {
		if !sc.Enabled {
			continue
		}
		anyEnabled = true
		if sc.SpreadRatioMin <= 0 {
			return fmt.Errorf("%s.spread_ratio_min must be > 0", name)
		}
		if sc.MinAbsDiff < 0 {
			return fmt.Errorf("%s.min_abs_diff must be >= 0", name)
		}
		if sc.MinPrice < 0 {
			return fmt.Errorf("%s.min_price must be >= 0", name)
		}
	}
	if !anyEnabled {
		return fmt.Errorf("at least one strategy must be enabled")
	}

	if c.Strategy2.Enabled {
		if c.Strategy2.SpikeLookbackSecs <= 0 {
			return fmt.Errorf("strategy2.spike_lookback_secs must be > 0")
		}
		if c.Strategy2.SpikeRatioMin <= 0 {
			return fmt.Errorf("strategy2.spike_ratio_min must be > 0")
		}
	}
	if c.Strategy3.Enabled {
		if c.Strategy3.BaselineWindowSecs <= 0 {
			return fmt.Errorf("strategy3.baseline_window_secs must be > 0")
		}
		if c.Strategy3.PumpVsBaselineMin <= 0 {
			return fmt.Errorf("strategy3.pump_vs_baseline_min must be > 0")
		}
		if c.Strategy3.MarkStabilityMax <= 0 {
			return fmt.Errorf("strategy3.mark_stability_max must be > 0")
		}
	}
	if c.Strategy4.Enabled {
		if c.Orderbook.MaxSpreadPct <= 0 {
			return fmt.Errorf("orderbook.max_spread_pct must be > 0")
		}
		if c.Orderbook.DepthBandPct <= 0 {
			return fmt.Errorf("orderbook.depth_band_pct must be > 0")
		}
		if c.Orderbook.MinThickDepthUSDT <= 0 {
			return fmt.Errorf("orderbook.min_thick_depth_usdt must be > 0")
		}
	}

	return nil
}

func (c *Config) strategies() map[string]commonStrategyConfig {
	return map[string]commonStrategyConfig{
		"strategy1": c.Strategy1.commonStrategyConfig,
		"strategy2": c.Strategy2.commonStrategyConfig,
		"strategy3": c.Strategy3.commonStrategyConfig,
		"strategy4": c.Strategy4.commonStrategyConfig,
	}
}

// MaxHistoryWindow returns H_max: the largest history window any enabled
// strategy requires, or a 60s default if none need history.
func (c *Config) MaxHistoryWindow() time.Duration {
	max := 60 * time.Second
	if c.Strategy2.Enabled {
		if w := time.Duration(c.Strategy2.SpikeLookbackSecs) * time.Second; w > max {
			max = w
		}
	}
	if c.Strategy3.Enabled {
		if w := time.Duration(c.Strategy3.BaselineWindowSecs) * time.Second; w > max {
			max = w
		}
	}
	return max
}
