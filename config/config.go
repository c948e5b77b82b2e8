package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"autotrader/infrastructure/logger"
	"autotrader/market"
	"autotrader/order"
	"autotrader/risk"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string          `yaml:"env"`
	Engine   EngineConfig    `yaml:"engine"`
	Strategy StrategyConfig  `yaml:"strategy"`
	Risk     risk.Limits     `yaml:"risk"`
	Sim      order.SimConfig `yaml:"sim"`
	Cache    CacheConfig     `yaml:"cache"`
	Gateway  GatewayConfig   `yaml:"gateway"`
	Market   MarketConfig    `yaml:"market"`
	Log      logger.Config   `yaml:"log"`
	Monitor  MonitorConfig   `yaml:"monitor"`
}

// EngineConfig selects the trading mode and cycle pacing.
type EngineConfig struct {
	Mode         string `yaml:"mode"`     // live, paper, backtest
	Symbol       string `yaml:"symbol"`   // e.g. BTC/USDT
	Interval     string `yaml:"interval"` // e.g. 1h
	CycleSeconds int    `yaml:"cycleSeconds"`
	StopTimeout  int    `yaml:"stopTimeoutSeconds"`
	Balance      float64 `yaml:"initialBalance"`
}

// StrategyConfig binds a registered provider by name.
type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// CacheConfig sizes the market data cache.
type CacheConfig struct {
	FreshnessMinutes    int `yaml:"freshnessMinutes"`
	FetchLimit          int `yaml:"fetchLimit"`
	FetchTimeoutSeconds int `yaml:"fetchTimeoutSeconds"`
	MaxPoints           int `yaml:"maxPoints"`
}

// ToCacheConfig converts to the market package's form.
func (c CacheConfig) ToCacheConfig() market.CacheConfig {
	cfg := market.DefaultCacheConfig()
	if c.FreshnessMinutes > 0 {
		cfg.Freshness = time.Duration(c.FreshnessMinutes) * time.Minute
	}
	if c.FetchLimit > 0 {
		cfg.FetchLimit = c.FetchLimit
	}
	if c.FetchTimeoutSeconds > 0 {
		cfg.FetchTimeout = time.Duration(c.FetchTimeoutSeconds) * time.Second
	}
	if c.MaxPoints > 0 {
		cfg.MaxPoints = c.MaxPoints
	}
	return cfg
}

// GatewayConfig points at the execution gateway (live mode only).
type GatewayConfig struct {
	BaseURL        string `yaml:"baseURL"`
	APIKey         string `yaml:"apiKey"`
	APISecret      string `yaml:"apiSecret"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// MarketConfig points at the market data source.
type MarketConfig struct {
	BaseURL string `yaml:"baseURL"`
}

// MonitorConfig controls the status/metrics HTTP listener.
type MonitorConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides gateway credentials from
// env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("AT_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("AT_GATEWAY_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present and consistent.
func Validate(cfg AppConfig) error {
	switch cfg.Engine.Mode {
	case "live", "paper", "backtest":
	case "":
		return errors.New("engine.mode is required")
	default:
		return fmt.Errorf("engine.mode %q must be live, paper or backtest", cfg.Engine.Mode)
	}
	if cfg.Engine.Symbol == "" {
		return errors.New("engine.symbol is required")
	}
	if cfg.Engine.Interval == "" {
		return errors.New("engine.interval is required")
	}
	if cfg.Engine.CycleSeconds < 0 {
		return errors.New("engine.cycleSeconds must be >= 0")
	}
	if cfg.Strategy.Name == "" {
		return errors.New("strategy.name is required")
	}
	if err := cfg.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if cfg.Engine.Mode == "live" {
		if cfg.Gateway.BaseURL == "" {
			return errors.New("gateway.baseURL is required in live mode")
		}
		if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
			return errors.New("gateway.apiKey/apiSecret is required in live mode (or env overrides)")
		}
	}
	if cfg.Market.BaseURL == "" {
		return errors.New("market.baseURL is required")
	}
	if cfg.Cache.FreshnessMinutes < 0 || cfg.Cache.FetchLimit < 0 ||
		cfg.Cache.FetchTimeoutSeconds < 0 || cfg.Cache.MaxPoints < 0 {
		return errors.New("cache bounds must be >= 0")
	}
	return nil
}
