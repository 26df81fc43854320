// Package config loads the trader configuration.
//
// Values come from, in increasing priority: Default(), a YAML or JSON file,
// a .env file and the process environment (TRADER_ prefix, with dots in key
// names replaced by underscores). BINANCE_API_KEY and BINANCE_SECRET_KEY are
// honoured for the exchange credentials.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/autotrader/broker/binance"
	"github.com/rustyeddy/autotrader/broker/sim"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/pkg/logger"
	"github.com/rustyeddy/autotrader/strategies"
)

const (
	EnvPrefix = "TRADER"

	// MinCandleLimit is the smallest history the loop will request.
	MinCandleLimit = 200
	MaxLeverage    = 125
)

type Config struct {
	Account  AccountConfig  `yaml:"account" json:"account"`
	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
	Loop     LoopConfig     `yaml:"loop" json:"loop"`
	Gateway  GatewayConfig  `yaml:"gateway" json:"gateway"`
	Journal  journal.Config `yaml:"journal" json:"journal"`
	Log      logger.Config  `yaml:"log" json:"log"`
	Notify   NotifyConfig   `yaml:"notify" json:"notify"`
	Status   StatusConfig   `yaml:"status" json:"status"`
	Paper    PaperConfig    `yaml:"paper" json:"paper"`
}

type AccountConfig struct {
	Username  string `yaml:"username" json:"username"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
}

// StrategyConfig is copied into the trading loop when it is built and is
// not changed for the rest of the run.
type StrategyConfig struct {
	Symbol      string  `yaml:"symbol" json:"symbol"`
	Timeframe   string  `yaml:"timeframe" json:"timeframe"`
	OrderAmount float64 `yaml:"order_amount" json:"order_amount"` // quote currency
	Leverage    int     `yaml:"leverage" json:"leverage"`
	StopLoss    float64 `yaml:"stop_loss" json:"stop_loss"`     // absolute price, 0 = none
	TakeProfit  float64 `yaml:"take_profit" json:"take_profit"` // absolute price, 0 = none
	Method      string  `yaml:"method" json:"method"`

	Baseline *strategies.BaselineConfig `yaml:"baseline,omitempty" json:"baseline,omitempty"`
	Ichimoku *strategies.IchimokuConfig `yaml:"ichimoku,omitempty" json:"ichimoku,omitempty"`
}

type LoopConfig struct {
	CandleLimit int `yaml:"candle_limit" json:"candle_limit"`
	// PollInterval overrides the timeframe based sleep when non-zero.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

type GatewayConfig struct {
	Testnet           bool          `yaml:"testnet" json:"testnet"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	Backoff           time.Duration `yaml:"backoff" json:"backoff"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	TickerTTL         time.Duration `yaml:"ticker_ttl" json:"ticker_ttl"`
	AccountTTL        time.Duration `yaml:"account_ttl" json:"account_ttl"`
	ExchangeInfoTTL   time.Duration `yaml:"exchange_info_ttl" json:"exchange_info_ttl"`
}

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token" json:"telegram_token"`
	ChatID        int64  `yaml:"chat_id" json:"chat_id"`
}

func (n NotifyConfig) TelegramEnabled() bool { return n.TelegramToken != "" && n.ChatID != 0 }

type StatusConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Events  int    `yaml:"events" json:"events"` // events kept for /events
}

// PaperConfig drives the simulated gateway used instead of Binance when
// Enabled is set.
type PaperConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Balance    float64 `yaml:"balance" json:"balance"`
	StepSize   float64 `yaml:"step_size" json:"step_size"`
	StartPrice float64 `yaml:"start_price" json:"start_price"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
	Seed       int64   `yaml:"seed" json:"seed"`
}

// Default returns a configuration that validates and trades BTCUSDT on
// paper.
func Default() *Config {
	bc := binance.DefaultConfig()
	sc := sim.DefaultConfig()
	return &Config{
		Account: AccountConfig{Username: "trader"},
		Strategy: StrategyConfig{
			Symbol:      "BTCUSDT",
			Timeframe:   "15m",
			OrderAmount: 100,
			Leverage:    10,
			Method:      "baseline",
			Baseline:    ptr(strategies.BaselineConfigDefaults()),
			Ichimoku:    ptr(strategies.IchimokuConfigDefaults()),
		},
		Loop: LoopConfig{CandleLimit: MinCandleLimit},
		Gateway: GatewayConfig{
			Testnet:           true,
			RequestsPerSecond: bc.RequestsPerSecond,
			Burst:             bc.Burst,
			MaxRetries:        bc.MaxRetries,
			Backoff:           bc.Backoff,
			Timeout:           bc.Timeout,
			TickerTTL:         bc.TickerTTL,
			AccountTTL:        bc.AccountTTL,
			ExchangeInfoTTL:   bc.ExchangeInfoTTL,
		},
		Journal: journal.Config{Type: "sqlite", Path: "./trades.db"},
		Log:     logger.DefaultConfig(),
		Status:  StatusConfig{Addr: "127.0.0.1:8080", Events: 200},
		Paper: PaperConfig{
			Enabled:    true,
			Balance:    sc.Balance,
			StepSize:   sc.StepSize,
			StartPrice: 60000,
			Volatility: 0.002,
			Seed:       1,
		},
	}
}

// Load reads path (optional) on top of the defaults and applies the
// environment. A .env file next to path, or in the working directory, is
// loaded first without overriding variables that are already set.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	v := viper.New()
	v.SetConfigType("yaml")
	base, err := yaml.Marshal(Default())
	if err != nil {
		return nil, errors.Wrap(err, "marshal defaults")
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("account.api_key", EnvPrefix+"_ACCOUNT_API_KEY", "BINANCE_API_KEY")
	_ = v.BindEnv("account.secret_key", EnvPrefix+"_ACCOUNT_SECRET_KEY", "BINANCE_SECRET_KEY")

	cfg := &Config{}
	err = v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// LoadFromFile loads and validates a configuration.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func loadDotEnv(path string) {
	candidates := []string{".env"}
	if path != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(path), ".env")}, candidates...)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			_ = godotenv.Load(c)
			return
		}
	}
}

// SaveToFile writes YAML for .yaml/.yml paths and JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, "write config file")
	}
	return nil
}

// Validate checks the settings the trading loop depends on.
func (c *Config) Validate() error {
	s := c.Strategy
	if strings.TrimSpace(s.Symbol) == "" {
		return errors.New("strategy.symbol is required")
	}
	if !market.ValidInterval(s.Timeframe) {
		return errors.Errorf("strategy.timeframe %q is not a supported interval", s.Timeframe)
	}
	if s.OrderAmount <= 0 {
		return errors.New("strategy.order_amount must be positive")
	}
	if s.Leverage < 1 || s.Leverage > MaxLeverage {
		return errors.Errorf("strategy.leverage must be between 1 and %d", MaxLeverage)
	}
	if s.StopLoss < 0 || s.TakeProfit < 0 {
		return errors.New("strategy.stop_loss and strategy.take_profit must not be negative")
	}
	if _, err := strategies.ByName(s.Method); err != nil {
		return errors.Wrap(err, "strategy.method")
	}
	if err := s.validateOverrides(); err != nil {
		return errors.Wrap(err, "strategy")
	}
	if c.Loop.CandleLimit < MinCandleLimit {
		return errors.Errorf("loop.candle_limit must be at least %d", MinCandleLimit)
	}
	if c.Loop.PollInterval < 0 {
		return errors.New("loop.poll_interval must not be negative")
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv", "sqlite":
		if c.Journal.Path == "" {
			return errors.Errorf("journal.path is required for %s", c.Journal.Type)
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return errors.New("journal.dsn is required for postgres")
		}
	default:
		return errors.Errorf("journal.type must be one of none, csv, sqlite, postgres (got %q)", c.Journal.Type)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}

	if c.Paper.Enabled {
		if c.Paper.Balance <= 0 || c.Paper.StartPrice <= 0 {
			return errors.New("paper.balance and paper.start_price must be positive")
		}
	} else if c.Account.APIKey == "" || c.Account.SecretKey == "" {
		return errors.New("account.api_key and account.secret_key are required for live trading")
	}

	if c.Status.Enabled && c.Status.Addr == "" {
		return errors.New("status.addr is required when the status server is enabled")
	}
	return nil
}

// NewStrategy builds the configured strategy, applying any parameter
// overrides.
func (s StrategyConfig) NewStrategy() (strategies.Strategy, error) {
	st, err := strategies.ByName(s.Method)
	if err != nil {
		return nil, err
	}
	if err := s.validateOverrides(); err != nil {
		return nil, err
	}
	switch st.(type) {
	case *strategies.Baseline:
		if s.Baseline != nil {
			return strategies.NewBaselineWithConfig(*s.Baseline), nil
		}
	case *strategies.Ichimoku:
		if s.Ichimoku != nil {
			return strategies.NewIchimokuWithConfig(*s.Ichimoku), nil
		}
	}
	return st, nil
}

func (s StrategyConfig) validateOverrides() error {
	if s.Baseline != nil {
		if err := s.Baseline.Validate(); err != nil {
			return err
		}
	}
	if s.Ichimoku != nil {
		if err := s.Ichimoku.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

// Binance returns the client settings for the configured account.
func (c *Config) Binance() binance.Config {
	g := c.Gateway
	return binance.Config{
		APIKey:            c.Account.APIKey,
		SecretKey:         c.Account.SecretKey,
		Testnet:           g.Testnet,
		BaseURL:           g.BaseURL,
		RequestsPerSecond: g.RequestsPerSecond,
		Burst:             g.Burst,
		MaxRetries:        g.MaxRetries,
		Backoff:           g.Backoff,
		Timeout:           g.Timeout,
		TickerTTL:         g.TickerTTL,
		AccountTTL:        g.AccountTTL,
		ExchangeInfoTTL:   g.ExchangeInfoTTL,
	}
}

// Sim returns the paper gateway settings.
func (c *Config) Sim() sim.Config {
	sc := sim.DefaultConfig()
	sc.Balance = c.Paper.Balance
	if c.Paper.StepSize > 0 {
		sc.StepSize = c.Paper.StepSize
	}
	return sc
}
