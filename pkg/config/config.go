package config

// Package config provides nested JSON configuration for backtests and live
// signal generation

import (
	"github.com/ducminhle1904/tradecore/internal/risk"
	"github.com/ducminhle1904/tradecore/internal/rules"
	"github.com/ducminhle1904/tradecore/pkg/optimization"
	"github.com/ducminhle1904/tradecore/pkg/types"
	"github.com/ducminhle1904/tradecore/pkg/validation"
)

// Common configuration constants
const (
	DefaultInitialBalance = 10000.0
	DefaultCommission     = 0.001 // 0.1%
	DefaultSlippageBps    = 5.0
	DefaultProfileName    = "default"

	MaxCommission = 1.0

	DefaultDataRoot = "data"
	DefaultExchange = "bybit"
	DefaultCategory = "linear"
	ResultsDir      = "results"
	EnvPrefix       = "TRADECORE_"
)

// Config is the nested configuration file format
type Config struct {
	Backtest BacktestConfig               `json:"backtest"`
	Data     DataConfig                   `json:"data"`
	Strategy StrategyConfig               `json:"strategy"`
	Risk     RiskConfig                   `json:"risk"`
	Profiles map[string]types.RiskProfile `json:"profiles"`
	Model    ModelConfig                  `json:"model"`
	Sink     SinkConfig                   `json:"sink"`
	Live     LiveConfig                   `json:"live"`
	Exchange ExchangeConfig               `json:"exchange"`
	Logging  LoggingConfig                `json:"logging"`
	Metrics  MetricsConfig                `json:"metrics"`
	Report   ReportConfig                 `json:"report"`

	Optimization OptimizationConfig `json:"optimization"`
}

type BacktestConfig struct {
	RunID               string  `json:"run_id"`
	InitialBalance      float64 `json:"initial_balance"`
	Commission          float64 `json:"commission"`
	MinCommission       float64 `json:"min_commission"`
	SlippageBps         float64 `json:"slippage_bps"`
	SlippageATRFraction float64 `json:"slippage_atr_fraction"` // > 0 selects volatility-scaled slippage
	DataErrorTolerance  int     `json:"data_error_tolerance"`
	LiquidateAtEnd      *bool   `json:"liquidate_at_end,omitempty"`
	ConcurrentSignals   bool    `json:"concurrent_signals"`
	Workers             int     `json:"workers"`
	Profile             string  `json:"profile"`
}

// DataConfig locates historical bars. Source is "csv" or "bybit".
type DataConfig struct {
	Source   string            `json:"source"`
	Root     string            `json:"root"`
	Exchange string            `json:"exchange"`
	Category string            `json:"category"`
	Interval string            `json:"interval"`
	Symbols  []string          `json:"symbols"`
	Files    map[string]string `json:"files,omitempty"` // symbol -> explicit CSV path
	Start    string            `json:"start,omitempty"` // YYYY-MM-DD
	End      string            `json:"end,omitempty"`
	Cache    bool              `json:"cache"`
}

type StrategyConfig struct {
	Name             string             `json:"name"`
	Rules            []rules.Rule       `json:"rules,omitempty"`
	Weights          map[string]float64 `json:"weights,omitempty"`
	Horizon          string             `json:"horizon"`
	AgreementBonus   float64            `json:"agreement_bonus"`
	MinConfidence    float64            `json:"min_confidence"`
	AdaptiveWeights  bool               `json:"adaptive_weights"`
	ATRPeriod        int                `json:"atr_period"`
	VolatilityPeriod int                `json:"volatility_period"`
	PeriodsPerYear   float64            `json:"periods_per_year"`
}

// RiskConfig is the risk manager's limits plus the correlation estimator window
type RiskConfig struct {
	risk.Config
	CorrelationWindow int `json:"correlation_window"` // 0 disables the correlation cap
}

type ModelConfig struct {
	Enabled      bool   `json:"enabled"`
	Path         string `json:"path"`
	LibraryPath  string `json:"library_path"`
	WindowLength int    `json:"window_length"`
	InputName    string `json:"input_name"`
	OutputName   string `json:"output_name"`
}

// SinkConfig selects persistence. Type is "memory", "sqlite", "redis" or "none".
type SinkConfig struct {
	Type          string `json:"type"`
	Path          string `json:"path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	Stream        string `json:"stream"`
}

// LiveConfig configures the websocket bar feed for live signal generation
type LiveConfig struct {
	FeedURL  string   `json:"feed_url"`
	Symbols  []string `json:"symbols"`
	Interval string   `json:"interval"`
	Topic    string   `json:"topic"`

	// Telegram alerts for signals of at least AlertTier; empty token disables them
	TelegramToken  string `json:"telegram_token,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
	AlertTier      string `json:"alert_tier,omitempty"`
}

type ExchangeConfig struct {
	Name  string      `json:"name"`
	Bybit BybitConfig `json:"bybit"`
}

type BybitConfig struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Testnet   bool   `json:"testnet"`
	BaseURL   string `json:"base_url,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Dir     string `json:"dir"`
	File    bool   `json:"file"`
	JSON    bool   `json:"json"`
	Console bool   `json:"console"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// OptimizationConfig drives parameter search and walk-forward validation.
// Empty Ranges tunes every voting rule weight plus the signal threshold and
// the profile's sizing and exits.
type OptimizationConfig struct {
	Fitness     string               `json:"fitness"` // return, sharpe or calmar
	GA          optimization.Config  `json:"ga"`
	WalkForward validation.Config    `json:"walk_forward"`
	Ranges      map[string][]float64 `json:"ranges,omitempty"`
}

// ReportConfig lists output formats: console, csv, json, excel
type ReportConfig struct {
	Dir     string   `json:"dir"`
	Formats []string `json:"formats"`
}

// Default returns a complete configuration with default values
func Default() *Config {
	liquidate := true
	return &Config{
		Backtest: BacktestConfig{
			RunID:              "backtest",
			InitialBalance:     DefaultInitialBalance,
			Commission:         DefaultCommission,
			SlippageBps:        DefaultSlippageBps,
			DataErrorTolerance: 10,
			LiquidateAtEnd:     &liquidate,
			Profile:            DefaultProfileName,
		},
		Data: DataConfig{
			Source:   "csv",
			Root:     DefaultDataRoot,
			Exchange: DefaultExchange,
			Category: DefaultCategory,
			Interval: "1d",
		},
		Strategy: StrategyConfig{
			Name:             "rules",
			Horizon:          "24h",
			AgreementBonus:   0.1,
			ATRPeriod:        14,
			VolatilityPeriod: 20,
			PeriodsPerYear:   252,
		},
		Risk:     RiskConfig{Config: risk.DefaultConfig()},
		Profiles: map[string]types.RiskProfile{DefaultProfileName: types.DefaultRiskProfile()},
		Model:    ModelConfig{WindowLength: 60, InputName: "input", OutputName: "output"},
		Sink:     SinkConfig{Type: "memory", Stream: "tradecore"},
		Live:     LiveConfig{Interval: "1m", Topic: "kline", AlertTier: "strong"},
		Exchange: ExchangeConfig{Name: DefaultExchange, Bybit: BybitConfig{APIKey: "${BYBIT_API_KEY}", APISecret: "${BYBIT_API_SECRET}"}},
		Logging:  LoggingConfig{Level: "info", Dir: "logs", Console: true},
		Metrics:  MetricsConfig{Addr: ":9090"},
		Report:   ReportConfig{Dir: ResultsDir, Formats: []string{"console"}},
		Optimization: OptimizationConfig{
			Fitness:     "return",
			GA:          optimization.DefaultConfig(),
			WalkForward: validation.DefaultConfig(),
		},
	}
}
