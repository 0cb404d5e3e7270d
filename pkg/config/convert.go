package config

import (
	"fmt"
	"time"

	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/internal/signal"
	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/model"
	"github.com/ducminhle1904/tradecore/pkg/optimization"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// SignalSettings converts the strategy section into signal finalization settings
func (c *Config) SignalSettings() (signal.Config, error) {
	s := c.Strategy
	out := signal.DefaultConfig()
	if s.Horizon != "" {
		h, err := time.ParseDuration(s.Horizon)
		if err != nil {
			return out, fail("invalid strategy horizon %q", s.Horizon)
		}
		out.Horizon = h
	}
	out.AgreementBonus = s.AgreementBonus
	out.MinConfidence = s.MinConfidence
	out.AdaptiveWeights = s.AdaptiveWeights
	if s.ATRPeriod > 0 {
		out.ATRPeriod = s.ATRPeriod
	}
	if s.VolatilityPeriod > 0 {
		out.VolatilityPeriod = s.VolatilityPeriod
	}
	out.PeriodsPerYear = s.PeriodsPerYear
	return out, out.Validate()
}

// StrategySettings builds the strategy factory input. Empty rules select the defaults.
func (c *Config) StrategySettings() (strategy.Config, error) {
	sig, err := c.SignalSettings()
	if err != nil {
		return strategy.Config{}, err
	}
	return strategy.Config{
		Name:    c.Strategy.Name,
		Rules:   c.Strategy.Rules,
		Signal:  sig,
		Weights: c.Strategy.Weights,
	}, nil
}

// CostModel builds the fill cost model. A positive ATR fraction selects
// volatility-scaled slippage.
func (c *Config) CostModel() backtest.CostModel {
	b := c.Backtest
	cm := backtest.CostModel{CommissionRate: b.Commission, MinCommission: b.MinCommission}
	if b.SlippageATRFraction > 0 {
		cm.Slippage = backtest.VolatilityScaled{BaseBps: b.SlippageBps, ATRFraction: b.SlippageATRFraction}
	} else {
		cm.Slippage = backtest.FixedBps(b.SlippageBps)
	}
	return cm
}

// EngineSettings builds the replay configuration for profile
func (c *Config) EngineSettings(profile types.RiskProfile) backtest.Config {
	b := c.Backtest
	out := backtest.DefaultConfig()
	if b.RunID != "" {
		out.RunID = b.RunID
	}
	out.InitialCash = b.InitialBalance
	out.Costs = c.CostModel()
	out.Profile = profile
	out.DataErrorTolerance = b.DataErrorTolerance
	if b.LiquidateAtEnd != nil {
		out.LiquidateAtEnd = *b.LiquidateAtEnd
	}
	out.ConcurrentSignals = b.ConcurrentSignals
	out.Workers = b.Workers
	return out
}

// ONNXSettings converts the model section for the ONNX predictor
func (c *Config) ONNXSettings() (model.ONNXConfig, error) {
	if !c.Model.Enabled {
		return model.ONNXConfig{}, fmt.Errorf("model is disabled")
	}
	out := model.DefaultONNXConfig(c.Model.Path)
	out.LibraryPath = c.Model.LibraryPath
	if c.Model.WindowLength > 0 {
		out.WindowLength = c.Model.WindowLength
	}
	if c.Model.InputName != "" {
		out.InputName = c.Model.InputName
	}
	if c.Model.OutputName != "" {
		out.OutputName = c.Model.OutputName
	}
	return out, nil
}

// OptimizationRanges returns the configured search space, or the default one
// over the strategy's rules
func (c *Config) OptimizationRanges() (optimization.Ranges, error) {
	ranges := optimization.Ranges(c.Optimization.Ranges)
	if len(ranges) == 0 {
		ranges = optimization.DefaultRanges(c.Strategy.Rules)
	}
	return ranges, ranges.Validate()
}
