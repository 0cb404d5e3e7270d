package backtest

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// SlippageModel returns the adverse price move for a fill as a fraction of price
type SlippageModel interface {
	Slippage(bar types.Bar, snap indicators.Snapshot) float64
}

// FixedBps slips every fill by a constant number of basis points
type FixedBps float64

func (b FixedBps) Slippage(types.Bar, indicators.Snapshot) float64 {
	return float64(b) / 10000
}

// VolatilityScaled adds a fraction of the bar's ATR, relative to price, to a base slippage
type VolatilityScaled struct {
	BaseBps     float64
	ATRFraction float64
	ATRKey      string
}

func (v VolatilityScaled) Slippage(bar types.Bar, snap indicators.Snapshot) float64 {
	slip := v.BaseBps / 10000
	key := v.ATRKey
	if key == "" {
		key = indicators.Key(indicators.KindATR, 14)
	}
	if atr, ok := snap.Get(key); ok && bar.Close > 0 && atr > 0 {
		slip += v.ATRFraction * atr / bar.Close
	}
	return slip
}

// CostModel prices fills: commission = max(MinCommission, rate x notional)
type CostModel struct {
	CommissionRate float64
	MinCommission  float64
	Slippage       SlippageModel
}

// DefaultCostModel charges 10 bps commission and 5 bps slippage
func DefaultCostModel() CostModel {
	return CostModel{CommissionRate: 0.001, Slippage: FixedBps(5)}
}

// Validate returns a ConfigError for impossible costs
func (c CostModel) Validate() error {
	if math.IsNaN(c.CommissionRate) || c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return errors.NewConfigError("backtest", "CostModel.Validate", fmt.Sprintf("commission rate must be in [0, 1), got: %.4f", c.CommissionRate))
	}
	if math.IsNaN(c.MinCommission) || c.MinCommission < 0 {
		return errors.NewConfigError("backtest", "CostModel.Validate", fmt.Sprintf("min commission must be >= 0, got: %.4f", c.MinCommission))
	}
	return nil
}

// FillPrice moves price against the trader by the model's slippage
func (c CostModel) FillPrice(dir types.Direction, bar types.Bar, snap indicators.Snapshot) (price, slip float64) {
	s := 0.0
	if c.Slippage != nil {
		s = c.Slippage.Slippage(bar, snap)
	}
	if math.IsNaN(s) || s < 0 {
		s = 0
	}
	if dir == types.DirectionSell {
		return bar.Close * (1 - s), bar.Close * s
	}
	return bar.Close * (1 + s), bar.Close * s
}

// Commission returns the fee on notional
func (c CostModel) Commission(notional float64) float64 {
	return math.Max(c.MinCommission, c.CommissionRate*math.Abs(notional))
}

// AffordableNotional returns the largest notional at reference price ref
// whose buy at fill price plus commission fits in cash. Both the rate and
// the minimum commission must fit.
func (c CostModel) AffordableNotional(ref, fill, cash float64) float64 {
	if ref <= 0 || fill <= 0 || cash <= 0 {
		return 0
	}
	markup := fill / ref
	n := math.Min(cash/(markup*(1+c.CommissionRate)), (cash-c.MinCommission)/markup)
	return math.Max(n, 0)
}

// barCosts prices buys against the bar and snapshot they will fill on
type barCosts struct {
	model CostModel
	bar   types.Bar
	snap  indicators.Snapshot
}

func (b barCosts) MaxBuyNotional(sig *types.TradingSignal, cash float64) float64 {
	fill, _ := b.model.FillPrice(types.DirectionBuy, b.bar, b.snap)
	return b.model.AffordableNotional(sig.ReferencePrice, fill, cash)
}
