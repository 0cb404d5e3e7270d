package risk

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

// Config holds portfolio-level limits applied on top of a RiskProfile.
// Percentages are fractions of total portfolio value.
type Config struct {
	StopATRMultiple   float64 `json:"stop_atr_multiple"`
	TargetATRMultiple float64 `json:"target_atr_multiple"`
	TargetVolatility  float64 `json:"target_volatility"` // annualized; 0 disables scaling

	SectorCapPct      float64           `json:"sector_cap_pct"`
	CorrelationCapPct float64           `json:"correlation_cap_pct"`
	MaxLeverage       float64           `json:"max_leverage"`
	Sectors           map[string]string `json:"sectors,omitempty"`

	MinNotional       float64 `json:"min_notional"`
	CashBuffer        float64 `json:"cash_buffer"` // held back from longs on top of priced costs
	QuantityPrecision int32   `json:"quantity_precision"`
	AllowShort        bool    `json:"allow_short"`
}

// DefaultConfig returns long-only limits with ATR stops at 2x and targets at 3x
func DefaultConfig() Config {
	return Config{
		StopATRMultiple:   2.0,
		TargetATRMultiple: 3.0,
		TargetVolatility:  0.60,
		SectorCapPct:      0.30,
		CorrelationCapPct: 0.50,
		MaxLeverage:       1.0,
		MinNotional:       10,
		CashBuffer:        0.005,
		QuantityPrecision: 8,
	}
}

// Validate returns a ConfigError for out-of-range limits
func (c Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return errors.NewConfigError("risk", "Config.Validate", fmt.Sprintf(format, args...))
	}
	bad := func(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

	if bad(c.StopATRMultiple) || c.StopATRMultiple <= 0 {
		return fail("stop_atr_multiple must be positive, got: %.2f", c.StopATRMultiple)
	}
	if bad(c.TargetATRMultiple) || c.TargetATRMultiple <= 0 {
		return fail("target_atr_multiple must be positive, got: %.2f", c.TargetATRMultiple)
	}
	if bad(c.TargetVolatility) || c.TargetVolatility < 0 {
		return fail("target_volatility must be >= 0, got: %.2f", c.TargetVolatility)
	}
	if bad(c.SectorCapPct) || c.SectorCapPct <= 0 || c.SectorCapPct > 1 {
		return fail("sector_cap_pct must be in (0, 1], got: %.2f", c.SectorCapPct)
	}
	if bad(c.CorrelationCapPct) || c.CorrelationCapPct <= 0 || c.CorrelationCapPct > 1 {
		return fail("correlation_cap_pct must be in (0, 1], got: %.2f", c.CorrelationCapPct)
	}
	if bad(c.MaxLeverage) || c.MaxLeverage <= 0 {
		return fail("max_leverage must be positive, got: %.2f", c.MaxLeverage)
	}
	if bad(c.MinNotional) || c.MinNotional < 0 {
		return fail("min_notional must be >= 0, got: %.2f", c.MinNotional)
	}
	if bad(c.CashBuffer) || c.CashBuffer < 0 || c.CashBuffer >= 1 {
		return fail("cash_buffer must be in [0, 1), got: %.4f", c.CashBuffer)
	}
	if c.QuantityPrecision < 0 || c.QuantityPrecision > 18 {
		return fail("quantity_precision must be in [0, 18], got: %d", c.QuantityPrecision)
	}
	return nil
}

// SectorOf returns the configured sector of symbol, or the symbol itself
func (c Config) SectorOf(symbol string) string {
	if s, ok := c.Sectors[symbol]; ok && s != "" {
		return s
	}
	return symbol
}
