package types

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

// RiskTolerance is the user's declared appetite for risk
type RiskTolerance string

const (
	ToleranceConservative RiskTolerance = "conservative"
	ToleranceModerate     RiskTolerance = "moderate"
	ToleranceAggressive   RiskTolerance = "aggressive"
)

// SizeMultiplier scales the per-position cap. Aggressive is still bounded by
// the profile's MaxPositionPct.
func (t RiskTolerance) SizeMultiplier() float64 {
	switch t {
	case ToleranceConservative:
		return 0.5
	case ToleranceAggressive:
		return 1.5
	default:
		return 1.0
	}
}

// RiskProfile is supplied per account and read-only to the core
type RiskProfile struct {
	MaxPositionPct float64       `json:"max_position_pct"`
	StopLossPct    float64       `json:"stop_loss_pct"`
	TakeProfitPct  float64       `json:"take_profit_pct"`
	Tolerance      RiskTolerance `json:"risk_tolerance"`
}

// DefaultRiskProfile caps each position at 10% of equity
func DefaultRiskProfile() RiskProfile {
	return RiskProfile{
		MaxPositionPct: 0.10,
		StopLossPct:    0.02,
		TakeProfitPct:  0.04,
		Tolerance:      ToleranceModerate,
	}
}

// Validate returns a ConfigError for out-of-range parameters
func (p RiskProfile) Validate() error {
	check := func(name string, v float64, max float64) error {
		if math.IsNaN(v) || v <= 0 || v > max {
			return errors.NewConfigError("types", "RiskProfile.Validate",
				fmt.Sprintf("%s must be in (0, %.0f], got: %.4f", name, max, v))
		}
		return nil
	}
	if err := check("max_position_pct", p.MaxPositionPct, 1); err != nil {
		return err
	}
	if err := check("stop_loss_pct", p.StopLossPct, 1); err != nil {
		return err
	}
	if err := check("take_profit_pct", p.TakeProfitPct, 10); err != nil {
		return err
	}
	switch p.Tolerance {
	case ToleranceConservative, ToleranceModerate, ToleranceAggressive, "":
	default:
		return errors.NewConfigError("types", "RiskProfile.Validate",
			fmt.Sprintf("unknown risk tolerance %q", p.Tolerance))
	}
	return nil
}
