package rules

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Kind is the closed set of rule variants
type Kind string

const (
	KindMACrossover Kind = "ma_crossover"
	KindVolumeSpike Kind = "volume_spike"
	KindMomentum    Kind = "momentum"
	KindVolatility  Kind = "volatility"
	KindCustom      Kind = "custom"
)

// MovingAverage selects the average used by a crossover rule
type MovingAverage string

const (
	AverageSMA MovingAverage = "sma"
	AverageEMA MovingAverage = "ema"
)

// CrossoverParams configures a fast/slow moving-average crossover
type CrossoverParams struct {
	Average    MovingAverage `json:"average"`
	FastPeriod int           `json:"fast_period"`
	SlowPeriod int           `json:"slow_period"`
}

// VolumeSpikeParams confirms the bar's body direction on unusual volume
type VolumeSpikeParams struct {
	Multiple float64 `json:"multiple"`
	Period   int     `json:"period"`
}

// MomentumParams votes against RSI extremes
type MomentumParams struct {
	Period     int     `json:"period"`
	Overbought float64 `json:"overbought"`
	Oversold   float64 `json:"oversold"`
}

// VolatilityParams vetoes every vote above an annualized volatility ceiling
type VolatilityParams struct {
	Period  int     `json:"period"`
	Ceiling float64 `json:"ceiling"`
}

// Operator compares an indicator value with a threshold
type Operator string

const (
	OpAbove        Operator = ">"
	OpAboveOrEqual Operator = ">="
	OpBelow        Operator = "<"
	OpBelowOrEqual Operator = "<="
)

// EvalFunc is a caller-supplied evaluator for custom rules. ok=false means no vote.
type EvalFunc func(bar types.Bar, snap indicators.Snapshot) (vote types.RuleVote, ok bool)

// CustomParams is an indicator-threshold rule, or a caller-supplied function
// when Eval is set.
type CustomParams struct {
	Indicator string          `json:"indicator"`
	Operator  Operator        `json:"operator"`
	Threshold float64         `json:"threshold"`
	Direction types.Direction `json:"direction"`
	Strength  float64         `json:"strength"`
	Eval      EvalFunc        `json:"-"`
}

// Rule is one registered evaluator. Exactly one params field matching Kind is set.
type Rule struct {
	ID          string             `json:"id"`
	Kind        Kind               `json:"kind"`
	Enabled     bool               `json:"enabled"`
	Crossover   *CrossoverParams   `json:"crossover,omitempty"`
	VolumeSpike *VolumeSpikeParams `json:"volume_spike,omitempty"`
	Momentum    *MomentumParams    `json:"momentum,omitempty"`
	Volatility  *VolatilityParams  `json:"volatility,omitempty"`
	Custom      *CustomParams      `json:"custom,omitempty"`
}

// IsVeto reports whether the rule acts as a veto hook instead of voting
func (r Rule) IsVeto() bool { return r.Kind == KindVolatility }

// NewCrossoverRule builds a crossover rule
func NewCrossoverRule(id string, avg MovingAverage, fast, slow int) Rule {
	return Rule{ID: id, Kind: KindMACrossover, Enabled: true,
		Crossover: &CrossoverParams{Average: avg, FastPeriod: fast, SlowPeriod: slow}}
}

// NewVolumeSpikeRule builds a volume spike rule
func NewVolumeSpikeRule(id string, multiple float64, period int) Rule {
	return Rule{ID: id, Kind: KindVolumeSpike, Enabled: true,
		VolumeSpike: &VolumeSpikeParams{Multiple: multiple, Period: period}}
}

// NewMomentumRule builds an RSI rule
func NewMomentumRule(id string, period int, overbought, oversold float64) Rule {
	return Rule{ID: id, Kind: KindMomentum, Enabled: true,
		Momentum: &MomentumParams{Period: period, Overbought: overbought, Oversold: oversold}}
}

// NewVolatilityFilter builds the volatility veto hook
func NewVolatilityFilter(id string, period int, ceiling float64) Rule {
	return Rule{ID: id, Kind: KindVolatility, Enabled: true,
		Volatility: &VolatilityParams{Period: period, Ceiling: ceiling}}
}

// NewThresholdRule builds an indicator-threshold custom rule
func NewThresholdRule(id, indicator string, op Operator, threshold float64, dir types.Direction, strength float64) Rule {
	return Rule{ID: id, Kind: KindCustom, Enabled: true,
		Custom: &CustomParams{Indicator: indicator, Operator: op, Threshold: threshold, Direction: dir, Strength: strength}}
}

// NewFuncRule builds a custom rule backed by a Go function
func NewFuncRule(id string, fn EvalFunc) Rule {
	return Rule{ID: id, Kind: KindCustom, Enabled: true, Custom: &CustomParams{Eval: fn}}
}

// DefaultRules returns the default rule set: SMA(5)/SMA(20) crossover, 2x
// volume spike, RSI(14) 70/30 and a volatility ceiling.
func DefaultRules() []Rule {
	return []Rule{
		NewCrossoverRule("sma_crossover", AverageSMA, 5, 20),
		NewVolumeSpikeRule("volume_spike", 2.0, 20),
		NewMomentumRule("rsi_momentum", 14, 70, 30),
		NewVolatilityFilter("volatility_filter", 20, 0.80),
	}
}

// Validate returns a ConfigError describing the first invalid parameter
func (r Rule) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return errors.NewConfigError("rules", "Rule.Validate", fmt.Sprintf(format, args...)).
			WithContext("rule", r.ID)
	}
	if r.ID == "" {
		return fail("rule id is required")
	}
	switch r.Kind {
	case KindMACrossover:
		p := r.Crossover
		if p == nil {
			return fail("crossover params missing")
		}
		if p.Average != AverageSMA && p.Average != AverageEMA {
			return fail("unknown average %q", p.Average)
		}
		if p.FastPeriod < 1 || p.SlowPeriod <= p.FastPeriod {
			return fail("periods must satisfy 1 <= fast < slow, got: %d/%d", p.FastPeriod, p.SlowPeriod)
		}
	case KindVolumeSpike:
		p := r.VolumeSpike
		if p == nil {
			return fail("volume spike params missing")
		}
		if !(p.Multiple > 0) || p.Period < 1 {
			return fail("multiple must be > 0 and period >= 1, got: %.2f/%d", p.Multiple, p.Period)
		}
	case KindMomentum:
		p := r.Momentum
		if p == nil {
			return fail("momentum params missing")
		}
		if p.Period < 1 || p.Oversold < 0 || p.Overbought > 100 || p.Oversold >= p.Overbought {
			return fail("rsi bounds must satisfy 0 <= oversold < overbought <= 100, got: %.1f/%.1f", p.Oversold, p.Overbought)
		}
	case KindVolatility:
		p := r.Volatility
		if p == nil {
			return fail("volatility params missing")
		}
		if p.Period < 2 || !(p.Ceiling > 0) {
			return fail("volatility ceiling must be > 0 and period >= 2, got: %.2f/%d", p.Ceiling, p.Period)
		}
	case KindCustom:
		p := r.Custom
		if p == nil {
			return fail("custom params missing")
		}
		if p.Eval != nil {
			return nil
		}
		if _, err := indicators.ParseSpec(p.Indicator); err != nil {
			return fail("custom indicator %q: %v", p.Indicator, err)
		}
		switch p.Operator {
		case OpAbove, OpAboveOrEqual, OpBelow, OpBelowOrEqual:
		default:
			return fail("unknown operator %q", p.Operator)
		}
		if p.Direction != types.DirectionBuy && p.Direction != types.DirectionSell {
			return fail("custom direction must be BUY or SELL")
		}
		if math.IsNaN(p.Threshold) || p.Strength < 0 || p.Strength > 1 {
			return fail("strength must be in [0,1], got: %.2f", p.Strength)
		}
	default:
		return fail("unknown rule kind %q", r.Kind)
	}
	return nil
}

// RequiredSpecs lists the indicators the rule reads
func (r Rule) RequiredSpecs() []indicators.Spec {
	switch r.Kind {
	case KindMACrossover:
		kind := indicators.KindSMA
		if r.Crossover.Average == AverageEMA {
			kind = indicators.KindEMA
		}
		return []indicators.Spec{{Kind: kind, Period: r.Crossover.FastPeriod}, {Kind: kind, Period: r.Crossover.SlowPeriod}}
	case KindVolumeSpike:
		return []indicators.Spec{{Kind: indicators.KindVolumeAvg, Period: r.VolumeSpike.Period}}
	case KindMomentum:
		return []indicators.Spec{{Kind: indicators.KindRSI, Period: r.Momentum.Period}}
	case KindVolatility:
		return []indicators.Spec{{Kind: indicators.KindVolatility, Period: r.Volatility.Period}}
	case KindCustom:
		if r.Custom.Eval == nil {
			if s, err := indicators.ParseSpec(r.Custom.Indicator); err == nil {
				return []indicators.Spec{s}
			}
		}
	}
	return nil
}

// RequiredSpecs collects the indicators needed by a rule set
func RequiredSpecs(rs []Rule) []indicators.Spec {
	var out []indicators.Spec
	for _, r := range rs {
		out = append(out, r.RequiredSpecs()...)
	}
	return out
}
