package optimization

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/rules"
	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Tunable parameter names. Rule weights are WeightPrefix + rule id.
const (
	ParamMinConfidence  = "min_confidence"
	ParamAgreementBonus = "agreement_bonus"
	ParamMaxPosition    = "max_position_pct"
	ParamStopLoss       = "stop_loss_pct"
	ParamTakeProfit     = "take_profit_pct"
	WeightPrefix        = "weight."
)

// Ranges maps each tuned parameter to its candidate values
type Ranges map[string][]float64

// Names returns the parameter names, sorted
func (r Ranges) Names() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate rejects empty candidate lists and unknown names
func (r Ranges) Validate() error {
	if len(r) == 0 {
		return errors.NewConfigError("optimization", "Ranges.Validate", "no parameters to optimize")
	}
	for name, values := range r {
		if !knownParam(name) {
			return errors.NewConfigError("optimization", "Ranges.Validate", fmt.Sprintf("unknown parameter %q", name))
		}
		if len(values) == 0 {
			return errors.NewConfigError("optimization", "Ranges.Validate", fmt.Sprintf("parameter %s has no candidates", name))
		}
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewConfigError("optimization", "Ranges.Validate", fmt.Sprintf("parameter %s has a non-finite candidate", name))
			}
		}
	}
	return nil
}

func knownParam(name string) bool {
	switch name {
	case ParamMinConfidence, ParamAgreementBonus, ParamMaxPosition, ParamStopLoss, ParamTakeProfit:
		return true
	}
	return strings.HasPrefix(name, WeightPrefix) && len(name) > len(WeightPrefix)
}

// DefaultRanges covers the weight of every enabled voting rule plus the
// signal threshold and the risk profile's sizing and exits
func DefaultRanges(rs []rules.Rule) Ranges {
	if len(rs) == 0 {
		rs = rules.DefaultRules()
	}
	r := Ranges{
		ParamMinConfidence:  {0, 0.1, 0.2, 0.3, 0.4, 0.5},
		ParamAgreementBonus: {0, 0.05, 0.1, 0.15, 0.2},
		ParamMaxPosition:    {0.05, 0.1, 0.15, 0.2, 0.25},
		ParamStopLoss:       {0.01, 0.015, 0.02, 0.03, 0.04, 0.05},
		ParamTakeProfit:     {0.02, 0.03, 0.04, 0.06, 0.08, 0.1},
	}
	for _, rule := range rs {
		if !rule.Enabled || rule.IsVeto() {
			continue
		}
		r[WeightPrefix+rule.ID] = []float64{0.5, 0.75, 1, 1.5, 2, 3}
	}
	return r
}

// Baseline reads the current value of every ranged parameter. Rules without
// a pinned weight start at 1.
func Baseline(ranges Ranges, s strategy.Config, profile types.RiskProfile) Params {
	p := make(Params, len(ranges))
	for name := range ranges {
		switch name {
		case ParamMinConfidence:
			p[name] = s.Signal.MinConfidence
		case ParamAgreementBonus:
			p[name] = s.Signal.AgreementBonus
		case ParamMaxPosition:
			p[name] = profile.MaxPositionPct
		case ParamStopLoss:
			p[name] = profile.StopLossPct
		case ParamTakeProfit:
			p[name] = profile.TakeProfitPct
		default:
			w, ok := s.Weights[strings.TrimPrefix(name, WeightPrefix)]
			if !ok {
				w = 1
			}
			p[name] = w
		}
	}
	return p
}

// Apply writes p into copies of the strategy config and risk profile
func Apply(p Params, s strategy.Config, profile types.RiskProfile) (strategy.Config, types.RiskProfile, error) {
	weights := make(map[string]float64, len(s.Weights))
	for k, v := range s.Weights {
		weights[k] = v
	}
	s.Weights = weights

	for name, v := range p {
		switch name {
		case ParamMinConfidence:
			s.Signal.MinConfidence = v
		case ParamAgreementBonus:
			s.Signal.AgreementBonus = v
		case ParamMaxPosition:
			profile.MaxPositionPct = v
		case ParamStopLoss:
			profile.StopLossPct = v
		case ParamTakeProfit:
			profile.TakeProfitPct = v
		default:
			if !strings.HasPrefix(name, WeightPrefix) {
				return s, profile, errors.NewConfigError("optimization", "Apply", fmt.Sprintf("unknown parameter %q", name))
			}
			s.Weights[strings.TrimPrefix(name, WeightPrefix)] = v
		}
	}
	if err := s.Signal.Validate(); err != nil {
		return s, profile, err
	}
	return s, profile, profile.Validate()
}
