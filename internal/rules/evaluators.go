package rules

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// evaluate dispatches on the rule variant. ok=false means the rule abstains.
func evaluate(r Rule, bar types.Bar, snap indicators.Snapshot) (types.RuleVote, bool) {
	switch r.Kind {
	case KindMACrossover:
		return evalCrossover(r, snap)
	case KindVolumeSpike:
		return evalVolumeSpike(r, bar, snap)
	case KindMomentum:
		return evalMomentum(r, snap)
	case KindCustom:
		return evalCustom(r, bar, snap)
	}
	return types.RuleVote{}, false
}

// evalCrossover fires only on the bar where fast crosses slow
func evalCrossover(r Rule, snap indicators.Snapshot) (types.RuleVote, bool) {
	specs := r.RequiredSpecs()
	fastKey, slowKey := specs[0].Key(), specs[1].Key()

	fast, ok1 := snap.Get(fastKey)
	slow, ok2 := snap.Get(slowKey)
	prevFast, ok3 := snap.Prev(fastKey)
	prevSlow, ok4 := snap.Prev(slowKey)
	if !(ok1 && ok2 && ok3 && ok4) || slow == 0 {
		return types.RuleVote{}, false
	}

	var (
		dir  types.Direction
		word string
	)
	switch {
	case prevFast <= prevSlow && fast > slow:
		dir, word = types.DirectionBuy, "above"
	case prevFast >= prevSlow && fast < slow:
		dir, word = types.DirectionSell, "below"
	default:
		return types.RuleVote{}, false
	}

	gap := math.Abs(fast-slow) / slow
	return types.RuleVote{
		RuleID:    r.ID,
		Direction: dir,
		Strength:  clamp01(0.6 + gap*20),
		Rationale: fmt.Sprintf("%s crossed %s %s (gap %.3f%%)", fastKey, word, slowKey, gap*100),
	}, true
}

// evalVolumeSpike confirms the bar body direction on volume above multiple x trailing average
func evalVolumeSpike(r Rule, bar types.Bar, snap indicators.Snapshot) (types.RuleVote, bool) {
	p := r.VolumeSpike
	key := indicators.Key(indicators.KindVolumeAvg, p.Period)
	// trailing average excludes the current bar when available
	avg, ok := snap.Prev(key)
	if !ok {
		if avg, ok = snap.Get(key); !ok {
			return types.RuleVote{}, false
		}
	}
	if avg <= 0 || bar.Volume <= p.Multiple*avg {
		return types.RuleVote{}, false
	}

	var dir types.Direction
	switch {
	case bar.Close > bar.Open:
		dir = types.DirectionBuy
	case bar.Close < bar.Open:
		dir = types.DirectionSell
	default:
		return types.RuleVote{}, false
	}

	ratio := bar.Volume / avg
	return types.RuleVote{
		RuleID:    r.ID,
		Direction: dir,
		Strength:  clamp01(0.5 + 0.25*(ratio/p.Multiple-1)),
		Rationale: fmt.Sprintf("volume %.1fx trailing average", ratio),
	}, true
}

// evalMomentum sells overbought and buys oversold RSI; neutral band abstains
func evalMomentum(r Rule, snap indicators.Snapshot) (types.RuleVote, bool) {
	p := r.Momentum
	rsi, ok := snap.Get(indicators.Key(indicators.KindRSI, p.Period))
	if !ok {
		return types.RuleVote{}, false
	}
	switch {
	case rsi > p.Overbought:
		return types.RuleVote{
			RuleID:    r.ID,
			Direction: types.DirectionSell,
			Strength:  clamp01(0.5 + 0.5*(rsi-p.Overbought)/(100-p.Overbought)),
			Rationale: fmt.Sprintf("RSI %.1f overbought", rsi),
		}, true
	case rsi < p.Oversold:
		return types.RuleVote{
			RuleID:    r.ID,
			Direction: types.DirectionBuy,
			Strength:  clamp01(0.5 + 0.5*(p.Oversold-rsi)/p.Oversold),
			Rationale: fmt.Sprintf("RSI %.1f oversold", rsi),
		}, true
	}
	return types.RuleVote{}, false
}

// vetoed reports whether a volatility filter suppresses this bar
func vetoed(r Rule, snap indicators.Snapshot) (bool, string) {
	p := r.Volatility
	vol, ok := snap.Get(indicators.Key(indicators.KindVolatility, p.Period))
	if !ok || vol <= p.Ceiling {
		return false, ""
	}
	return true, fmt.Sprintf("annualized volatility %.2f above ceiling %.2f", vol, p.Ceiling)
}

func evalCustom(r Rule, bar types.Bar, snap indicators.Snapshot) (types.RuleVote, bool) {
	p := r.Custom
	if p.Eval != nil {
		v, ok := p.Eval(bar, snap)
		v.RuleID = r.ID
		return v, ok
	}
	v, ok := snap.Get(p.Indicator)
	if !ok {
		return types.RuleVote{}, false
	}
	var hit bool
	switch p.Operator {
	case OpAbove:
		hit = v > p.Threshold
	case OpAboveOrEqual:
		hit = v >= p.Threshold
	case OpBelow:
		hit = v < p.Threshold
	case OpBelowOrEqual:
		hit = v <= p.Threshold
	}
	if !hit {
		return types.RuleVote{}, false
	}
	return types.RuleVote{
		RuleID:    r.ID,
		Direction: p.Direction,
		Strength:  p.Strength,
		Rationale: fmt.Sprintf("%s %.4f %s %.4f", p.Indicator, v, p.Operator, p.Threshold),
	}, true
}
