package model

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// FeaturesPerBar is the width of one row of the feature matrix
const FeaturesPerBar = 6

// Predictor is an external model-based signal source. Its output is shaped
// like a rule vote so it can be merged uniformly with rule consensus.
type Predictor interface {
	Name() string
	// WindowLength is the number of bars Predict expects features for
	WindowLength() int
	Predict(symbol string, features []float32) (types.RuleVote, error)
}

// PredictorFunc adapts a function into a Predictor
type PredictorFunc struct {
	ID     string
	Window int
	Fn     func(symbol string, features []float32) (types.RuleVote, error)
}

func (p PredictorFunc) Name() string      { return p.ID }
func (p PredictorFunc) WindowLength() int { return p.Window }

func (p PredictorFunc) Predict(symbol string, features []float32) (types.RuleVote, error) {
	return p.Fn(symbol, features)
}

// Features flattens the last length bars into a row-major matrix of
// FeaturesPerBar columns: log return, high-low range, body, upper wick,
// lower wick (all relative to close) and volume relative to the window mean.
func Features(window []types.Bar, length int) ([]float32, error) {
	if length < 1 || len(window) < length+1 {
		return nil, errors.NewDataError("model", "Features",
			fmt.Sprintf("need %d bars, have %d", length+1, len(window)))
	}
	bars := window[len(window)-length-1:]

	meanVol := 0.0
	for _, b := range bars[1:] {
		meanVol += b.Volume
	}
	meanVol /= float64(length)

	out := make([]float32, 0, length*FeaturesPerBar)
	for i := 1; i < len(bars); i++ {
		b, prev := bars[i], bars[i-1]
		if b.Close <= 0 || prev.Close <= 0 {
			return nil, errors.NewDataError("model", "Features", "non-positive close").
				WithContext("symbol", b.Symbol)
		}
		relVol := 0.0
		if meanVol > 0 {
			relVol = b.Volume / meanVol
		}
		row := [FeaturesPerBar]float64{
			math.Log(b.Close / prev.Close),
			(b.High - b.Low) / b.Close,
			(b.Close - b.Open) / b.Close,
			(b.High - math.Max(b.Open, b.Close)) / b.Close,
			(math.Min(b.Open, b.Close) - b.Low) / b.Close,
			relVol,
		}
		for _, v := range row {
			out = append(out, float32(v))
		}
	}
	return out, nil
}

// voteFromClasses turns [sell, hold, buy] scores into a vote. Hold or a
// non-finite winner yields no direction.
func voteFromClasses(name string, scores []float32) (types.RuleVote, error) {
	if len(scores) < 3 {
		return types.RuleVote{}, fmt.Errorf("expected 3 class scores, got %d", len(scores))
	}
	probs := softmaxIfNeeded(scores[:3])
	best := 0
	for i := 1; i < 3; i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	conf := probs[best]
	if math.IsNaN(conf) || math.IsInf(conf, 0) {
		return types.RuleVote{}, fmt.Errorf("non-finite model output")
	}

	vote := types.RuleVote{RuleID: name, Strength: conf}
	switch best {
	case 0:
		vote.Direction = types.DirectionSell
	case 2:
		vote.Direction = types.DirectionBuy
	default:
		vote.Direction = types.DirectionNone
	}
	vote.Rationale = fmt.Sprintf("model %s p=%.3f", vote.Direction, conf)
	return vote, nil
}

// softmaxIfNeeded passes probabilities through and normalizes raw logits
func softmaxIfNeeded(scores []float32) []float64 {
	out := make([]float64, len(scores))
	sum := 0.0
	isProb := true
	for i, s := range scores {
		out[i] = float64(s)
		sum += out[i]
		if out[i] < 0 || out[i] > 1 {
			isProb = false
		}
	}
	if isProb && math.Abs(sum-1) < 1e-3 {
		return out
	}
	maxV := out[0]
	for _, v := range out[1:] {
		maxV = math.Max(maxV, v)
	}
	sum = 0
	for i, v := range out {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
