package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// TestVolumeSpike tests the 2x confirmation and body direction
func TestVolumeSpike(t *testing.T) {
	r := NewVolumeSpikeRule("v", 2.0, 20)
	prev := map[string]float64{"volume_avg_20": 1000}

	bar := flatBar()
	bar.Open, bar.Close, bar.High = 100, 102, 102
	bar.Volume = 1900
	_, ok := evaluate(r, bar, snapAt(map[string]float64{"volume_avg_20": 1045}, prev))
	assert.False(t, ok)

	bar.Volume = 3000
	vote, ok := evaluate(r, bar, snapAt(map[string]float64{"volume_avg_20": 1100}, prev))
	require.True(t, ok)
	assert.Equal(t, types.DirectionBuy, vote.Direction)
	assert.InDelta(t, 0.625, vote.Strength, 1e-12)

	bar.Open, bar.Close, bar.Low = 102, 100, 100
	vote, ok = evaluate(r, bar, snapAt(nil, prev))
	require.True(t, ok)
	assert.Equal(t, types.DirectionSell, vote.Direction)

	// doji: no directional bias to confirm
	bar.Close = bar.Open
	_, ok = evaluate(r, bar, snapAt(nil, prev))
	assert.False(t, ok)
}

// TestMomentumBands tests the RSI thresholds and neutral band
func TestMomentumBands(t *testing.T) {
	r := NewMomentumRule("m", 14, 70, 30)
	cases := []struct {
		rsi  float64
		dir  types.Direction
		vote bool
	}{
		{85, types.DirectionSell, true},
		{70, types.DirectionNone, false},
		{50, types.DirectionNone, false},
		{30, types.DirectionNone, false},
		{10, types.DirectionBuy, true},
	}
	for _, c := range cases {
		vote, ok := evaluate(r, flatBar(), snapAt(map[string]float64{"rsi_14": c.rsi}, nil))
		assert.Equal(t, c.vote, ok, "rsi %.0f", c.rsi)
		if ok {
			assert.Equal(t, c.dir, vote.Direction)
			assert.GreaterOrEqual(t, vote.Strength, 0.5)
		}
	}
}

// TestThresholdRule tests the custom indicator-threshold variant
func TestThresholdRule(t *testing.T) {
	r := NewThresholdRule("ema_above", "ema_50", OpAbove, 100, types.DirectionBuy, 0.4)
	require.NoError(t, r.Validate())

	vote, ok := evaluate(r, flatBar(), snapAt(map[string]float64{"ema_50": 101}, nil))
	require.True(t, ok)
	assert.Equal(t, 0.4, vote.Strength)
	assert.Equal(t, "ema_above", vote.RuleID)

	_, ok = evaluate(r, flatBar(), snapAt(map[string]float64{"ema_50": 100}, nil))
	assert.False(t, ok)
	_, ok = evaluate(r, flatBar(), snapAt(nil, nil))
	assert.False(t, ok)
}

// TestRequiredSpecs tests the indicator keys each default rule needs
func TestRequiredSpecs(t *testing.T) {
	var keys []string
	for _, s := range RequiredSpecs(DefaultRules()) {
		keys = append(keys, s.Key())
	}
	assert.Equal(t, []string{"sma_5", "sma_20", "volume_avg_20", "rsi_14", "volatility_20"}, keys)
}
