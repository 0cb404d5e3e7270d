package model

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

func bars(n int) []types.Bar {
	out := make([]types.Bar, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := range out {
		out[i] = types.Bar{Symbol: "TEST", Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open: price, High: price * 1.02, Low: price * 0.99, Close: price * 1.01, Volume: 100}
		price *= 1.01
	}
	return out
}

// TestFeaturesShape tests the flattened matrix size and a known row
func TestFeaturesShape(t *testing.T) {
	f, err := Features(bars(10), 5)
	require.NoError(t, err)
	require.Len(t, f, 5*FeaturesPerBar)

	assert.InDelta(t, 0.00995, f[0], 1e-4) // log(1.01)
	assert.InDelta(t, 1.0, f[5], 1e-6)     // flat volume

	_, err = Features(bars(5), 5)
	assert.True(t, errors.IsDataError(err))
}

// TestVoteFromClasses tests class mapping for probabilities and logits
func TestVoteFromClasses(t *testing.T) {
	v, err := voteFromClasses("m", []float32{0.1, 0.2, 0.7})
	require.NoError(t, err)
	assert.Equal(t, types.DirectionBuy, v.Direction)
	assert.InDelta(t, 0.7, v.Strength, 1e-6)

	v, err = voteFromClasses("m", []float32{3, 0, -1})
	require.NoError(t, err)
	assert.Equal(t, types.DirectionSell, v.Direction)
	assert.Greater(t, v.Strength, 0.5)
	assert.LessOrEqual(t, v.Strength, 1.0)

	v, err = voteFromClasses("m", []float32{0.2, 0.6, 0.2})
	require.NoError(t, err)
	assert.Equal(t, types.DirectionNone, v.Direction)

	_, err = voteFromClasses("m", []float32{1})
	assert.Error(t, err)
}

// TestONNXPredictor runs a real model when one is provided through the environment
func TestONNXPredictor(t *testing.T) {
	path := os.Getenv("TRADECORE_ONNX_MODEL")
	if path == "" {
		t.Skip("TRADECORE_ONNX_MODEL not set")
	}
	cfg := DefaultONNXConfig(path)
	cfg.LibraryPath = os.Getenv("TRADECORE_ONNX_LIB")
	p, err := NewONNXPredictor(cfg)
	require.NoError(t, err)
	defer p.Close()

	f, err := Features(bars(cfg.WindowLength+1), cfg.WindowLength)
	require.NoError(t, err)
	v, err := p.Predict("TEST", f)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.Strength, 0.0)
}

// TestONNXConfigRequired tests that a missing model path is a config error
func TestONNXConfigRequired(t *testing.T) {
	_, err := NewONNXPredictor(ONNXConfig{})
	assert.True(t, errors.IsConfigError(err))
}
