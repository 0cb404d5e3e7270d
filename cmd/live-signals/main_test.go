package main

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/config"
	"github.com/ducminhle1904/tradecore/pkg/sink"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

func swingBars(symbol string, n int) []types.Bar {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	prev := 100.0
	for i := range bars {
		c := 100 + 12*math.Sin(float64(i)/6)
		bars[i] = types.Bar{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      prev,
			High:      math.Max(prev, c) + 0.4,
			Low:       math.Min(prev, c) - 0.4,
			Close:     c,
			Volume:    500 + float64(i%7)*40,
		}
		prev = c
	}
	return bars
}

func newTestLoop(t *testing.T) (*signalLoop, *sink.Memory) {
	t.Helper()
	stratCfg, err := config.Default().StrategySettings()
	require.NoError(t, err)
	gen, err := strategy.New(stratCfg, nil, nil)
	require.NoError(t, err)
	mem := sink.NewMemory()
	loop, err := newSignalLoop("live-test", gen, mem, nil)
	require.NoError(t, err)
	return loop, mem
}

func TestSignalLoopPersistsEverySignal(t *testing.T) {
	loop, mem := newTestLoop(t)
	bars := swingBars("BTCUSDT", 300)

	var emitted []types.TradingSignal
	for _, b := range bars {
		sig, err := loop.process(context.Background(), b)
		require.NoError(t, err)
		if sig != nil {
			emitted = append(emitted, *sig)
		}
	}
	stored := mem.Signals("live-test")
	assert.Equal(t, emitted, stored)
	for _, s := range stored {
		assert.Equal(t, "BTCUSDT", s.Symbol)
		assert.NotEqual(t, types.DirectionNone, s.Direction)
	}
}

func TestSignalLoopRejectsStaleBars(t *testing.T) {
	loop, mem := newTestLoop(t)
	bars := swingBars("ETHUSDT", 40)
	assert.Equal(t, 40, loop.warmUp(bars))

	sig, err := loop.process(context.Background(), bars[10])
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Empty(t, mem.Signals("live-test"))

	s, ok := loop.series.Series("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, bars[39].Timestamp, s.Snapshot().Timestamp)
	assert.Equal(t, 40, s.Snapshot().Bars)
}

func TestSignalLoopMinTier(t *testing.T) {
	loop, mem := newTestLoop(t)
	loop.minTier = types.TierStrong
	for _, b := range swingBars("SOLUSDT", 300) {
		_, err := loop.process(context.Background(), b)
		require.NoError(t, err)
	}
	for _, s := range mem.Signals("live-test") {
		assert.Equal(t, types.TierStrong, s.Tier)
	}
}

func TestSignalLoopRunStopsOnClose(t *testing.T) {
	loop, _ := newTestLoop(t)
	ch := make(chan types.Bar, 8)
	for _, b := range swingBars("BTCUSDT", 8) {
		ch <- b
	}
	close(ch)
	require.NoError(t, loop.run(context.Background(), ch))

	s, ok := loop.series.Series("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 8, s.Snapshot().Bars)
	assert.Len(t, s.Window(), 2)
}

func TestTierRank(t *testing.T) {
	assert.Less(t, tierRank(types.TierWeak), tierRank(types.TierModerate))
	assert.Less(t, tierRank(types.TierModerate), tierRank(types.TierStrong))
}

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) SendAlert(_ context.Context, level, message string) error {
	r.messages = append(r.messages, level+": "+message)
	return nil
}

func TestSignalLoopAlertsAtTier(t *testing.T) {
	loop, mem := newTestLoop(t)
	rec := &recordingNotifier{}
	loop.notifier, loop.alertTier = rec, types.TierModerate

	for _, b := range swingBars("BTCUSDT", 300) {
		_, err := loop.process(context.Background(), b)
		require.NoError(t, err)
	}
	want := 0
	for _, s := range mem.Signals("live-test") {
		if s.Tier != types.TierWeak {
			want++
		}
	}
	assert.Len(t, rec.messages, want)
	for _, m := range rec.messages {
		assert.Contains(t, m, "BTCUSDT")
	}
}
