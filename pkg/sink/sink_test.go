package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/safety"
	"github.com/ducminhle1904/tradecore/pkg/config"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleResults() *backtest.Results {
	exit := t0.Add(5 * time.Hour)
	return &backtest.Results{
		RunID:    "run-1",
		Strategy: "rules",
		Signals: []types.TradingSignal{
			{Symbol: "BTCUSDT", Direction: types.DirectionBuy, Confidence: 0.7, Tier: types.TierModerate, Source: types.SourceRules,
				RuleIDs: []string{"sma_cross", "rsi"}, GeneratedAt: t0, ExpiresAt: t0.Add(time.Hour), ReferencePrice: 100},
		},
		Trades: []types.TradeRecord{
			{ID: "t1", Symbol: "BTCUSDT", Direction: types.DirectionBuy, Quantity: decimal.RequireFromString("1.5"),
				EntryTime: t0, EntryPrice: decimal.NewFromInt(100), ExitTime: &exit, ExitPrice: decimal.NewFromInt(110),
				PnL: decimal.RequireFromString("14.7"), Commission: decimal.RequireFromString("0.3"), ExitReason: types.ExitTarget},
		},
		OpenTrades: []types.TradeRecord{
			{ID: "t2", Symbol: "ETHUSDT", Direction: types.DirectionBuy, Quantity: decimal.NewFromInt(2), EntryTime: exit, EntryPrice: decimal.NewFromInt(50)},
		},
		Equity: []types.EquityPoint{
			{Timestamp: t0, TotalValue: 1000, Cash: 1000},
			{Timestamp: exit, TotalValue: 1014.7, Cash: 914.7, GrossExposure: 100},
		},
	}
}

func TestMemoryFlush(t *testing.T) {
	m := NewMemory()
	res := sampleResults()
	require.NoError(t, Flush(context.Background(), m, res))

	assert.Len(t, m.Signals("run-1"), 1)
	assert.Len(t, m.Trades("run-1"), 2)
	assert.Len(t, m.Equity("run-1"), 2)
	assert.Empty(t, m.Trades("other"))

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.WriteEquity(context.Background(), "run-1", types.EquityPoint{}), ErrClosed)
}

func TestSQLiteJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := NewSQLite(path, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	res := sampleResults()
	require.NoError(t, Flush(ctx, s, res))

	n, err := s.Count(ctx, "signals", "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Count(ctx, "equity", "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.Count(ctx, "sqlite_master", "run-1")
	assert.True(t, errors.IsConfigError(err))

	trades, err := s.Trades(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	closed := trades[0]
	assert.Equal(t, "t1", closed.ID)
	assert.True(t, closed.Quantity.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, closed.PnL.Equal(decimal.RequireFromString("14.7")))
	require.NotNil(t, closed.ExitTime)
	assert.Equal(t, 5*time.Hour, closed.HoldingPeriod)
	assert.Equal(t, types.ExitTarget, closed.ExitReason)
	assert.False(t, trades[1].Closed())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.WriteSignal(ctx, "run-1", res.Signals[0]), ErrClosed)

	// reopening keeps the journal
	again, err := NewSQLite(path, nil)
	require.NoError(t, err)
	defer again.Close()
	n, err = again.Count(ctx, "trades", "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.SinkConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(config.SinkConfig{Type: "none"}, nil)
	require.NoError(t, err)
	assert.NoError(t, Flush(context.Background(), s, sampleResults()))

	_, err = Open(config.SinkConfig{Type: "sqlite"}, nil)
	assert.True(t, errors.IsConfigError(err))
	_, err = Open(config.SinkConfig{Type: "redis"}, nil)
	assert.True(t, errors.IsConfigError(err))
	_, err = Open(config.SinkConfig{Type: "kafka"}, nil)
	assert.True(t, errors.IsConfigError(err))
}

func TestRedisKeys(t *testing.T) {
	r := newRedis(nil, RedisConfig{}, nil)
	assert.Equal(t, "tradecore:trades:run-1", r.StreamKey("trades", "run-1"))
	assert.Equal(t, "tradecore:signals", r.PubSubChannel())
	assert.Equal(t, int64(defaultStreamMaxLen), r.maxLen)
}

// Needs a reachable server: TRADECORE_TEST_REDIS_ADDR=localhost:6379
func TestRedisStreamRoundTrip(t *testing.T) {
	addr := os.Getenv("TRADECORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRADECORE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(RedisConfig{Addr: addr, Stream: "tradecore-test"}, nil)
	require.NoError(t, err)
	defer r.Close()

	runID := "rt-" + time.Now().Format("150405.000000")
	defer r.Client().Del(ctx, r.StreamKey("signals", runID), r.StreamKey("trades", runID), r.StreamKey("equity", runID))

	require.NoError(t, Flush(ctx, r, sampleResults()))
	sigs, err := r.ReadSignals(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, sigs, "flush writes under the results' own run id")

	sig := sampleResults().Signals[0]
	require.NoError(t, r.WriteSignal(ctx, runID, sig))
	sigs, err = r.ReadSignals(ctx, runID)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, sig.Symbol, sigs[0].Symbol)
	assert.Equal(t, types.DirectionBuy, sigs[0].Direction)
	r.Client().Del(ctx, r.StreamKey("signals", "run-1"), r.StreamKey("trades", "run-1"), r.StreamKey("equity", "run-1"))
}

type flakySink struct {
	Discard
	calls int
	err   error
}

func (f *flakySink) WriteSignal(context.Context, string, types.TradingSignal) error {
	f.calls++
	return f.err
}

func TestGuardedFailsFastWhenOpen(t *testing.T) {
	inner := &flakySink{err: errors.NewStorageError("sink", "WriteSignal", os.ErrClosed)}
	g := NewGuarded(inner, safety.NewCircuitBreaker("sink", safety.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour}))

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		assert.Error(t, g.WriteSignal(ctx, "run-1", types.TradingSignal{}))
	}
	assert.Equal(t, 2, inner.calls)

	var _ Sink = g
	require.NoError(t, g.Close())
}
