package backtest

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/internal/risk"
	"github.com/ducminhle1904/tradecore/internal/rules"
	"github.com/ducminhle1904/tradecore/internal/signal"
	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// generateUptrend returns flat daily bars followed by a 1%/bar rise
func generateUptrend(symbol string, flat, total int) []types.Bar {
	out := make([]types.Bar, total)
	price := 100.0
	for i := range out {
		if i >= flat {
			price *= 1.01
		}
		out[i] = types.Bar{Symbol: symbol, Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour),
			Open: price, High: price, Low: price, Close: price, Volume: 1000}
	}
	return out
}

// generateVolatileData swings the price so crossovers fire in both directions
func generateVolatileData(symbol string, count int, phase float64) []types.Bar {
	out := make([]types.Bar, count)
	for i := range out {
		x := float64(i)
		price := 100 + 12*math.Sin(x/6+phase) + 4*math.Cos(x*1.7)
		open := price - math.Sin(x)
		out[i] = types.Bar{
			Symbol:    symbol,
			Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour),
			Open:      open,
			High:      math.Max(open, price) * 1.01,
			Low:       math.Min(open, price) * 0.99,
			Close:     price,
			Volume:    1000 + 800*math.Abs(math.Sin(x*0.9)),
		}
	}
	return out
}

func generateFlat(symbol string, count int, step time.Duration) []types.Bar {
	out := make([]types.Bar, count)
	for i := range out {
		out[i] = types.Bar{Symbol: symbol, Timestamp: t0.Add(time.Duration(i) * step),
			Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000}
	}
	return out
}

func crossoverStrategy(t *testing.T) strategy.Strategy {
	t.Helper()
	gen, err := strategy.New(strategy.Config{
		Name:   "crossover",
		Rules:  []rules.Rule{rules.NewCrossoverRule("sma_crossover", rules.AverageSMA, 5, 20)},
		Signal: signal.DefaultConfig(),
	}, nil, nil)
	require.NoError(t, err)
	return gen
}

func defaultStrategy(t *testing.T) strategy.Strategy {
	t.Helper()
	gen, err := strategy.New(strategy.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	return gen
}

func alwaysBuyStrategy(t *testing.T) strategy.Strategy {
	t.Helper()
	always := rules.NewFuncRule("always_buy", func(types.Bar, indicators.Snapshot) (types.RuleVote, bool) {
		return types.RuleVote{Direction: types.DirectionBuy, Strength: 0.8, Rationale: "always"}, true
	})
	gen, err := strategy.New(strategy.Config{Name: "always", Rules: []rules.Rule{always}, Signal: signal.DefaultConfig()}, nil, nil)
	require.NoError(t, err)
	return gen
}

func newRisk(t *testing.T) *risk.Manager {
	t.Helper()
	rm, err := risk.NewManager(risk.DefaultConfig())
	require.NoError(t, err)
	return rm
}

func newEngine(t *testing.T, cfg Config, strat strategy.Strategy, series map[string][]types.Bar, order []string, opts ...Option) *Engine {
	t.Helper()
	streams := make([]BarStream, 0, len(order))
	for _, sym := range order {
		streams = append(streams, NewSliceStream(sym, series[sym]))
	}
	e, err := NewEngine(cfg, strat, newRisk(t), streams, opts...)
	require.NoError(t, err)
	return e
}

// TestUptrendSingleCrossoverBuy tests the full pipeline on a flat-then-rising series
func TestUptrendSingleCrossoverBuy(t *testing.T) {
	bars := generateUptrend("TEST", 20, 50)
	e := newEngine(t, DefaultConfig(), crossoverStrategy(t), map[string][]types.Bar{"TEST": bars}, []string{"TEST"})

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 50, res.BarsProcessed)
	assert.Len(t, res.Equity, 50)

	require.Len(t, res.Signals, 1)
	sig := res.Signals[0]
	assert.Equal(t, types.DirectionBuy, sig.Direction)
	assert.Equal(t, bars[20].Timestamp, sig.GeneratedAt)

	var buys []types.Fill
	for _, f := range res.Fills {
		if f.Direction == types.DirectionBuy {
			buys = append(buys, f)
		}
	}
	require.Len(t, buys, 1)
	reference := buys[0].Quantity.Mul(decimal.NewFromFloat(bars[20].Close)).InexactFloat64()
	assert.LessOrEqual(t, reference, 0.10*10000)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, types.ExitTarget, res.Trades[0].ExitReason)
	assert.Empty(t, res.OpenTrades)
	assert.GreaterOrEqual(t, res.FinalValue, 10000.0)
	require.NoError(t, e.Portfolio().Reconcile())
}

// TestDeterministicReplay tests that identical inputs give identical results
func TestDeterministicReplay(t *testing.T) {
	series := map[string][]types.Bar{
		"AAA": generateVolatileData("AAA", 160, 0),
		"BBB": generateVolatileData("BBB", 160, 1.3),
	}
	order := []string{"AAA", "BBB"}

	run := func(cfg Config) *Results {
		res, err := newEngine(t, cfg, defaultStrategy(t), series, order).Run(context.Background())
		require.NoError(t, err)
		return res
	}
	first := run(DefaultConfig())
	second := run(DefaultConfig())
	require.NotEmpty(t, first.Signals)
	assert.Equal(t, first.Equity, second.Equity)
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.Fills, second.Fills)
	assert.Equal(t, first.Signals, second.Signals)

	concurrent := DefaultConfig()
	concurrent.ConcurrentSignals = true
	concurrent.Workers = 4
	third := run(concurrent)
	assert.Equal(t, first.Equity, third.Equity)
	assert.Equal(t, first.Fills, third.Fills)
	assert.Equal(t, first.Signals, third.Signals)
}

// TestChronologicalMerge tests ordering across symbols with shared and distinct timestamps
func TestChronologicalMerge(t *testing.T) {
	series := map[string][]types.Bar{
		"AAA": generateFlat("AAA", 30, 2*time.Hour),
		"BBB": generateFlat("BBB", 20, 3*time.Hour),
	}
	cfg := DefaultConfig()
	cfg.LiquidateAtEnd = false
	res, err := newEngine(t, cfg, alwaysBuyStrategy(t), series, []string{"AAA", "BBB"}).Run(context.Background())
	require.NoError(t, err)

	distinct := make(map[time.Time]bool)
	for _, b := range append(append([]types.Bar(nil), series["AAA"]...), series["BBB"]...) {
		distinct[b.Timestamp] = true
	}
	assert.Len(t, res.Equity, len(distinct))
	for i := 1; i < len(res.Equity); i++ {
		assert.True(t, res.Equity[i].Timestamp.After(res.Equity[i-1].Timestamp))
	}

	require.Len(t, res.Signals, 50)
	for i := 1; i < len(res.Signals); i++ {
		prev, cur := res.Signals[i-1], res.Signals[i]
		require.False(t, cur.GeneratedAt.Before(prev.GeneratedAt))
		if cur.GeneratedAt.Equal(prev.GeneratedAt) {
			assert.Equal(t, "AAA", prev.Symbol)
			assert.Equal(t, "BBB", cur.Symbol)
		}
	}
	assert.Greater(t, res.Rejections[risk.ReasonSymbolCap], 0)
	assert.NotEmpty(t, res.OpenTrades)
}

// TestLiquidateAtEnd tests closing open positions at the last close
func TestLiquidateAtEnd(t *testing.T) {
	series := map[string][]types.Bar{"AAA": generateFlat("AAA", 10, time.Hour)}
	res, err := newEngine(t, DefaultConfig(), alwaysBuyStrategy(t), series, []string{"AAA"}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.OpenTrades)
	require.NotEmpty(t, res.Trades)
	assert.Equal(t, types.ExitEndOfRun, res.Trades[len(res.Trades)-1].ExitReason)
	assert.Len(t, res.Equity, 10)
	assert.Equal(t, 0.0, res.Equity[len(res.Equity)-1].GrossExposure)
}

// jumpSlippage slips every second quote 10000x, so a buy fills far above
// the price it was sized at
type jumpSlippage struct{ calls int }

func (j *jumpSlippage) Slippage(types.Bar, indicators.Snapshot) float64 {
	j.calls++
	if j.calls%2 == 0 {
		return 10000
	}
	return 0
}

// TestSimulationFaultKeepsPartialResults tests that a fault fails the run without losing history
func TestSimulationFaultKeepsPartialResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Costs.Slippage = &jumpSlippage{}
	bars := generateUptrend("TEST", 20, 50)
	e := newEngine(t, cfg, crossoverStrategy(t), map[string][]types.Bar{"TEST": bars}, []string{"TEST"})

	res, err := e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsSimulationFault(err))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateFailed, e.State())
	assert.Equal(t, 21, res.BarsProcessed)
	assert.Len(t, res.Equity, 20)
	assert.NotEmpty(t, res.FaultMessage)

	// the faulting buy is not on the ledger
	assert.Empty(t, res.Fills)
	assert.Empty(t, res.OpenTrades)
	assert.True(t, e.Portfolio().Snapshot().Cash.Equal(decimal.NewFromInt(10000)))
	require.NoError(t, e.Portfolio().Reconcile())

	again, err := e.Run(context.Background())
	assert.True(t, errors.IsSimulationFault(err))
	assert.Equal(t, res.BarsProcessed, again.BarsProcessed)
}

func TestFaultingFillIsNotBooked(t *testing.T) {
	bars := generateFlat("AAA", 3, time.Hour)
	e := newEngine(t, DefaultConfig(), alwaysBuyStrategy(t), map[string][]types.Bar{"AAA": bars}, []string{"AAA"})
	intent := &types.OrderIntent{
		ID:             "oversized",
		Symbol:         "AAA",
		Direction:      types.DirectionBuy,
		Quantity:       decimal.NewFromInt(200),
		Kind:           types.OrderKindOpen,
		ReferencePrice: decimal.NewFromInt(100),
		CreatedAt:      t0,
	}

	err := e.execute(intent, bars[0], indicators.Snapshot{}, "")
	require.Error(t, err)
	assert.True(t, errors.IsSimulationFault(err))
	snap := e.Portfolio().Snapshot()
	assert.True(t, snap.Cash.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, snap.Positions)
	assert.Empty(t, e.Portfolio().Fills())

	intent.ID, intent.Quantity = "fits", decimal.NewFromInt(10)
	require.NoError(t, e.execute(intent, bars[0], indicators.Snapshot{}, ""))
	assert.Len(t, e.Portfolio().Fills(), 1)
}

// TestSizingCoversFillCosts tests that buys sized down to the last of the
// cash still pay their slippage and commission
func TestSizingCoversFillCosts(t *testing.T) {
	rcfg := risk.DefaultConfig()
	rcfg.SectorCapPct = 1
	rcfg.CashBuffer = 0
	rcfg.TargetVolatility = 0
	rm, err := risk.NewManager(rcfg)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Profile.MaxPositionPct = 1
	cfg.Costs = CostModel{CommissionRate: 0.002, MinCommission: 1, Slippage: VolatilityScaled{BaseBps: 200, ATRFraction: 0.5}}
	bars := generateVolatileData("AAA", 60, 0)
	e, err := NewEngine(cfg, alwaysBuyStrategy(t), rm, []BarStream{NewSliceStream("AAA", bars)})
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Greater(t, res.Rejections[risk.ReasonInsufficientCash]+len(res.Fills), 1)
	for _, pt := range res.Equity {
		assert.GreaterOrEqual(t, pt.Cash, 0.0, pt.Timestamp)
	}
	require.NoError(t, e.Portfolio().Reconcile())
}

// TestDataErrorTolerance tests isolation of bad bars up to the tolerance
func TestDataErrorTolerance(t *testing.T) {
	corrupt := func(n int) []types.Bar {
		bars := generateFlat("AAA", 40, time.Hour)
		for i := 0; i < n; i++ {
			bars[5+i*3].High = 50
		}
		return bars
	}

	cfg := DefaultConfig()
	cfg.DataErrorTolerance = 2
	res, err := newEngine(t, cfg, crossoverStrategy(t), map[string][]types.Bar{"AAA": corrupt(2)}, []string{"AAA"}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.DataErrors)
	assert.Equal(t, 38, res.BarsProcessed)

	res, err = newEngine(t, cfg, crossoverStrategy(t), map[string][]types.Bar{"AAA": corrupt(3)}, []string{"AAA"}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsDataError(err))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 3, res.DataErrors)
}

type cancelAfter struct {
	n      int
	seen   int
	cancel context.CancelFunc
}

func (c *cancelAfter) Observe(types.Bar) {
	c.seen++
	if c.seen == c.n {
		c.cancel()
	}
}

// TestCancelAndResume tests that cancellation pauses between bars and a later run resumes
func TestCancelAndResume(t *testing.T) {
	series := map[string][]types.Bar{"AAA": generateVolatileData("AAA", 120, 0)}
	reference, err := newEngine(t, DefaultConfig(), defaultStrategy(t), series, []string{"AAA"}).Run(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEngine(t, DefaultConfig(), defaultStrategy(t), series, []string{"AAA"}, WithBarObserver(&cancelAfter{n: 45, cancel: cancel}))

	partial, err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateRunning, e.State())
	assert.Equal(t, 45, partial.BarsProcessed)

	final, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, final.State)
	assert.Equal(t, reference.Equity, final.Equity)
	assert.Equal(t, reference.Fills, final.Fills)
}

func TestNewEngineValidation(t *testing.T) {
	strat := crossoverStrategy(t)
	rm := newRisk(t)
	bars := generateFlat("AAA", 5, time.Hour)

	_, err := NewEngine(DefaultConfig(), strat, rm, nil)
	assert.True(t, errors.IsConfigError(err))

	_, err = NewEngine(DefaultConfig(), strat, rm, []BarStream{NewSliceStream("AAA", bars), NewSliceStream("AAA", bars)})
	assert.True(t, errors.IsConfigError(err))

	_, err = NewEngine(DefaultConfig(), nil, rm, []BarStream{NewSliceStream("AAA", bars)})
	assert.True(t, errors.IsConfigError(err))

	bad := DefaultConfig()
	bad.InitialCash = 0
	_, err = NewEngine(bad, strat, rm, []BarStream{NewSliceStream("AAA", bars)})
	assert.True(t, errors.IsConfigError(err))

	bad = DefaultConfig()
	bad.Costs.CommissionRate = 1.5
	_, err = NewEngine(bad, strat, rm, []BarStream{NewSliceStream("AAA", bars)})
	assert.True(t, errors.IsConfigError(err))
}

func TestCostModel(t *testing.T) {
	c := CostModel{CommissionRate: 0.001, MinCommission: 1, Slippage: FixedBps(10)}
	assert.Equal(t, 1.0, c.Commission(100))
	assert.InDelta(t, 5.0, c.Commission(5000), 1e-12)

	bar := types.Bar{Close: 100}
	buy, slip := c.FillPrice(types.DirectionBuy, bar, indicators.Snapshot{})
	assert.InDelta(t, 100.1, buy, 1e-9)
	assert.InDelta(t, 0.1, slip, 1e-9)
	sell, _ := c.FillPrice(types.DirectionSell, bar, indicators.Snapshot{})
	assert.InDelta(t, 99.9, sell, 1e-9)

	vs := VolatilityScaled{BaseBps: 5, ATRFraction: 0.1}
	snap := indicators.Snapshot{Values: map[string]float64{"atr_14": 2}}
	assert.InDelta(t, 0.0005+0.1*2/100, vs.Slippage(bar, snap), 1e-12)
	assert.InDelta(t, 0.0005, vs.Slippage(bar, indicators.Snapshot{}), 1e-12)
}

func TestAffordableNotional(t *testing.T) {
	c := CostModel{CommissionRate: 0.001, MinCommission: 5}
	// rate-bound: fill notional n*1.02 plus 0.1% of it uses all the cash
	n := c.AffordableNotional(100, 102, 10000)
	assert.InDelta(t, 10000/(1.02*1.001), n, 1e-9)
	fill := n * 1.02
	assert.InDelta(t, 10000, fill+c.Commission(fill), 1e-6)

	// min-bound: 0.1% of a small fill is below the minimum
	n = c.AffordableNotional(100, 100, 100)
	assert.InDelta(t, 95, n, 1e-9)

	assert.Equal(t, 0.0, c.AffordableNotional(100, 100, 3))
	assert.Equal(t, 0.0, c.AffordableNotional(0, 100, 1000))
}

func TestLazyStreamRetriesFailedLoad(t *testing.T) {
	calls := 0
	s := NewLazyStream("AAA", func(ctx context.Context, symbol string) ([]types.Bar, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("temporary")
		}
		return generateFlat(symbol, 2, time.Hour), nil
	})
	_, err := s.Next(context.Background())
	require.Error(t, err)
	b, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AAA", b.Symbol)
	_, err = s.Next(context.Background())
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
