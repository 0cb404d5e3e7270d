package optimization

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/internal/rules"
	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// peakEvaluator rewards min_confidence close to 0.3 and stop loss close to 0.02
type peakEvaluator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (e *peakEvaluator) eval(_ context.Context, p Params) (*backtest.Results, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[p.Key()]++
	e.mu.Unlock()

	score := 1 - math.Abs(p[ParamMinConfidence]-0.3) - 10*math.Abs(p[ParamStopLoss]-0.02)
	return &backtest.Results{InitialCash: 1000, FinalValue: 1000 * (1 + score)}, nil
}

func testRanges() Ranges {
	return Ranges{
		ParamMinConfidence: {0, 0.1, 0.2, 0.3, 0.4, 0.5},
		ParamStopLoss:      {0.01, 0.02, 0.03, 0.05},
	}
}

func TestOptimizerFindsPeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generations = 12
	ev := &peakEvaluator{}
	opt, err := NewOptimizer(cfg, testRanges(), ev.eval)
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), Params{ParamMinConfidence: 0, ParamStopLoss: 0.05})
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.Equal(t, 0.3, res.Best.Params[ParamMinConfidence])
	assert.Equal(t, 0.02, res.Best.Params[ParamStopLoss])
	assert.InDelta(t, 1.0, res.Best.Fitness, 1e-9)
	assert.Len(t, res.Generations, 12)

	for i := 1; i < len(res.Generations); i++ {
		assert.GreaterOrEqual(t, res.Generations[i].BestFitness, res.Generations[i-1].BestFitness)
	}
	for key, n := range ev.calls {
		assert.Equal(t, 1, n, "parameter set %s replayed more than once", key)
	}
	assert.Equal(t, len(ev.calls), res.Evaluations)
	assert.LessOrEqual(t, res.Evaluations, 24, "only 24 distinct parameter sets exist")
}

func TestOptimizerIsReproducible(t *testing.T) {
	run := func() *Result {
		cfg := DefaultConfig()
		cfg.Generations = 4
		cfg.Seed = 42
		ev := &peakEvaluator{}
		opt, err := NewOptimizer(cfg, testRanges(), ev.eval)
		require.NoError(t, err)
		res, err := opt.Optimize(context.Background(), Params{ParamMinConfidence: 0.5, ParamStopLoss: 0.05})
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Best.Params, b.Best.Params)
	assert.Equal(t, a.Generations, b.Generations)
}

func TestOptimizerFailedCandidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generations = 3
	failing := func(_ context.Context, p Params) (*backtest.Results, error) {
		if p[ParamStopLoss] > 0.02 {
			return nil, assert.AnError
		}
		return &backtest.Results{InitialCash: 100, FinalValue: 100 + 1000*p[ParamStopLoss]}, nil
	}
	opt, err := NewOptimizer(cfg, testRanges(), failing)
	require.NoError(t, err)
	res, err := opt.Optimize(context.Background(), Params{ParamMinConfidence: 0, ParamStopLoss: 0.05})
	require.NoError(t, err)
	assert.Equal(t, 0.02, res.Best.Params[ParamStopLoss])
	assert.NoError(t, res.Best.Err)
}

func TestOptimizerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	var mu sync.Mutex
	eval := func(_ context.Context, p Params) (*backtest.Results, error) {
		mu.Lock()
		calls++
		if calls == 5 {
			cancel()
		}
		mu.Unlock()
		return &backtest.Results{InitialCash: 1, FinalValue: 1}, nil
	}
	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	opt, err := NewOptimizer(cfg, testRanges(), eval)
	require.NoError(t, err)

	res, err := opt.Optimize(ctx, Params{ParamMinConfidence: 0, ParamStopLoss: 0.01})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Generations)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.EliteSize = bad.PopulationSize
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MutationRate = 1.5
	assert.Error(t, bad.Validate())

	_, err := NewOptimizer(DefaultConfig(), testRanges(), nil)
	assert.Error(t, err)
	_, err = NewOptimizer(DefaultConfig(), Ranges{"leverage": {1}}, (&peakEvaluator{}).eval)
	assert.Error(t, err)
	_, err = NewOptimizer(DefaultConfig(), Ranges{ParamStopLoss: nil}, (&peakEvaluator{}).eval)
	assert.Error(t, err)
}

func TestOperators(t *testing.T) {
	ops := NewOperators(testRanges())
	rng := rand.New(rand.NewSource(7))

	a := &Individual{Params: Params{ParamMinConfidence: 0, ParamStopLoss: 0.01}}
	b := &Individual{Params: Params{ParamMinConfidence: 0.5, ParamStopLoss: 0.05}}
	for i := 0; i < 50; i++ {
		child := ops.Crossover(a, b, 1, rng)
		assert.Contains(t, []float64{0, 0.5}, child.Params[ParamMinConfidence])
		assert.Contains(t, []float64{0.01, 0.05}, child.Params[ParamStopLoss])
	}
	assert.Equal(t, a.Params, ops.Crossover(a, b, 0, rng).Params)

	m := a.Copy()
	m.setEvaluation(3, nil, nil)
	ops.Mutate(m, 1, 0, rng)
	assert.False(t, m.Evaluated())

	untouched := a.Copy()
	ops.Mutate(untouched, 0, 1, rng)
	assert.Equal(t, a.Params, untouched.Params)

	scored := func(f float64) *Individual {
		ind := &Individual{Params: Params{}}
		ind.setEvaluation(f, nil, nil)
		return ind
	}
	failed := &Individual{Params: Params{}}
	failed.setEvaluation(0, nil, assert.AnError)
	assert.Equal(t, FailedFitness, failed.Fitness)

	pop := NewPopulation([]*Individual{scored(1), scored(5), scored(3), failed})
	assert.Equal(t, 5.0, ops.Select(pop, 50, rng).Fitness)
	assert.Equal(t, 5.0, pop.Best().Fitness)
	assert.InDelta(t, 3.0, pop.AverageFitness(), 1e-9, "failed candidates are not averaged")
	elite := pop.Elite(2)
	assert.Equal(t, []float64{5, 3}, []float64{elite[0].Fitness, elite[1].Fitness})
}

func TestParamsKeyIsCanonical(t *testing.T) {
	a := Params{"b": 2, "a": 1}
	b := Params{"a": 1, "b": 2}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "a=1;b=2", a.Key())
}

func TestRangesBaselineApply(t *testing.T) {
	sc := strategy.DefaultConfig()
	sc.Weights = map[string]float64{"rsi_momentum": 2}
	profile := types.DefaultRiskProfile()

	ranges := DefaultRanges(sc.Rules)
	require.NoError(t, ranges.Validate())
	assert.Contains(t, ranges, WeightPrefix+"sma_crossover")
	assert.NotContains(t, ranges, WeightPrefix+"volatility_filter", "veto hooks carry no weight")

	base := Baseline(ranges, sc, profile)
	assert.Equal(t, 2.0, base[WeightPrefix+"rsi_momentum"])
	assert.Equal(t, 1.0, base[WeightPrefix+"volume_spike"])
	assert.Equal(t, profile.StopLossPct, base[ParamStopLoss])

	p := base.Copy()
	p[ParamMinConfidence] = 0.4
	p[ParamTakeProfit] = 0.08
	p[WeightPrefix+"sma_crossover"] = 3
	s2, prof2, err := Apply(p, sc, profile)
	require.NoError(t, err)
	assert.Equal(t, 0.4, s2.Signal.MinConfidence)
	assert.Equal(t, 0.08, prof2.TakeProfitPct)
	assert.Equal(t, 3.0, s2.Weights["sma_crossover"])
	assert.Len(t, sc.Weights, 1, "input weights are not modified")

	_, err = strategy.New(s2, nil, nil)
	assert.NoError(t, err)

	_, _, err = Apply(Params{ParamStopLoss: 2}, sc, profile)
	assert.Error(t, err)
	_, _, err = Apply(Params{"bogus": 1}, sc, profile)
	assert.Error(t, err)

	custom := DefaultRanges([]rules.Rule{rules.NewMomentumRule("rsi", 14, 70, 30)})
	assert.Contains(t, custom, WeightPrefix+"rsi")
}
