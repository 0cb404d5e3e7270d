package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

func TestRunComparison(t *testing.T) {
	bars := generateVolatileData("AAA", 120, 0)
	build := func(strat strategy.Strategy) func() (*Engine, error) {
		return func() (*Engine, error) {
			return NewEngine(DefaultConfig(), strat, newRisk(t), []BarStream{NewSliceStream("AAA", bars)})
		}
	}
	jobs := []Job{
		{ID: "crossover", Build: build(crossoverStrategy(t))},
		{ID: "broken", Build: func() (*Engine, error) {
			return nil, errors.NewConfigError("test", "build", "bad job")
		}},
		{ID: "default", Build: build(defaultStrategy(t))},
	}

	out, err := RunComparison(context.Background(), jobs, 2, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, r := range out {
		assert.Equal(t, jobs[i].ID, r.ID)
		assert.Equal(t, i, r.Index)
	}
	require.NoError(t, out[0].Error)
	assert.Equal(t, StateCompleted, out[0].Results.State)
	assert.True(t, errors.IsConfigError(out[1].Error))
	require.NoError(t, out[2].Error)
	assert.Equal(t, "rules", out[2].Results.Strategy)

	single, err := NewEngine(DefaultConfig(), crossoverStrategy(t), newRisk(t), []BarStream{NewSliceStream("AAA", bars)})
	require.NoError(t, err)
	alone, err := single.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, alone.Equity, out[0].Results.Equity)
}

func TestRunComparisonRejectsBadJobs(t *testing.T) {
	_, err := RunComparison(context.Background(), []Job{{ID: "a"}}, 1, nil)
	assert.True(t, errors.IsConfigError(err))

	noop := func() (*Engine, error) { return nil, nil }
	_, err = RunComparison(context.Background(), []Job{{ID: "a", Build: noop}, {ID: "a", Build: noop}}, 1, nil)
	assert.True(t, errors.IsConfigError(err))

	out, err := RunComparison(context.Background(), nil, 1, nil)
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestParallelVisitsEveryIndex(t *testing.T) {
	seen := make([]types.Direction, 37)
	parallel(len(seen), 5, func(i int) { seen[i] = types.DirectionBuy })
	for _, d := range seen {
		assert.Equal(t, types.DirectionBuy, d)
	}

	progress := NewProgressTracker(4)
	progress.Increment()
	done, total, pct, _ := progress.GetProgress()
	assert.Equal(t, 1, done)
	assert.Equal(t, 4, total)
	assert.InDelta(t, 25, pct, 1e-9)
}
