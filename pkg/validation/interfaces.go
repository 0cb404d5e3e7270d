package validation

// Package validation provides walk-forward validation of optimized parameters

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/optimization"
)

// OptimizeFunc tunes parameters on the train window
type OptimizeFunc func(ctx context.Context, train Window) (optimization.Params, *backtest.Results, error)

// BacktestFunc replays params over a window
type BacktestFunc func(ctx context.Context, w Window, p optimization.Params) (*backtest.Results, error)

// Config holds the configuration for walk-forward validation
type Config struct {
	Rolling      bool    `json:"rolling"`
	SplitRatio   float64 `json:"split_ratio"`
	TrainDays    int     `json:"train_days"`
	TestDays     int     `json:"test_days"`
	RollDays     int     `json:"roll_days"`
	MinTrainBars int     `json:"min_train_bars"`
	MinTestBars  int     `json:"min_test_bars"`
}

// DefaultConfig is a 70/30 holdout
func DefaultConfig() Config {
	return Config{
		SplitRatio:   0.7,
		TrainDays:    180,
		TestDays:     60,
		RollDays:     60,
		MinTrainBars: 50,
		MinTestBars:  10,
	}
}

func (c Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return errors.NewConfigError("validation", "Config.Validate", fmt.Sprintf(format, args...))
	}
	if c.MinTrainBars < 1 || c.MinTestBars < 1 {
		return fail("min_train_bars and min_test_bars must be >= 1")
	}
	if c.Rolling {
		if c.TrainDays < 1 || c.TestDays < 1 || c.RollDays < 1 {
			return fail("train_days, test_days and roll_days must be >= 1, got: %d/%d/%d", c.TrainDays, c.TestDays, c.RollDays)
		}
		return nil
	}
	if math.IsNaN(c.SplitRatio) || c.SplitRatio <= 0 || c.SplitRatio >= 1 {
		return fail("split_ratio must be in (0, 1), got: %.2f", c.SplitRatio)
	}
	return nil
}

// Window is the half-open interval [Start, End) holding Bars timestamps
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Bars  int       `json:"bars"`
}

func (w Window) String() string {
	return fmt.Sprintf("%s -> %s (%d bars)", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"), w.Bars)
}

// Fold is one train/test pair; Test starts where Train ends
type Fold struct {
	Index int    `json:"index"`
	Train Window `json:"train"`
	Test  Window `json:"test"`
}

// FoldResult holds the replays of one fold
type FoldResult struct {
	Fold          Fold                `json:"fold"`
	Params        optimization.Params `json:"params"`
	TrainResults  *backtest.Results   `json:"-"`
	TestResults   *backtest.Results   `json:"-"`
	TrainReturn   float64             `json:"train_return"`
	TestReturn    float64             `json:"test_return"`
	TrainDrawdown float64             `json:"train_drawdown"`
	TestDrawdown  float64             `json:"test_drawdown"`
}

// OverfittingRisk buckets the train-to-test return degradation
type OverfittingRisk string

const (
	RiskLow      OverfittingRisk = "LOW"
	RiskModerate OverfittingRisk = "MODERATE"
	RiskHigh     OverfittingRisk = "HIGH"
)

// Summary aggregates every fold. Returns and drawdowns are fractions.
type Summary struct {
	Rolling              bool            `json:"rolling"`
	Results              []FoldResult    `json:"results"`
	AverageTrainReturn   float64         `json:"average_train_return"`
	AverageTestReturn    float64         `json:"average_test_return"`
	TestReturnStdDev     float64         `json:"test_return_std_dev"`
	AverageTrainDrawdown float64         `json:"average_train_drawdown"`
	AverageTestDrawdown  float64         `json:"average_test_drawdown"`
	ProfitableTestFolds  int             `json:"profitable_test_folds"`
	ReturnDegradation    float64         `json:"return_degradation"`
	IsRobust             bool            `json:"is_robust"`
	OverfittingRisk      OverfittingRisk `json:"overfitting_risk"`
}
