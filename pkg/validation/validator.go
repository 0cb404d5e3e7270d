package validation

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/analytics"
	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/internal/errors"
)

// Degradation thresholds between average train and test returns
const (
	ModerateDegradation = 0.15
	HighDegradation     = 0.30
)

// Validator optimizes on each train window and replays the winner on the
// following test window
type Validator struct {
	optimize OptimizeFunc
	backtest BacktestFunc
	logger   *zap.Logger
}

func NewValidator(optimize OptimizeFunc, bt BacktestFunc, logger *zap.Logger) (*Validator, error) {
	if optimize == nil || bt == nil {
		return nil, errors.NewConfigError("validation", "NewValidator", "optimizer and backtester are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{optimize: optimize, backtest: bt, logger: logger}, nil
}

// Folds builds the folds cfg describes over sorted bar timestamps
func Folds(times []time.Time, cfg Config) ([]Fold, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Rolling {
		day := 24 * time.Hour
		folds := CreateRollingFolds(times,
			time.Duration(cfg.TrainDays)*day, time.Duration(cfg.TestDays)*day, time.Duration(cfg.RollDays)*day,
			cfg.MinTrainBars, cfg.MinTestBars)
		if len(folds) == 0 {
			return nil, errors.NewDataError("validation", "Folds", "not enough data for rolling walk-forward validation").
				WithContext("bars", len(times))
		}
		return folds, nil
	}
	train, test, ok := SplitByRatio(times, cfg.SplitRatio)
	if !ok || train.Bars < cfg.MinTrainBars || test.Bars < cfg.MinTestBars {
		return nil, errors.NewDataError("validation", "Folds", "not enough data for holdout validation").
			WithContext("bars", len(times))
	}
	return []Fold{{Index: 1, Train: train, Test: test}}, nil
}

// Validate runs every fold in order. A failed fold aborts the validation.
func (v *Validator) Validate(ctx context.Context, times []time.Time, cfg Config) (*Summary, error) {
	folds, err := Folds(times, cfg)
	if err != nil {
		return nil, err
	}
	mode := "holdout"
	if cfg.Rolling {
		mode = "rolling"
	}
	v.logger.Info("walk-forward validation", zap.String("mode", mode), zap.Int("folds", len(folds)))

	results := make([]FoldResult, 0, len(folds))
	for _, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		params, trainRes, err := v.optimize(ctx, fold.Train)
		if err != nil {
			return nil, fmt.Errorf("optimization failed for fold %d: %w", fold.Index, err)
		}
		testRes, err := v.backtest(ctx, fold.Test, params)
		if err != nil {
			return nil, fmt.Errorf("test replay failed for fold %d: %w", fold.Index, err)
		}

		r := FoldResult{Fold: fold, Params: params, TrainResults: trainRes, TestResults: testRes}
		r.TrainReturn, r.TrainDrawdown = performance(trainRes)
		r.TestReturn, r.TestDrawdown = performance(testRes)
		results = append(results, r)

		v.logger.Info("fold complete",
			zap.Int("fold", fold.Index),
			zap.Stringer("train", fold.Train),
			zap.Stringer("test", fold.Test),
			zap.Float64("train_return", r.TrainReturn),
			zap.Float64("test_return", r.TestReturn))
	}

	s := Summarize(results)
	s.Rolling = cfg.Rolling
	return s, nil
}

func performance(res *backtest.Results) (ret, drawdown float64) {
	if res == nil {
		return 0, 0
	}
	return res.TotalReturn(), analytics.MaxDrawdown(res.Equity)
}

// Summarize averages the folds and classifies overfitting risk
func Summarize(results []FoldResult) *Summary {
	s := &Summary{Results: results, OverfittingRisk: RiskLow, IsRobust: true}
	if len(results) == 0 {
		return s
	}
	var trainR, testR, trainDD, testDD []float64
	for _, r := range results {
		trainR = append(trainR, r.TrainReturn)
		testR = append(testR, r.TestReturn)
		trainDD = append(trainDD, r.TrainDrawdown)
		testDD = append(testDD, r.TestDrawdown)
		if r.TestReturn > 0 {
			s.ProfitableTestFolds++
		}
	}
	s.AverageTrainReturn = average(trainR)
	s.AverageTestReturn = average(testR)
	s.TestReturnStdDev = stdDev(testR)
	s.AverageTrainDrawdown = average(trainDD)
	s.AverageTestDrawdown = average(testDD)

	s.ReturnDegradation = (s.AverageTrainReturn - s.AverageTestReturn) / math.Max(0.0001, math.Abs(s.AverageTrainReturn))
	switch {
	case s.ReturnDegradation > HighDegradation:
		s.OverfittingRisk = RiskHigh
	case s.ReturnDegradation > ModerateDegradation:
		s.OverfittingRisk = RiskModerate
	}
	s.IsRobust = s.ReturnDegradation <= HighDegradation
	return s
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	avg := average(values)
	sumSquares := 0.0
	for _, v := range values {
		d := v - avg
		sumSquares += d * d
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
