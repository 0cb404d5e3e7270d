package optimization

// Package optimization tunes strategy and risk parameters with a genetic
// algorithm whose fitness is a full backtest replay

import (
	"context"
	"fmt"
	"math"

	"github.com/ducminhle1904/tradecore/internal/analytics"
	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/internal/errors"
)

// Evaluator replays one candidate parameter set
type Evaluator func(ctx context.Context, p Params) (*backtest.Results, error)

// FitnessFunc scores a replay; higher is better
type FitnessFunc func(res *backtest.Results) float64

// ReturnFitness scores by total return
func ReturnFitness(res *backtest.Results) float64 {
	return res.TotalReturn()
}

// SharpeFitness scores by the annualized Sharpe ratio of the equity curve
func SharpeFitness(periodsPerYear float64) FitnessFunc {
	return func(res *backtest.Results) float64 {
		return analytics.Sharpe(analytics.Returns(res.Equity), 0, periodsPerYear)
	}
}

// CalmarFitness scores by annualized return over maximum drawdown
func CalmarFitness(periodsPerYear float64) FitnessFunc {
	return func(res *backtest.Results) float64 {
		return analytics.Calmar(analytics.AnnualizedReturn(res.Equity, periodsPerYear), analytics.MaxDrawdown(res.Equity))
	}
}

// FitnessByName resolves return, sharpe or calmar
func FitnessByName(name string, periodsPerYear float64) (FitnessFunc, error) {
	switch name {
	case "", "return":
		return ReturnFitness, nil
	case "sharpe":
		return SharpeFitness(periodsPerYear), nil
	case "calmar":
		return CalmarFitness(periodsPerYear), nil
	}
	return nil, errors.NewConfigError("optimization", "FitnessByName", fmt.Sprintf("unknown fitness %q", name))
}

// Config holds the configuration for the genetic algorithm
type Config struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutation_rate"`
	GeneRate       float64 `json:"gene_rate"` // per-parameter chance once an individual mutates
	CrossoverRate  float64 `json:"crossover_rate"`
	EliteSize      int     `json:"elite_size"`
	TournamentSize int     `json:"tournament_size"`
	MaxWorkers     int     `json:"max_workers"`
	Seed           int64   `json:"seed"`
}

// DefaultConfig is sized for walk-forward windows of a few hundred bars
func DefaultConfig() Config {
	return Config{
		PopulationSize: 24,
		Generations:    15,
		MutationRate:   0.2,
		GeneRate:       0.25,
		CrossoverRate:  0.85,
		EliteSize:      4,
		TournamentSize: 2,
		MaxWorkers:     6,
		Seed:           1,
	}
}

// Validate returns a ConfigError for an unusable configuration
func (c Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return errors.NewConfigError("optimization", "Config.Validate", fmt.Sprintf(format, args...))
	}
	rate := func(v float64) bool { return !math.IsNaN(v) && v >= 0 && v <= 1 }
	switch {
	case c.PopulationSize < 2:
		return fail("population_size must be >= 2, got: %d", c.PopulationSize)
	case c.Generations < 1:
		return fail("generations must be >= 1, got: %d", c.Generations)
	case c.EliteSize < 0 || c.EliteSize >= c.PopulationSize:
		return fail("elite_size must be in [0, population_size), got: %d", c.EliteSize)
	case c.TournamentSize < 1:
		return fail("tournament_size must be >= 1, got: %d", c.TournamentSize)
	case !rate(c.MutationRate) || !rate(c.CrossoverRate) || !rate(c.GeneRate):
		return fail("mutation_rate, gene_rate and crossover_rate must be in [0,1]")
	case c.MaxWorkers < 0:
		return fail("max_workers must be >= 0, got: %d", c.MaxWorkers)
	}
	return nil
}

// GenerationStats summarizes one evaluated generation
type GenerationStats struct {
	Generation     int     `json:"generation"`
	BestFitness    float64 `json:"best_fitness"`
	AverageFitness float64 `json:"average_fitness"`
	Evaluations    int     `json:"evaluations"`
}

// Result is the best individual found plus per-generation progress
type Result struct {
	Best        *Individual       `json:"best"`
	Generations []GenerationStats `json:"generations"`
	Evaluations int               `json:"evaluations"`
}
