package optimization

import (
	"context"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

// ProgressReportInterval is how often, in generations, progress is logged at info level
const ProgressReportInterval = 3

// Optimizer runs the genetic algorithm. It is not safe for concurrent Optimize calls.
type Optimizer struct {
	cfg      Config
	ranges   Ranges
	ops      *Operators
	evaluate Evaluator
	fitness  FitnessFunc
	logger   *zap.Logger
	rng      *rand.Rand

	mu    sync.Mutex
	memo  map[string]*Individual
	evals int
}

// Option configures an Optimizer
type Option func(*Optimizer)

func WithFitness(f FitnessFunc) Option {
	return func(o *Optimizer) {
		if f != nil {
			o.fitness = f
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOptimizer validates cfg and ranges. Fitness defaults to total return.
func NewOptimizer(cfg Config, ranges Ranges, evaluate Evaluator, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ranges.Validate(); err != nil {
		return nil, err
	}
	if evaluate == nil {
		return nil, errors.NewConfigError("optimization", "NewOptimizer", "evaluator is required")
	}
	o := &Optimizer{
		cfg:      cfg,
		ranges:   ranges,
		ops:      NewOperators(ranges),
		evaluate: evaluate,
		fitness:  ReturnFitness,
		logger:   zap.NewNop(),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		memo:     make(map[string]*Individual),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Optimize evolves a population seeded with base and returns the best
// individual seen. On cancellation it returns the best so far with ctx's error.
func (o *Optimizer) Optimize(ctx context.Context, base Params) (*Result, error) {
	pop := o.initialPopulation(base)
	res := &Result{}

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := o.evaluatePopulation(ctx, pop); err != nil {
			return o.finish(res, pop), err
		}
		pop.SortByFitness()
		if best := pop.Best(); res.Best == nil || best.Fitness > res.Best.Fitness {
			res.Best = best.Copy()
		}

		stats := GenerationStats{
			Generation:     gen + 1,
			BestFitness:    res.Best.Fitness,
			AverageFitness: pop.AverageFitness(),
			Evaluations:    o.evaluations(),
		}
		res.Generations = append(res.Generations, stats)
		log := o.logger.Debug
		if (gen+1)%ProgressReportInterval == 0 || gen == o.cfg.Generations-1 {
			log = o.logger.Info
		}
		log("generation evaluated",
			zap.Int("generation", stats.Generation),
			zap.Float64("best", stats.BestFitness),
			zap.Float64("average", stats.AverageFitness),
			zap.Int("evaluations", stats.Evaluations))

		if gen < o.cfg.Generations-1 {
			pop = o.nextGeneration(pop)
		}
	}
	return o.finish(res, pop), nil
}

func (o *Optimizer) finish(res *Result, pop *Population) *Result {
	if best := pop.Best(); best != nil && best.evaluated && (res.Best == nil || best.Fitness > res.Best.Fitness) {
		res.Best = best.Copy()
	}
	res.Evaluations = o.evaluations()
	return res
}

func (o *Optimizer) evaluations() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.evals
}

func (o *Optimizer) initialPopulation(base Params) *Population {
	inds := make([]*Individual, o.cfg.PopulationSize)
	inds[0] = NewIndividual(base)
	for i := 1; i < len(inds); i++ {
		inds[i] = o.ops.Random(base, o.rng)
	}
	return NewPopulation(inds)
}

// evaluatePopulation replays every pending individual on a bounded worker pool.
// Each distinct parameter set is replayed once; duplicates reuse its result.
func (o *Optimizer) evaluatePopulation(ctx context.Context, pop *Population) error {
	workers := o.cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	slots := make(chan struct{}, workers)

	var duplicates []*Individual
	scheduled := make(map[string]bool)
	for _, ind := range pop.Pending() {
		if ctx.Err() != nil {
			break
		}
		if cached, ok := o.cached(ind.Params); ok {
			ind.setEvaluation(cached.Fitness, cached.Results, cached.Err)
			continue
		}
		key := ind.Params.Key()
		if scheduled[key] {
			duplicates = append(duplicates, ind)
			continue
		}
		scheduled[key] = true

		wg.Add(1)
		go func(ind *Individual) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()

			if ctx.Err() != nil {
				return
			}
			results, err := o.evaluate(ctx, ind.Params)
			fitness := 0.0
			if err == nil && results != nil {
				fitness = o.fitness(results)
			} else if err == nil {
				err = errors.NewSimulationFault("optimization", "evaluate", "evaluator returned no results")
			}
			if err != nil && ctx.Err() != nil {
				return
			}
			ind.setEvaluation(fitness, results, err)
			if err != nil {
				o.logger.Warn("candidate failed", zap.String("params", ind.Params.Key()), zap.Error(err))
			}
			o.remember(ind)
		}(ind)
	}
	wg.Wait()

	for _, ind := range duplicates {
		if cached, ok := o.cached(ind.Params); ok {
			ind.setEvaluation(cached.Fitness, cached.Results, cached.Err)
		}
	}
	return ctx.Err()
}

func (o *Optimizer) cached(p Params) (*Individual, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ind, ok := o.memo[p.Key()]
	return ind, ok
}

func (o *Optimizer) remember(ind *Individual) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.memo[ind.Params.Key()] = ind.Copy()
	o.evals++
}

// nextGeneration keeps the elite and breeds the rest by tournament,
// crossover and mutation. pop must be sorted.
func (o *Optimizer) nextGeneration(pop *Population) *Population {
	next := pop.Elite(o.cfg.EliteSize)
	for len(next) < o.cfg.PopulationSize {
		p1 := o.ops.Select(pop, o.cfg.TournamentSize, o.rng)
		p2 := o.ops.Select(pop, o.cfg.TournamentSize, o.rng)
		child := o.ops.Crossover(p1, p2, o.cfg.CrossoverRate, o.rng)
		o.ops.Mutate(child, o.cfg.MutationRate, o.cfg.GeneRate, o.rng)
		next = append(next, child)
	}
	return NewPopulation(next)
}
