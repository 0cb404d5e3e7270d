package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/analytics"
	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/internal/exchange/bybit"
	"github.com/ducminhle1904/tradecore/internal/risk"
	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/config"
	"github.com/ducminhle1904/tradecore/pkg/data"
	"github.com/ducminhle1904/tradecore/pkg/model"
	"github.com/ducminhle1904/tradecore/pkg/optimization"
	"github.com/ducminhle1904/tradecore/pkg/reporting"
	"github.com/ducminhle1904/tradecore/pkg/types"
	"github.com/ducminhle1904/tradecore/pkg/validation"
)

// runner builds fresh engines over a shared bar source. Loaded bars are kept
// for the buy-and-hold benchmark.
type runner struct {
	cfg       *config.Config
	logger    *zap.Logger
	source    data.BarSource
	profiles  *config.ProfileStore
	predictor model.Predictor
	start     time.Time
	end       time.Time

	mu   sync.Mutex
	bars map[string][]types.Bar
}

func newRunner(cfg *config.Config, source data.BarSource, predictor model.Predictor, logger *zap.Logger) (*runner, error) {
	profiles, err := cfg.ProfileStore()
	if err != nil {
		return nil, err
	}
	start, end, err := cfg.Data.Range()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &runner{
		cfg:       cfg,
		logger:    logger,
		source:    source,
		profiles:  profiles,
		predictor: predictor,
		start:     start,
		end:       end,
		bars:      make(map[string][]types.Bar),
	}, nil
}

// buildSource selects the configured bar source
func buildSource(cfg *config.Config, logger *zap.Logger) (data.BarSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := cfg.Data
	var src data.BarSource
	switch strings.ToLower(d.Source) {
	case "", "csv":
		src = data.NewCSVSource(d.Root, d.Exchange, d.Category, d.Interval,
			data.WithFiles(d.Files), data.WithCSVLogger(logger))
	case "bybit":
		b := cfg.Exchange.Bybit
		client := bybit.NewClient(bybit.Config{APIKey: b.APIKey, APISecret: b.APISecret, Testnet: b.Testnet, BaseURL: b.BaseURL})
		bs, err := data.NewBybitSource(client, d.Category, d.Interval, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using bybit klines", zap.String("environment", client.GetEnvironment()))
		src = bs
	default:
		return nil, fmt.Errorf("unknown data source %q", d.Source)
	}
	if d.Cache {
		src = data.NewCachedSource(src)
	}
	return src, nil
}

// variant is one replay of the configured strategy: a risk profile, an
// optional parameter override and the date window [start, end)
type variant struct {
	runID   string
	profile string
	params  optimization.Params
	start   time.Time
	end     time.Time
}

func (r *runner) variant(profile, runID string) variant {
	return variant{runID: runID, profile: profile, start: r.start, end: r.end}
}

// loadRange reads bars for [start, end). Bars of the full run range are kept
// for the benchmark.
func (r *runner) loadRange(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	bars, err := r.source.BarsFor(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if start.Equal(r.start) && end.Equal(r.end) {
		r.mu.Lock()
		r.bars[symbol] = bars
		r.mu.Unlock()
	}
	r.logger.Debug("bars loaded", zap.String("symbol", symbol), zap.Int("bars", len(bars)))
	return bars, nil
}

// engine builds a fresh replay for v
func (r *runner) engine(v variant) (*backtest.Engine, error) {
	profile, err := r.profiles.Profile(v.profile)
	if err != nil {
		return nil, err
	}
	stratCfg, err := r.cfg.StrategySettings()
	if err != nil {
		return nil, err
	}
	if v.params != nil {
		if stratCfg, profile, err = optimization.Apply(v.params, stratCfg, profile); err != nil {
			return nil, err
		}
	}
	strat, err := strategy.New(stratCfg, r.logger, r.predictor)
	if err != nil {
		return nil, err
	}

	riskOpts := []risk.Option{risk.WithLogger(r.logger)}
	engineOpts := []backtest.Option{backtest.WithLogger(r.logger)}
	if w := r.cfg.Risk.CorrelationWindow; w > 0 {
		corr := risk.NewReturnCorrelations(w)
		riskOpts = append(riskOpts, risk.WithCorrelations(corr))
		engineOpts = append(engineOpts, backtest.WithBarObserver(corr))
	}
	rm, err := risk.NewManager(r.cfg.Risk.Config, riskOpts...)
	if err != nil {
		return nil, err
	}

	start, end := v.start, v.end
	load := func(ctx context.Context, symbol string) ([]types.Bar, error) {
		return r.loadRange(ctx, symbol, start, end)
	}
	streams := make([]backtest.BarStream, 0, len(r.cfg.Data.Symbols))
	for _, sym := range r.cfg.Data.Symbols {
		streams = append(streams, backtest.NewLazyStream(sym, load))
	}

	settings := r.cfg.EngineSettings(profile)
	if v.runID != "" {
		settings.RunID = v.runID
	}
	return backtest.NewEngine(settings, strat, rm, streams, engineOpts...)
}

func (r *runner) replay(ctx context.Context, v variant) (*backtest.Results, error) {
	e, err := r.engine(v)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}

// runSingle replays the configured profile
func (r *runner) runSingle(ctx context.Context) (reporting.Run, error) {
	res, runErr := r.replay(ctx, r.variant(r.cfg.Backtest.Profile, ""))
	if res == nil {
		return reporting.Run{}, runErr
	}
	run, err := r.analyze(res)
	if err != nil {
		return run, err
	}
	return run, runErr
}

// runComparison replays every named profile in parallel, keeping input order.
// A failed replay keeps its partial results; a job that could not be built is skipped.
func (r *runner) runComparison(ctx context.Context, profiles []string) ([]reporting.Run, error) {
	base := r.cfg.Backtest.RunID
	if base == "" {
		base = "backtest"
	}
	jobs := make([]backtest.Job, len(profiles))
	for i, name := range profiles {
		id := base + "-" + name
		v := r.variant(name, id)
		jobs[i] = backtest.Job{ID: id, Build: func() (*backtest.Engine, error) { return r.engine(v) }}
	}

	workers := r.cfg.Backtest.Workers
	if workers < 1 {
		workers = len(jobs)
	}
	results, err := backtest.RunComparison(ctx, jobs, workers, r.logger)
	if err != nil {
		return nil, err
	}

	runs := make([]reporting.Run, 0, len(results))
	for _, jr := range results {
		if jr.Results == nil {
			r.logger.Error("comparison job failed", zap.String("job", jr.ID), zap.Error(jr.Error))
			continue
		}
		if jr.Error != nil {
			r.logger.Warn("comparison job ended early", zap.String("job", jr.ID), zap.Error(jr.Error))
		}
		run, err := r.analyze(jr.Results)
		if err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// search runs the genetic optimizer over [start, end) for the configured profile
func (r *runner) search(ctx context.Context, start, end time.Time, runID string) (*optimization.Result, error) {
	ranges, err := r.cfg.OptimizationRanges()
	if err != nil {
		return nil, err
	}
	stratCfg, err := r.cfg.StrategySettings()
	if err != nil {
		return nil, err
	}
	profile, err := r.profiles.Profile(r.cfg.Backtest.Profile)
	if err != nil {
		return nil, err
	}
	opts, err := r.analyticsOptions()
	if err != nil {
		return nil, err
	}
	fitness, err := optimization.FitnessByName(r.cfg.Optimization.Fitness, opts.PeriodsPerYear)
	if err != nil {
		return nil, err
	}

	evaluate := func(ctx context.Context, p optimization.Params) (*backtest.Results, error) {
		return r.replay(ctx, variant{runID: runID, profile: r.cfg.Backtest.Profile, params: p, start: start, end: end})
	}
	opt, err := optimization.NewOptimizer(r.cfg.Optimization.GA, ranges, evaluate,
		optimization.WithFitness(fitness), optimization.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	return opt.Optimize(ctx, optimization.Baseline(ranges, stratCfg, profile))
}

// runOptimization searches the full range, then replays the best parameters
func (r *runner) runOptimization(ctx context.Context) (reporting.Run, *optimization.Result, error) {
	base := r.cfg.Backtest.RunID
	if base == "" {
		base = "backtest"
	}
	res, err := r.search(ctx, r.start, r.end, base+"-search")
	if err != nil {
		return reporting.Run{}, res, err
	}
	if res.Best == nil || res.Best.Err != nil {
		return reporting.Run{}, res, fmt.Errorf("no candidate completed a replay")
	}
	r.logger.Info("best parameters", zap.Stringer("params", res.Best.Params), zap.Float64("fitness", res.Best.Fitness))

	v := r.variant(r.cfg.Backtest.Profile, base+"-optimized")
	v.params = res.Best.Params
	final, runErr := r.replay(ctx, v)
	if final == nil {
		return reporting.Run{}, res, runErr
	}
	run, err := r.analyze(final)
	if err != nil {
		return run, res, err
	}
	return run, res, runErr
}

// timestamps loads every symbol over the run range and returns the sorted,
// distinct bar timestamps
func (r *runner) timestamps(ctx context.Context) ([]time.Time, error) {
	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, sym := range r.cfg.Data.Symbols {
		bars, err := r.loadRange(ctx, sym, r.start, r.end)
		if err != nil {
			return nil, err
		}
		for _, b := range bars {
			if !seen[b.Timestamp] {
				seen[b.Timestamp] = true
				out = append(out, b.Timestamp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// runWalkForward optimizes on every train window and replays the winner on
// the test window that follows it
func (r *runner) runWalkForward(ctx context.Context) (*validation.Summary, error) {
	times, err := r.timestamps(ctx)
	if err != nil {
		return nil, err
	}
	base := r.cfg.Backtest.RunID
	if base == "" {
		base = "backtest"
	}

	optimize := func(ctx context.Context, train validation.Window) (optimization.Params, *backtest.Results, error) {
		res, err := r.search(ctx, train.Start, train.End, base+"-wf-train")
		if err != nil {
			return nil, nil, err
		}
		if res.Best == nil || res.Best.Err != nil {
			return nil, nil, fmt.Errorf("no candidate completed a replay on %s", train)
		}
		return res.Best.Params, res.Best.Results, nil
	}
	replay := func(ctx context.Context, test validation.Window, p optimization.Params) (*backtest.Results, error) {
		return r.replay(ctx, variant{runID: base + "-wf-test", profile: r.cfg.Backtest.Profile, params: p, start: test.Start, end: test.End})
	}
	v, err := validation.NewValidator(optimize, replay, r.logger)
	if err != nil {
		return nil, err
	}
	return v.Validate(ctx, times, r.cfg.Optimization.WalkForward)
}

func (r *runner) analyticsOptions() (analytics.Options, error) {
	opts := analytics.DefaultOptions()
	if ppy := r.cfg.Strategy.PeriodsPerYear; ppy > 0 {
		opts.PeriodsPerYear = ppy
		return opts, nil
	}
	iv, err := data.IntervalDuration(r.cfg.Data.Interval)
	if err != nil {
		return opts, err
	}
	// crypto trades around the clock
	opts.PeriodsPerYear = float64(365*24*time.Hour) / float64(iv)
	return opts, nil
}

func (r *runner) analyze(res *backtest.Results) (reporting.Run, error) {
	run := reporting.Run{Results: res, Symbols: r.cfg.Data.Symbols, Interval: r.cfg.Data.Interval}
	opts, err := r.analyticsOptions()
	if err != nil {
		return run, err
	}
	run.Report, err = analytics.Compute(res.Equity, res.Trades, r.benchmark(res.Equity), opts)
	return run, err
}

// benchmark is buy-and-hold of a single symbol, aligned to the equity curve.
// It is nil for multi-symbol runs or when a timestamp has no bar.
func (r *runner) benchmark(curve []types.EquityPoint) []float64 {
	if len(r.cfg.Data.Symbols) != 1 || len(curve) < 2 {
		return nil
	}
	r.mu.Lock()
	bars := r.bars[r.cfg.Data.Symbols[0]]
	r.mu.Unlock()

	byTime := make(map[time.Time]types.Bar, len(bars))
	for _, b := range bars {
		byTime[b.Timestamp] = b
	}
	aligned := make([]types.Bar, 0, len(curve))
	for _, p := range curve {
		b, ok := byTime[p.Timestamp]
		if !ok || b.Close <= 0 {
			return nil
		}
		aligned = append(aligned, b)
	}
	return analytics.BenchmarkReturns(aligned)
}
