package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/cmd/common"
	"github.com/ducminhle1904/tradecore/internal/logger"
	"github.com/ducminhle1904/tradecore/pkg/config"
	"github.com/ducminhle1904/tradecore/pkg/model"
	"github.com/ducminhle1904/tradecore/pkg/reporting"
	"github.com/ducminhle1904/tradecore/pkg/sink"
)

// cliFlags are the overrides accepted on top of the config file
type cliFlags struct {
	common      *common.CommonFlags
	symbols     *string
	interval    *string
	source      *string
	dataRoot    *string
	start       *string
	end         *string
	profile     *string
	compare     *string
	formats     *string
	consoleOnly *bool
	metrics     *string

	optimize    *bool
	walkForward *bool
	rolling     *bool
	split       *float64
	trainDays   *int
	testDays    *int
	rollDays    *int
	generations *int
	population  *int
	fitness     *string
	seed        *int64
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		common:      common.RegisterCommonFlags(fs),
		symbols:     fs.String("symbols", "", "Comma separated symbols (overrides config)"),
		interval:    fs.String("interval", "", "Bar interval, e.g. 15m, 1h, 4h, 1d"),
		source:      fs.String("source", "", "Bar source: csv or bybit"),
		dataRoot:    fs.String("data-root", "", "Root folder containing <EXCHANGE>/<CATEGORY>/<SYMBOL>/<INTERVAL>/candles.csv"),
		start:       fs.String("start", "", "First day to replay (YYYY-MM-DD)"),
		end:         fs.String("end", "", "Day to stop before (YYYY-MM-DD)"),
		profile:     fs.String("profile", "", "Risk profile to replay"),
		compare:     fs.String("compare", "", "Comma separated risk profiles to replay side by side, or \"all\""),
		formats:     fs.String("formats", "", "Report formats: console,csv,json,excel"),
		consoleOnly: fs.Bool("console-only", false, "Only print to the console, do not write report files"),
		metrics:     fs.String("metrics", "", "Serve Prometheus metrics on this address while running"),

		optimize:    fs.Bool("optimize", false, "Search rule weights, signal threshold and profile limits with the genetic optimizer"),
		walkForward: fs.Bool("walk-forward", false, "Optimize on train windows and replay on the following test windows"),
		rolling:     fs.Bool("rolling", false, "Use rolling walk-forward folds instead of a single holdout split"),
		split:       fs.Float64("split", 0, "Holdout train fraction, e.g. 0.7"),
		trainDays:   fs.Int("train-days", 0, "Rolling walk-forward train window in days"),
		testDays:    fs.Int("test-days", 0, "Rolling walk-forward test window in days"),
		rollDays:    fs.Int("roll-days", 0, "Rolling walk-forward step in days"),
		generations: fs.Int("generations", 0, "Genetic optimizer generations"),
		population:  fs.Int("population", 0, "Genetic optimizer population size"),
		fitness:     fs.String("fitness", "", "Optimizer objective: return, sharpe or calmar"),
		seed:        fs.Int64("seed", 0, "Optimizer random seed (0 keeps the configured seed)"),
	}
}

// apply copies set flags into cfg and validates the result
func (f *cliFlags) apply(cfg *config.Config) error {
	if s := common.ParseList(*f.symbols); len(s) > 0 {
		for i := range s {
			s[i] = strings.ToUpper(s[i])
		}
		cfg.Data.Symbols = s
	}
	set := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	set(*f.interval, &cfg.Data.Interval)
	set(*f.source, &cfg.Data.Source)
	set(*f.dataRoot, &cfg.Data.Root)
	set(*f.start, &cfg.Data.Start)
	set(*f.end, &cfg.Data.End)
	set(*f.profile, &cfg.Backtest.Profile)
	set(*f.common.LogLevel, &cfg.Logging.Level)
	if fm := common.ParseList(*f.formats); len(fm) > 0 {
		cfg.Report.Formats = fm
	}
	if *f.consoleOnly {
		cfg.Report.Formats = []string{"console"}
	}
	if *f.metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *f.metrics
	}
	o := &cfg.Optimization
	setInt := func(v int, dst *int) {
		if v > 0 {
			*dst = v
		}
	}
	setInt(*f.generations, &o.GA.Generations)
	setInt(*f.population, &o.GA.PopulationSize)
	setInt(*f.trainDays, &o.WalkForward.TrainDays)
	setInt(*f.testDays, &o.WalkForward.TestDays)
	setInt(*f.rollDays, &o.WalkForward.RollDays)
	set(*f.fitness, &o.Fitness)
	if *f.split > 0 {
		o.WalkForward.SplitRatio = *f.split
	}
	if *f.rolling {
		o.WalkForward.Rolling = true
	}
	if *f.seed != 0 {
		o.GA.Seed = *f.seed
	}
	if o.GA.EliteSize >= o.GA.PopulationSize {
		o.GA.EliteSize = o.GA.PopulationSize / 4
	}
	if *f.compare != "" || *f.optimize || *f.walkForward {
		// every job or candidate reads the same symbols
		cfg.Data.Cache = true
	}

	v := common.NewFlagValidator()
	modes := 0
	for _, on := range []bool{*f.compare != "", *f.optimize, *f.walkForward} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		v.AddError("-compare, -optimize and -walk-forward are mutually exclusive")
	}
	v.ValidateChoice("source", cfg.Data.Source, []string{"csv", "bybit"})
	if len(cfg.Data.Symbols) == 0 {
		v.AddError("at least one symbol is required (-symbols or data.symbols)")
	}
	if err := v.GetError(); err != nil {
		return err
	}
	return config.NewValidator().Validate(cfg)
}

// comparisonProfiles expands -compare
func (f *cliFlags) comparisonProfiles(store *config.ProfileStore) []string {
	if strings.EqualFold(strings.TrimSpace(*f.compare), "all") {
		return store.Names()
	}
	return common.ParseList(*f.compare)
}

func main() {
	flags := registerFlags(flag.CommandLine)
	flag.Parse()

	if *flags.common.Version {
		common.PrintVersion("backtest")
		return
	}
	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "backtest failed: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *cliFlags) error {
	if err := config.LoadEnvFile(*flags.common.EnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(flags.common.ConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := flags.apply(cfg); err != nil {
		return err
	}

	log, session, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	if session != nil {
		defer session.Close()
	}

	ctx, cancel := common.SignalContext()
	defer cancel()

	if cfg.Metrics.Enabled {
		common.ServeMetrics(ctx, cfg.Metrics.Addr, log)
	}

	var predictor model.Predictor
	if cfg.Model.Enabled {
		onnxCfg, err := cfg.ONNXSettings()
		if err != nil {
			return err
		}
		p, err := model.NewONNXPredictor(onnxCfg)
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}
		defer p.Close()
		predictor = p
		log.Info("model loaded", zap.String("path", onnxCfg.ModelPath), zap.Int("window", onnxCfg.WindowLength))
	}

	source, err := buildSource(cfg, log)
	if err != nil {
		return err
	}
	r, err := newRunner(cfg, source, predictor, log)
	if err != nil {
		return err
	}

	out, err := sink.Open(cfg.Sink, log)
	if err != nil {
		return err
	}
	defer out.Close()

	started := time.Now()
	reporter := reporting.NewDefaultReporter()
	outDir := func(suffix string) string {
		return reporting.DefaultOutputDir(cfg.Report.Dir, cfg.Backtest.RunID+suffix)
	}

	var runs []reporting.Run
	switch {
	case *flags.walkForward:
		summary, err := r.runWalkForward(ctx)
		if err != nil {
			return err
		}
		log.Info("walk-forward finished", zap.Int("folds", len(summary.Results)), zap.String("elapsed", common.FormatDuration(time.Since(started))))
		reporting.OutputWalkForward(os.Stdout, summary)
		if hasFormat(cfg.Report.Formats, "json") {
			path := filepath.Join(outDir("-walkforward"), "walkforward.json")
			if err := reporting.WriteJSON(path, summary); err != nil {
				return err
			}
			log.Info("report written", zap.String("path", path))
		}
		return nil

	case *flags.optimize:
		best, search, runErr := r.runOptimization(ctx)
		reporting.OutputOptimization(os.Stdout, search)
		if search != nil && hasFormat(cfg.Report.Formats, "json") {
			path := filepath.Join(outDir("-search"), "optimization.json")
			if werr := reporting.WriteJSON(path, search); werr != nil {
				return werr
			}
			log.Info("report written", zap.String("path", path))
		}
		if best.Results == nil {
			return runErr
		}
		runs = []reporting.Run{best}
		err = runErr

	case *flags.compare != "":
		runs, err = r.runComparison(ctx, flags.comparisonProfiles(r.profiles))
		if err != nil {
			return err
		}

	default:
		single, runErr := r.runSingle(ctx)
		if single.Results == nil {
			return runErr
		}
		runs = []reporting.Run{single}
		err = runErr
	}
	if err != nil {
		log.Error("backtest did not complete, reporting partial results", zap.Error(err))
	}
	log.Info("replay finished", zap.Int("runs", len(runs)), zap.String("elapsed", common.FormatDuration(time.Since(started))))

	for _, run := range runs {
		if session != nil {
			journal(session, run)
		}
		if ferr := sink.Flush(context.Background(), out, run.Results); ferr != nil {
			log.Error("sink flush failed", zap.String("run", run.Results.RunID), zap.Error(ferr))
		}
		files, rerr := reporter.WriteAll(os.Stdout, run, cfg.Report.Dir, cfg.Report.Formats)
		if rerr != nil {
			return rerr
		}
		for _, f := range files {
			log.Info("report written", zap.String("path", f))
		}
	}
	if len(runs) > 1 {
		reporter.OutputComparison(os.Stdout, runs)
	}
	return err
}

// buildLogger returns the process logger and, with logging.file set, the
// session logger that also journals every signal and trade
func buildLogger(cfg *config.Config) (*zap.Logger, *logger.Logger, error) {
	if !cfg.Logging.File {
		l, err := logger.New(cfg.Logging.Level)
		return l, nil, err
	}
	name := "backtest"
	if len(cfg.Data.Symbols) == 1 {
		name = cfg.Data.Symbols[0]
	}
	session, err := logger.NewLogger(name, cfg.Data.Interval, logger.Options{
		Dir:     cfg.Logging.Dir,
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
	})
	if err != nil {
		return nil, nil, err
	}
	return session.Logger, session, nil
}

func hasFormat(formats []string, want string) bool {
	for _, f := range formats {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

func journal(session *logger.Logger, run reporting.Run) {
	for _, sig := range run.Results.Signals {
		session.LogSignal(sig)
	}
	for _, f := range run.Results.Fills {
		session.LogFill(f)
	}
	for _, t := range run.Results.Trades {
		session.LogTradeClosed(t)
	}
}
