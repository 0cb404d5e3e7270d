package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/cmd/common"
	"github.com/ducminhle1904/tradecore/internal/exchange/bybit"
	"github.com/ducminhle1904/tradecore/internal/logger"
	"github.com/ducminhle1904/tradecore/pkg/config"
	"github.com/ducminhle1904/tradecore/pkg/data"
)

// fetchResult is one symbol/interval download
type fetchResult struct {
	Symbol   string
	Interval string
	Path     string
	Bars     int
	First    time.Time
	Last     time.Time
	Err      error
}

// fetcher downloads bars into the data root layout the backtest reads
type fetcher struct {
	client   data.KlineFetcher
	root     string
	category string
	logger   *zap.Logger
}

func (f *fetcher) fetch(ctx context.Context, symbol, interval string, start, end time.Time) fetchResult {
	res := fetchResult{Symbol: strings.ToUpper(symbol), Interval: interval}
	src, err := data.NewBybitSource(f.client, f.category, interval, f.logger)
	if err != nil {
		res.Err = err
		return res
	}
	bars, err := src.BarsFor(ctx, symbol, start, end)
	if err != nil {
		res.Err = err
		return res
	}
	if len(bars) == 0 {
		res.Err = fmt.Errorf("no klines returned for %s %s", res.Symbol, interval)
		return res
	}
	res.Path = data.DataFilePath(f.root, "bybit", f.category, symbol, interval)
	if err := data.WriteCSV(res.Path, bars); err != nil {
		res.Err = err
		return res
	}
	res.Bars, res.First, res.Last = len(bars), bars[0].Timestamp, bars[len(bars)-1].Timestamp
	f.logger.Info("klines saved",
		zap.String("symbol", res.Symbol),
		zap.String("interval", interval),
		zap.Int("bars", res.Bars),
		zap.String("path", res.Path))
	return res
}

// fetchAll runs every symbol/interval pair in order; ctx cancellation stops the remaining pairs
func (f *fetcher) fetchAll(ctx context.Context, symbols, intervals []string, start, end time.Time) []fetchResult {
	var out []fetchResult
	for _, sym := range symbols {
		for _, iv := range intervals {
			if ctx.Err() != nil {
				return out
			}
			out = append(out, f.fetch(ctx, sym, iv, start, end))
		}
	}
	return out
}

func printSummary(w io.Writer, results []fetchResult) (failed int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("KLINE DOWNLOAD")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Interval", "Bars", "From", "To", "Status"})
	for _, r := range results {
		if r.Err != nil {
			failed++
			t.AppendRow(table.Row{r.Symbol, r.Interval, "-", "-", "-", r.Err.Error()})
			continue
		}
		t.AppendRow(table.Row{r.Symbol, r.Interval, r.Bars, r.First.Format("2006-01-02 15:04"), r.Last.Format("2006-01-02 15:04"), r.Path})
	}
	t.Render()
	return failed
}

func main() {
	var (
		cf        = common.RegisterCommonFlags(flag.CommandLine)
		symbols   = flag.String("symbols", "", "Comma separated symbols (defaults to data.symbols)")
		intervals = flag.String("intervals", "", "Comma separated intervals, e.g. 15m,1h,4h (defaults to data.interval)")
		category  = flag.String("category", "", "Market category: spot, linear, inverse (defaults to data.category)")
		root      = flag.String("root", "", "Data root directory (defaults to data.root)")
		startDate = flag.String("start", "", "Start date YYYY-MM-DD (default one year before end)")
		endDate   = flag.String("end", "", "End date YYYY-MM-DD, exclusive (default now)")
	)
	flag.Parse()

	if *cf.Version {
		common.PrintVersion("fetch-bars")
		return
	}

	if err := run(cf, *symbols, *intervals, *category, *root, *startDate, *endDate); err != nil {
		fmt.Fprintf(os.Stderr, "fetch-bars failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cf *common.CommonFlags, symbolList, intervalList, category, root, startDate, endDate string) error {
	if err := config.LoadEnvFile(*cf.EnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(cf.ConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *cf.LogLevel != "" {
		cfg.Logging.Level = *cf.LogLevel
	}

	symbols := common.ParseList(symbolList)
	if len(symbols) == 0 {
		symbols = cfg.Data.Symbols
	}
	intervals := common.ParseList(intervalList)
	if len(intervals) == 0 {
		intervals = []string{cfg.Data.Interval}
	}
	if category == "" {
		category = cfg.Data.Category
	}
	category = strings.ToLower(category)
	if root == "" {
		root = cfg.Data.Root
	}

	v := common.NewFlagValidator()
	v.ValidateChoice("category", category, []string{"spot", "linear", "inverse"})
	if len(symbols) == 0 {
		v.AddError("at least one symbol is required")
	}
	for _, iv := range intervals {
		if _, err := bybit.ParseInterval(iv); err != nil {
			v.AddError(fmt.Sprintf("invalid interval %q", iv))
		}
	}
	start, end, err := parseRange(startDate, endDate, time.Now().UTC())
	if err != nil {
		v.AddError(err.Error())
	}
	if err := v.GetError(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := common.SignalContext()
	defer cancel()

	b := cfg.Exchange.Bybit
	f := &fetcher{
		client:   bybit.NewClient(bybit.Config{APIKey: b.APIKey, APISecret: b.APISecret, Testnet: b.Testnet, BaseURL: b.BaseURL}),
		root:     root,
		category: category,
		logger:   log,
	}
	log.Info("downloading klines",
		zap.Strings("symbols", symbols),
		zap.Strings("intervals", intervals),
		zap.Time("start", start),
		zap.Time("end", end))

	results := f.fetchAll(ctx, symbols, intervals, start, end)
	if failed := printSummary(os.Stdout, results); failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	return ctx.Err()
}

// parseRange resolves [start, end) from YYYY-MM-DD flags
func parseRange(startDate, endDate string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if endDate != "" {
		t, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q", endDate)
		}
		end = t
	}
	start := end.AddDate(-1, 0, 0)
	if startDate != "" {
		t, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q", startDate)
		}
		start = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s must be before end %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}
