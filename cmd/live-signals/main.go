package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/cmd/common"
	"github.com/ducminhle1904/tradecore/internal/exchange/bybit"
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/internal/logger"
	"github.com/ducminhle1904/tradecore/internal/monitoring"
	"github.com/ducminhle1904/tradecore/internal/notifications"
	"github.com/ducminhle1904/tradecore/internal/safety"
	"github.com/ducminhle1904/tradecore/internal/signal"
	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/config"
	"github.com/ducminhle1904/tradecore/pkg/data"
	"github.com/ducminhle1904/tradecore/pkg/model"
	"github.com/ducminhle1904/tradecore/pkg/sink"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// signalLoop turns closed bars into signals for every subscribed symbol
type signalLoop struct {
	runID     string
	generator *signal.Generator
	series    *indicators.Manager
	out       sink.Sink
	logger    *zap.Logger
	minTier   types.StrengthTier

	notifier  notifications.Notifier
	alertTier types.StrengthTier
}

func newSignalLoop(runID string, gen *signal.Generator, out sink.Sink, logger *zap.Logger) (*signalLoop, error) {
	series, err := indicators.NewManager(gen.SeriesConfig())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &signalLoop{runID: runID, generator: gen, series: series, out: out, logger: logger}, nil
}

// warmUp feeds history through the indicator series without emitting signals
func (l *signalLoop) warmUp(bars []types.Bar) int {
	n := 0
	for _, b := range bars {
		if _, err := l.series.Update(b); err != nil {
			l.logger.Warn("warm-up bar skipped", zap.String("symbol", b.Symbol), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// process updates the symbol's series and, when the rules fire, persists the signal
func (l *signalLoop) process(ctx context.Context, bar types.Bar) (*types.TradingSignal, error) {
	snap, err := l.series.Update(bar)
	if err != nil {
		l.logger.Warn("bar rejected", zap.String("symbol", bar.Symbol), zap.Time("timestamp", bar.Timestamp), zap.Error(err))
		return nil, nil
	}
	s, _ := l.series.Series(bar.Symbol)
	sig := l.generator.Generate(bar.Symbol, s.Window(), snap)
	if sig == nil {
		return nil, nil
	}
	if l.minTier != "" && tierRank(sig.Tier) < tierRank(l.minTier) {
		return nil, nil
	}
	l.logger.Info("signal",
		zap.String("symbol", sig.Symbol),
		zap.String("direction", sig.Direction.String()),
		zap.String("tier", string(sig.Tier)),
		zap.Float64("confidence", sig.Confidence),
		zap.Float64("price", bar.Close))
	if l.notifier != nil && tierRank(sig.Tier) >= tierRank(l.alertTier) {
		if err := l.notifier.SendAlert(ctx, notifications.LevelSignal, notifications.FormatSignal(*sig)); err != nil {
			l.logger.Warn("signal alert failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		}
	}
	if err := l.out.WriteSignal(ctx, l.runID, *sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func tierRank(t types.StrengthTier) int {
	switch t {
	case types.TierStrong:
		return 2
	case types.TierModerate:
		return 1
	}
	return 0
}

// run drains the feed channel until it is closed or ctx ends
func (l *signalLoop) run(ctx context.Context, bars <-chan types.Bar) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case bar, ok := <-bars:
			if !ok {
				return nil
			}
			if _, err := l.process(ctx, bar); err != nil {
				l.logger.Error("signal write failed", zap.String("symbol", bar.Symbol), zap.Error(err))
			}
		}
	}
}

func main() {
	var (
		cf      = common.RegisterCommonFlags(flag.CommandLine)
		symbols = flag.String("symbols", "", "Comma separated symbols (overrides live.symbols)")
		feedURL = flag.String("feed", "", "Websocket kline stream URL")
		warmup  = flag.Int("warmup", 200, "Bars of REST history to load per symbol before streaming (0 disables)")
		minTier = flag.String("min-tier", "", "Only persist signals of at least this tier: weak, moderate, strong")
		metrics = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	)
	flag.Parse()

	if *cf.Version {
		common.PrintVersion("live-signals")
		return
	}

	if err := run(cf, *symbols, *feedURL, *warmup, *minTier, *metrics); err != nil {
		fmt.Fprintf(os.Stderr, "live-signals failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cf *common.CommonFlags, symbolList, feedURL string, warmup int, minTier, metricsAddr string) error {
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
	if s := common.ParseList(symbolList); len(s) > 0 {
		for i := range s {
			s[i] = strings.ToUpper(s[i])
		}
		cfg.Live.Symbols = s
	}
	if len(cfg.Live.Symbols) == 0 {
		cfg.Live.Symbols = cfg.Data.Symbols
	}
	if feedURL != "" {
		cfg.Live.FeedURL = feedURL
	}
	if cfg.Live.FeedURL == "" {
		cfg.Live.FeedURL = data.BybitLinearStreamURL
		if strings.EqualFold(cfg.Data.Category, "spot") {
			cfg.Live.FeedURL = data.BybitSpotStreamURL
		}
	}

	v := common.NewFlagValidator()
	if minTier != "" {
		v.ValidateChoice("min-tier", minTier, []string{"weak", "moderate", "strong"})
	}
	v.ValidateInt("warmup", warmup, 0, 1000)
	if err := v.GetError(); err != nil {
		return err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := common.SignalContext()
	defer cancel()

	if metricsAddr != "" {
		cfg.Metrics.Enabled, cfg.Metrics.Addr = true, metricsAddr
	}
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
	}

	stratCfg, err := cfg.StrategySettings()
	if err != nil {
		return err
	}
	gen, err := strategy.New(stratCfg, log, predictor)
	if err != nil {
		return err
	}

	store, err := sink.Open(cfg.Sink, log)
	if err != nil {
		return err
	}
	breaker := safety.NewCircuitBreaker("sink_"+cfg.Sink.Type, safety.DefaultBreakerConfig())
	breaker.OnStateChange(func(name string, from, to safety.BreakerState) {
		monitoring.SetBreakerState(name, int(to))
		log.Warn("sink circuit breaker", zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
	})
	out := sink.NewGuarded(store, breaker)
	defer out.Close()

	runID := "live-" + time.Now().UTC().Format("20060102-150405")
	loop, err := newSignalLoop(runID, gen, out, log)
	if err != nil {
		return err
	}
	loop.minTier = types.StrengthTier(strings.ToLower(minTier))
	if cfg.Live.TelegramToken != "" {
		loop.notifier = notifications.NewTelegramNotifier(cfg.Live.TelegramToken, cfg.Live.TelegramChatID)
		loop.alertTier = types.StrengthTier(cfg.Live.AlertTier)
	}

	if warmup > 0 {
		b := cfg.Exchange.Bybit
		client := bybit.NewClient(bybit.Config{APIKey: b.APIKey, APISecret: b.APISecret, Testnet: b.Testnet, BaseURL: b.BaseURL})
		if err := warmUp(ctx, loop, client, cfg, warmup, log); err != nil {
			log.Warn("warm-up failed, indicators will start cold", zap.Error(err))
		}
	}

	feed, err := data.NewWebsocketFeed(data.FeedConfig{
		URL:      cfg.Live.FeedURL,
		Symbols:  cfg.Live.Symbols,
		Interval: cfg.Live.Interval,
	}, log)
	if err != nil {
		return err
	}
	// a reconnect may drop bars for every subscribed symbol
	feed.OnReconnect = func(error) {
		for _, sym := range cfg.Live.Symbols {
			monitoring.RecordDataError(sym)
		}
	}

	log.Info("streaming",
		zap.String("run", runID),
		zap.Strings("topics", feed.Topics()),
		zap.String("strategy", gen.Name()),
		zap.String("sink", cfg.Sink.Type))

	bars := make(chan types.Bar, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(bars)
		errc <- feed.Run(ctx, bars)
	}()
	if err := loop.run(ctx, bars); err != nil {
		return err
	}
	return <-errc
}

func warmUp(ctx context.Context, loop *signalLoop, client *bybit.Client, cfg *config.Config, n int, log *zap.Logger) error {
	src, err := data.NewBybitSource(client, cfg.Data.Category, cfg.Live.Interval, log)
	if err != nil {
		return err
	}
	iv, err := data.IntervalDuration(cfg.Live.Interval)
	if err != nil {
		return err
	}
	end := time.Now().UTC().Truncate(iv)
	start := end.Add(-time.Duration(n) * iv)
	for _, sym := range cfg.Live.Symbols {
		bars, err := src.BarsFor(ctx, sym, start, end)
		if err != nil {
			return err
		}
		log.Info("warmed up", zap.String("symbol", sym), zap.Int("bars", loop.warmUp(bars)))
	}
	return nil
}
