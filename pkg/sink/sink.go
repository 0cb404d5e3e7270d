// Package sink persists signals, trades and equity samples produced by a run.
package sink

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/config"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// ErrClosed is returned by writes after Close
var ErrClosed = stderrors.New("sink closed")

// Sink receives run output. Implementations must be safe for concurrent use.
type Sink interface {
	WriteSignal(ctx context.Context, runID string, sig types.TradingSignal) error
	WriteTrade(ctx context.Context, runID string, trade types.TradeRecord) error
	WriteEquity(ctx context.Context, runID string, point types.EquityPoint) error
	Close() error
}

// Open builds the sink selected by cfg. Type "none" returns a sink that drops everything.
func Open(cfg config.SinkConfig, logger *zap.Logger) (Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemory(), nil
	case "none":
		return Discard{}, nil
	case "sqlite":
		return NewSQLite(cfg.Path, logger)
	case "redis":
		return NewRedis(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.Stream,
		}, logger)
	}
	return nil, errors.NewConfigError("sink", "Open", fmt.Sprintf("unknown sink type %q", cfg.Type))
}

// Flush writes a finished run: signals, then closed and open trades, then the equity curve
func Flush(ctx context.Context, s Sink, res *backtest.Results) error {
	for _, sig := range res.Signals {
		if err := s.WriteSignal(ctx, res.RunID, sig); err != nil {
			return err
		}
	}
	for _, list := range [][]types.TradeRecord{res.Trades, res.OpenTrades} {
		for _, tr := range list {
			if err := s.WriteTrade(ctx, res.RunID, tr); err != nil {
				return err
			}
		}
	}
	for _, p := range res.Equity {
		if err := s.WriteEquity(ctx, res.RunID, p); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops all writes
type Discard struct{}

func (Discard) WriteSignal(context.Context, string, types.TradingSignal) error { return nil }
func (Discard) WriteTrade(context.Context, string, types.TradeRecord) error    { return nil }
func (Discard) WriteEquity(context.Context, string, types.EquityPoint) error   { return nil }
func (Discard) Close() error                                                   { return nil }
