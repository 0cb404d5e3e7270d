package data

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/exchange/bybit"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// KlineFetcher is the part of the Bybit client the source needs
type KlineFetcher interface {
	GetKlines(ctx context.Context, params bybit.KlineParams) ([]bybit.Kline, error)
}

// BybitSource downloads historical klines page by page
type BybitSource struct {
	client   KlineFetcher
	category string
	interval bybit.KlineInterval
	pageSize int
	logger   *zap.Logger
}

// NewBybitSource creates a kline source for category ("spot", "linear") and interval ("1h", "1d")
func NewBybitSource(client KlineFetcher, category, interval string, logger *zap.Logger) (*BybitSource, error) {
	iv, err := bybit.ParseInterval(interval)
	if err != nil {
		return nil, errors.NewConfigError("data", "NewBybitSource", err.Error())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if category == "" {
		category = "linear"
	}
	return &BybitSource{client: client, category: category, interval: iv, pageSize: bybit.MaxKlineLimit, logger: logger}, nil
}

func (s *BybitSource) Name() string { return "bybit" }

// BarsFor walks backwards from end until start is covered. With a zero start
// only the most recent page is fetched.
func (s *BybitSource) BarsFor(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	symbol = strings.ToUpper(symbol)
	var pages [][]bybit.Kline
	cursor := end

	for {
		params := bybit.KlineParams{Category: s.category, Symbol: symbol, Interval: s.interval, Limit: s.pageSize}
		if !start.IsZero() {
			st := start
			params.Start = &st
		}
		if !cursor.IsZero() {
			c := cursor
			params.End = &c
		}
		klines, err := s.client.GetKlines(ctx, params)
		if err != nil {
			if bybit.IsAuthError(err) {
				return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "data", "BybitSource.BarsFor").
					WithContext("symbol", symbol)
			}
			return nil, errors.NewNetworkError("data", "BybitSource.BarsFor", err).
				WithContext("symbol", symbol).
				WithRetryable(bybit.IsTransient(err))
		}
		if len(klines) == 0 {
			break
		}
		pages = append(pages, klines)
		s.logger.Debug("kline page", zap.String("symbol", symbol), zap.Int("bars", len(klines)), zap.Time("first", klines[0].StartTime))

		first := klines[0].StartTime
		if start.IsZero() || len(klines) < s.pageSize || !first.After(start) {
			break
		}
		cursor = first.Add(-time.Millisecond)
	}

	var bars []types.Bar
	for i := len(pages) - 1; i >= 0; i-- {
		for _, k := range pages[i] {
			bars = append(bars, types.Bar{
				Symbol:    symbol,
				Timestamp: k.StartTime,
				Open:      k.OpenPrice,
				High:      k.HighPrice,
				Low:       k.LowPrice,
				Close:     k.ClosePrice,
				Volume:    k.Volume,
			})
		}
	}
	if len(bars) == 0 {
		return nil, errors.NewDataError("data", "BybitSource.BarsFor", "no klines returned").WithContext("symbol", symbol)
	}
	return FilterByDateRange(Normalize(bars), start, end), nil
}
