package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/exchange/bybit"
	"github.com/ducminhle1904/tradecore/pkg/data"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type stubKlines struct {
	fail map[string]bool
}

func (s *stubKlines) GetKlines(_ context.Context, p bybit.KlineParams) ([]bybit.Kline, error) {
	if s.fail[p.Symbol] {
		return nil, errors.New("rate limited")
	}
	var out []bybit.Kline
	for i := 0; i < 48; i++ {
		ts := t0.Add(time.Duration(i) * time.Hour)
		if p.Start != nil && ts.Before(*p.Start) {
			continue
		}
		if p.End != nil && ts.After(*p.End) {
			continue
		}
		price := 50 + float64(i)
		out = append(out, bybit.Kline{StartTime: ts, OpenPrice: price, HighPrice: price + 1, LowPrice: price - 1, ClosePrice: price, Volume: 3})
	}
	return out, nil
}

func TestFetchAllWritesLoadableFiles(t *testing.T) {
	root := t.TempDir()
	f := &fetcher{client: &stubKlines{fail: map[string]bool{"ETHUSDT": true}}, root: root, category: "linear", logger: zap.NewNop()}

	results := f.fetchAll(context.Background(), []string{"btcusdt", "ethusdt"}, []string{"1h"}, t0, t0.Add(24*time.Hour))
	require.Len(t, results, 2)

	btc := results[0]
	require.NoError(t, btc.Err)
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.Equal(t, 24, btc.Bars)
	assert.Equal(t, t0, btc.First)
	assert.Equal(t, data.DataFilePath(root, "bybit", "linear", "BTCUSDT", "1h"), btc.Path)
	assert.Error(t, results[1].Err)

	bars, err := data.NewCSVSource(root, "bybit", "linear", "1h").BarsFor(context.Background(), "BTCUSDT", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 24)
	assert.Equal(t, 73.0, bars[23].Close)

	var buf bytes.Buffer
	assert.Equal(t, 1, printSummary(&buf, results))
	assert.Contains(t, buf.String(), "rate limited")
}

func TestFetchAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fetcher{client: &stubKlines{}, root: t.TempDir(), category: "linear", logger: zap.NewNop()}
	assert.Empty(t, f.fetchAll(ctx, []string{"BTCUSDT"}, []string{"1h", "4h"}, t0, t0.Add(time.Hour)))
}

func TestParseRange(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	start, end, err := parseRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, now, end)
	assert.Equal(t, now.AddDate(-1, 0, 0), start)

	start, end, err = parseRange("2024-01-01", "2024-02-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = parseRange("2024-02-01", "2024-01-01", now)
	assert.Error(t, err)
	_, _, err = parseRange("01/02/2024", "", now)
	assert.Error(t, err)
}
