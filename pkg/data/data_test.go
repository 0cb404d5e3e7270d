package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/exchange/bybit"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func writeCSV(t *testing.T, root, symbol, interval, content string) string {
	t.Helper()
	dir := filepath.Join(root, "bybit", "linear", symbol, ConvertIntervalToMinutes(interval))
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{"5m": 5 * time.Minute, "1h": time.Hour, "4H": 4 * time.Hour, "1d": 24 * time.Hour, "1w": 7 * 24 * time.Hour, "15": 15 * time.Minute}
	for in, want := range cases {
		got, err := IntervalDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "x", "0m", "7x"} {
		_, err := IntervalDuration(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "240", ConvertIntervalToMinutes("4h"))
}

func TestCSVSourceLoadsDataRootLayout(t *testing.T) {
	root := t.TempDir()
	writeCSV(t, root, "BTCUSDT", "1d", strings.Join([]string{
		"timestamp,open,high,low,close,volume",
		"2024-01-02 00:00:00,101,103,100,102,10",
		"2024-01-01 00:00:00,100,102,99,101,12",
		"2024-01-03 00:00:00,oops,1,1,1,1",
		"1704326400000,102,104,101,103,9",
		"2024-01-02 00:00:00,999,999,999,999,1",
		"short,row",
	}, "\n"))

	src := NewCSVSource(root, "bybit", "", "1d")
	bars, err := src.BarsFor(context.Background(), "btcusdt", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, day0, bars[0].Timestamp)
	assert.Equal(t, "BTCUSDT", bars[0].Symbol)
	assert.Equal(t, 102.0, bars[1].Close, "first duplicate wins")
	assert.Equal(t, day0.Add(72*time.Hour), bars[2].Timestamp)
	require.NoError(t, ValidateTimeSequence(bars))

	ranged, err := src.BarsFor(context.Background(), "BTCUSDT", day0.Add(24*time.Hour), day0.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, 102.0, ranged[0].Close)
}

func TestCSVSourceErrors(t *testing.T) {
	root := t.TempDir()
	_, err := NewCSVSource(root, "bybit", "", "1h").BarsFor(context.Background(), "NOPE", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.IsDataError(err))

	path := writeCSV(t, root, "ETHUSDT", "1h", "timestamp,open,high,low,close,volume\nbad,1,1,1,1,1\n")
	_, err = NewCSVSource(root, "bybit", "", "1h", WithFiles(map[string]string{"ethusdt": path})).BarsFor(context.Background(), "ETHUSDT", time.Time{}, time.Time{})
	assert.True(t, errors.IsDataError(err))
}

func TestMemoryAndCachedSource(t *testing.T) {
	mem := NewMemorySource()
	mem.Add("aaa", types.Bar{Timestamp: day0.Add(time.Hour), Close: 2}, types.Bar{Timestamp: day0, Close: 1})

	counting := &countingSource{inner: mem}
	cached := NewCachedSource(counting)
	for i := 0; i < 3; i++ {
		bars, err := cached.BarsFor(context.Background(), "AAA", time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.Equal(t, 1.0, bars[0].Close)
		assert.Equal(t, "AAA", bars[0].Symbol)
	}
	assert.Equal(t, int32(1), counting.calls.Load())
	assert.Equal(t, 1, cached.Cache().Size())

	_, err := cached.BarsFor(context.Background(), "BBB", time.Time{}, time.Time{})
	assert.True(t, errors.IsDataError(err))
	assert.Equal(t, 1, cached.Cache().Size())
}

type countingSource struct {
	inner BarSource
	calls atomic.Int32
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) BarsFor(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	c.calls.Add(1)
	return c.inner.BarsFor(ctx, symbol, start, end)
}

type fakeKlines struct {
	all   []bybit.Kline
	calls int
	err   error
}

// GetKlines mimics the API: newest klines inside [start, end], at most Limit
func (f *fakeKlines) GetKlines(_ context.Context, p bybit.KlineParams) ([]bybit.Kline, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var in []bybit.Kline
	for _, k := range f.all {
		if p.Start != nil && k.StartTime.Before(*p.Start) {
			continue
		}
		if p.End != nil && k.StartTime.After(*p.End) {
			continue
		}
		in = append(in, k)
	}
	if len(in) > p.Limit {
		in = in[len(in)-p.Limit:]
	}
	return in, nil
}

func TestBybitSourcePaginates(t *testing.T) {
	fake := &fakeKlines{}
	for i := 0; i < 25; i++ {
		p := 100 + float64(i)
		fake.all = append(fake.all, bybit.Kline{StartTime: day0.Add(time.Duration(i) * time.Hour), OpenPrice: p, HighPrice: p, LowPrice: p, ClosePrice: p, Volume: 1})
	}
	src, err := NewBybitSource(fake, "linear", "1h", nil)
	require.NoError(t, err)
	src.pageSize = 10

	bars, err := src.BarsFor(context.Background(), "btcusdt", day0, day0.Add(30*time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 25)
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, day0, bars[0].Timestamp)
	assert.Equal(t, 124.0, bars[24].Close)
	require.NoError(t, ValidateTimeSequence(bars))

	_, err = NewBybitSource(fake, "linear", "7x", nil)
	assert.True(t, errors.IsConfigError(err))
}

func TestBybitSourceClassifiesAPIErrors(t *testing.T) {
	fake := &fakeKlines{err: &bybit.APIError{Code: bybit.ErrCodeInvalidAPIKey, Op: "GetKlines"}}
	src, err := NewBybitSource(fake, "linear", "1h", nil)
	require.NoError(t, err)

	_, err = src.BarsFor(context.Background(), "BTCUSDT", day0, day0.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	fake.err = &bybit.APIError{Code: bybit.ErrCodeRateLimitExceeded}
	_, err = src.BarsFor(context.Background(), "BTCUSDT", day0, day0.Add(time.Hour))
	require.True(t, errors.IsCategory(err, errors.ErrorCategoryNetwork))
	assert.True(t, err.(*errors.Error).IsRetryable())

	fake.err = &bybit.APIError{Code: bybit.ErrCodeInvalidParameter}
	_, err = src.BarsFor(context.Background(), "BTCUSDT", day0, day0.Add(time.Hour))
	require.True(t, errors.IsCategory(err, errors.ErrorCategoryNetwork))
	assert.False(t, err.(*errors.Error).IsRetryable())
}

func TestParseKlineMessage(t *testing.T) {
	bars, err := ParseKlineMessage([]byte(`{"topic":"kline.60.BTCUSDT","type":"snapshot","data":[
		{"start":1704067200000,"open":"100","high":"110","low":"95","close":"105","volume":"12.5","confirm":true},
		{"start":1704070800000,"open":"105","high":"106","low":"104","close":"105.5","volume":"1","confirm":false}]}`))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "BTCUSDT", bars[0].Symbol)
	assert.Equal(t, day0, bars[0].Timestamp)
	assert.Equal(t, 12.5, bars[0].Volume)

	bars, err = ParseKlineMessage([]byte(`{"op":"subscribe","success":true}`))
	require.NoError(t, err)
	assert.Empty(t, bars)

	_, err = ParseKlineMessage([]byte(`{"op":"subscribe","success":false,"ret_msg":"bad topic"}`))
	assert.True(t, errors.IsDataError(err))
}

func TestWebsocketFeedStreamsConfirmedBars(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan []string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- req.Args
		conn.WriteJSON(map[string]interface{}{"op": "subscribe", "success": true})
		for i := 0; i < 3; i++ {
			conn.WriteJSON(map[string]interface{}{
				"topic": "kline.60.ETHUSDT",
				"data": []map[string]interface{}{{
					"start": day0.Add(time.Duration(i) * time.Hour).UnixMilli(),
					"open":  "2000", "high": "2010", "low": "1990", "close": "2005", "volume": "3",
					"confirm": i != 1,
				}},
			})
		}
		// keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed, err := NewWebsocketFeed(FeedConfig{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:  []string{"ethusdt"},
		Interval: "1h",
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make(chan types.Bar)
	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(ctx, out) }()

	assert.Equal(t, []string{"kline.60.ETHUSDT"}, <-subscribed)
	first := <-out
	second := <-out
	assert.Equal(t, day0, first.Timestamp)
	assert.Equal(t, day0.Add(2*time.Hour), second.Timestamp)
	assert.Equal(t, 2005.0, second.Close)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestNewWebsocketFeedValidation(t *testing.T) {
	_, err := NewWebsocketFeed(FeedConfig{URL: "", Symbols: []string{"A"}, Interval: "1m"}, nil)
	assert.True(t, errors.IsConfigError(err))
	_, err = NewWebsocketFeed(FeedConfig{URL: BybitLinearStreamURL, Interval: "1m"}, nil)
	assert.True(t, errors.IsConfigError(err))
}

func TestFilters(t *testing.T) {
	bars := []types.Bar{{Timestamp: day0}, {Timestamp: day0.Add(24 * time.Hour)}, {Timestamp: day0.Add(48 * time.Hour)}}
	assert.Len(t, FilterByPeriod(bars, 24*time.Hour), 2)
	assert.Len(t, FilterByDateRange(bars, day0.Add(time.Hour), time.Time{}), 2)
	assert.Error(t, ValidateTimeSequence([]types.Bar{bars[1], bars[0]}))
}

func TestWriteCSVRoundTrip(t *testing.T) {
	root := t.TempDir()
	bars := []types.Bar{
		{Symbol: "ETHUSDT", Timestamp: day0, Open: 2000, High: 2010.5, Low: 1990, Close: 2005.25, Volume: 12.5},
		{Symbol: "ETHUSDT", Timestamp: day0.Add(time.Hour), Open: 2005.25, High: 2020, Low: 2001, Close: 2018, Volume: 8},
	}
	path := DataFilePath(root, "bybit", "linear", "ethusdt", "1h")
	assert.Equal(t, filepath.Join(root, "bybit", "linear", "ETHUSDT", "60", "candles.csv"), path)
	require.NoError(t, WriteCSV(path, bars))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "timestamp,open,high,low,close,volume\n2024-01-01 00:00:00,2000,2010.5,1990,2005.25,12.5\n"))

	got, err := NewCSVSource(root, "bybit", "", "1h").BarsFor(context.Background(), "ETHUSDT", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, bars, got)
}
