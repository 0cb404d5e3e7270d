package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKlineResultOrdersOldestFirst(t *testing.T) {
	raw := []byte(`{"symbol":"BTCUSDT","category":"linear","list":[
		["1704153600000","42500","43000","42000","42800","120.5","5150000"],
		["1704067200000","42000","42600","41800","42500","98.2","4170000"],
		["bad"]
	]}`)
	klines, err := ParseKlineResult(raw)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), klines[0].StartTime)
	assert.Equal(t, 42500.0, klines[0].ClosePrice)
	assert.Equal(t, 120.5, klines[1].Volume)
}

func TestParseKlineResultRejectsBadNumbers(t *testing.T) {
	_, err := ParseKlineResult([]byte(`{"list":[["1704067200000","x","1","1","1","1"]]}`))
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	for in, want := range map[string]KlineInterval{"5m": Interval5m, "1h": Interval1h, "4H": Interval4h, "1d": Interval1d, "D": Interval1d, "60": Interval1h} {
		got, err := ParseInterval(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseInterval("7x")
	assert.Error(t, err)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	c := NewClient(Config{}).WithRetry(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})
	calls := 0
	err := c.RetryWithConfig(context.Background(), func() error {
		calls++
		return &APIError{Code: ErrCodeInvalidParameter, Message: "params error: symbol invalid"}
	}, c.retry)
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = c.RetryWithConfig(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &APIError{Code: ErrCodeRateLimitExceeded, Message: "slow down"}
		}
		return nil
	}, c.retry)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsRateLimitError(&APIError{Code: ErrCodeIPRateLimit}))
}

func TestRetryFailsFastOnAuthError(t *testing.T) {
	c := NewClient(Config{}).WithRetry(RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})
	for _, code := range []int{ErrCodeInvalidAPIKey, ErrCodeInvalidSignature, ErrCodeInvalidTimestamp, ErrCodePermissionDenied} {
		calls := 0
		err := c.RetryWithConfig(context.Background(), func() error {
			calls++
			return &APIError{Code: code, Op: "GetKlines"}
		}, c.retry)
		require.Error(t, err)
		assert.Equal(t, 1, calls, "code %d", code)
		assert.True(t, IsAuthError(err))
		assert.False(t, IsTransient(err))
		assert.Contains(t, err.Error(), Describe(code))
	}
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	c := NewClient(Config{}).WithRetry(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})
	calls := 0
	err := c.RetryWithConfig(context.Background(), func() error {
		calls++
		return &APIError{Code: ErrCodeServerError}
	}, c.retry)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
	assert.True(t, IsTransient(err))
}

func TestAPIErrorText(t *testing.T) {
	assert.Equal(t, "bybit GetKlines: code 10006: rate limit exceeded", (&APIError{Code: 10006, Op: "GetKlines"}).Error())
	assert.Equal(t, "bybit: code 10001: params error", (&APIError{Code: 10001, Message: "params error"}).Error())
	assert.Equal(t, "unrecognized code 42", Describe(42))
	assert.NoError(t, checkResponse("GetKlines", 0, "OK"))
	assert.False(t, IsTransient(checkResponse("GetKlines", 42, "")))
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, 10*time.Millisecond, cfg.backoff(0))
	assert.Equal(t, 40*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, 50*time.Millisecond, cfg.backoff(5))
}

func TestGetKlinesAgainstServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/kline", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"retCode":10006,"retMsg":"Too many visits!","result":{},"retExtInfo":{},"time":1704153600000}`))
			return
		}
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"symbol":"BTCUSDT","category":"linear","list":[
			["1704153600000","42500","43000","42000","42800","120.5","5150000"],
			["1704067200000","42000","42600","41800","42500","98.2","4170000"]]},"retExtInfo":{},"time":1704153600000}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}).WithRetry(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})
	klines, err := c.GetKlines(context.Background(), KlineParams{Category: "linear", Symbol: "BTCUSDT", Interval: Interval1d, Limit: 2})
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 42500.0, klines[0].ClosePrice)
	assert.Equal(t, 42800.0, klines[1].ClosePrice)
}

func TestGetKlinesRejectedKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"retCode":10003,"retMsg":"API key is invalid.","result":{},"retExtInfo":{},"time":0}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}).WithRetry(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})
	_, err := c.GetKlines(context.Background(), KlineParams{Symbol: "BTCUSDT", Interval: Interval1h})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "API key is invalid.")
}
