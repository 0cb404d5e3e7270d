package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// KlineInterval represents the time interval for kline data
type KlineInterval string

const (
	Interval1m  KlineInterval = "1"
	Interval3m  KlineInterval = "3"
	Interval5m  KlineInterval = "5"
	Interval15m KlineInterval = "15"
	Interval30m KlineInterval = "30"
	Interval1h  KlineInterval = "60"
	Interval2h  KlineInterval = "120"
	Interval4h  KlineInterval = "240"
	Interval6h  KlineInterval = "360"
	Interval12h KlineInterval = "720"
	Interval1d  KlineInterval = "D"
	Interval1w  KlineInterval = "W"
)

var intervalsByName = map[string]KlineInterval{
	"1m": Interval1m, "3m": Interval3m, "5m": Interval5m, "15m": Interval15m, "30m": Interval30m,
	"1h": Interval1h, "2h": Interval2h, "4h": Interval4h, "6h": Interval6h, "12h": Interval12h,
	"1d": Interval1d, "1w": Interval1w,
}

// ParseInterval maps "5m", "1h", "1d" and raw API values ("5", "60", "D") to a KlineInterval
func ParseInterval(s string) (KlineInterval, error) {
	s = strings.TrimSpace(s)
	if iv, ok := intervalsByName[strings.ToLower(s)]; ok {
		return iv, nil
	}
	for _, iv := range intervalsByName {
		if string(iv) == strings.ToUpper(s) {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unsupported kline interval %q", s)
}

// Kline represents a single kline/candlestick data point
type Kline struct {
	StartTime  time.Time
	OpenPrice  float64
	HighPrice  float64
	LowPrice   float64
	ClosePrice float64
	Volume     float64
	Turnover   float64
}

// KlineParams holds parameters for fetching kline data
type KlineParams struct {
	Category string        // "spot", "linear", "inverse"
	Symbol   string        // Trading pair symbol (e.g., "BTCUSDT")
	Interval KlineInterval // Time interval
	Start    *time.Time    // Start time (optional)
	End      *time.Time    // End time (optional)
	Limit    int           // Number of records to return (max 1000, default 200)
}

// MaxKlineLimit is the largest page the kline endpoint returns
const MaxKlineLimit = 1000

// GetKlines fetches one page of klines, oldest first. Retryable API errors
// are retried with backoff.
func (c *Client) GetKlines(ctx context.Context, params KlineParams) ([]Kline, error) {
	if params.Category == "" {
		params.Category = "spot"
	}
	if params.Limit == 0 {
		params.Limit = 200
	}
	if params.Limit > MaxKlineLimit {
		params.Limit = MaxKlineLimit
	}

	reqParams := map[string]interface{}{
		"category": params.Category,
		"symbol":   params.Symbol,
		"interval": string(params.Interval),
		"limit":    params.Limit,
	}
	if params.Start != nil {
		reqParams["start"] = params.Start.UnixMilli()
	}
	if params.End != nil {
		reqParams["end"] = params.End.UnixMilli()
	}

	var klines []Kline
	err := c.RetryWithConfig(ctx, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(reqParams).GetMarketKline(ctx)
		if err != nil {
			return fmt.Errorf("failed to get klines: %w", err)
		}
		if err := checkResponse("GetKlines", result.RetCode, result.RetMsg); err != nil {
			return err
		}
		raw, err := json.Marshal(result.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		klines, err = ParseKlineResult(raw)
		return err
	}, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%s %s klines: %w", params.Symbol, params.Interval, err)
	}
	return klines, nil
}

// ParseKlineResult decodes the "result" object of a kline response. The API
// lists newest first; the returned slice is oldest first.
func ParseKlineResult(raw []byte) ([]Kline, error) {
	var result struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kline result: %w", err)
	}

	klines := make([]Kline, 0, len(result.List))
	for _, item := range result.List {
		// [startTime, openPrice, highPrice, lowPrice, closePrice, volume, turnover]
		if len(item) < 6 {
			continue
		}
		k, err := parseKline(item)
		if err != nil {
			return nil, err
		}
		klines = append(klines, k)
	}
	sort.Slice(klines, func(i, j int) bool { return klines[i].StartTime.Before(klines[j].StartTime) })
	return klines, nil
}

func parseKline(item []string) (Kline, error) {
	ms, err := strconv.ParseInt(item[0], 10, 64)
	if err != nil {
		return Kline{}, fmt.Errorf("invalid kline start time %q: %w", item[0], err)
	}
	vals := make([]float64, len(item)-1)
	for i, s := range item[1:] {
		if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
			return Kline{}, fmt.Errorf("invalid kline field %d %q: %w", i+1, s, err)
		}
	}
	k := Kline{
		StartTime:  time.UnixMilli(ms).UTC(),
		OpenPrice:  vals[0],
		HighPrice:  vals[1],
		LowPrice:   vals[2],
		ClosePrice: vals[3],
		Volume:     vals[4],
	}
	if len(vals) > 5 {
		k.Turnover = vals[5]
	}
	return k, nil
}
