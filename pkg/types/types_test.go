package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

func validBar() Bar {
	return Bar{
		Symbol:    "BTCUSDT",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:      100, High: 102, Low: 99, Close: 101, Volume: 10,
	}
}

// TestBarValidate tests the malformed-bar checks
func TestBarValidate(t *testing.T) {
	require.NoError(t, validBar().Validate())

	cases := map[string]func(b *Bar){
		"negative price": func(b *Bar) { b.Low = -1 },
		"high below low": func(b *Bar) { b.High = 98 },
		"close above":    func(b *Bar) { b.Close = 103 },
		"volume":         func(b *Bar) { b.Volume = -5 },
		"timestamp":      func(b *Bar) { b.Timestamp = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := validBar()
			mutate(&b)
			err := b.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsDataError(err))
		})
	}
}

// TestTierFor tests the documented confidence thresholds
func TestTierFor(t *testing.T) {
	assert.Equal(t, TierWeak, TierFor(0))
	assert.Equal(t, TierWeak, TierFor(0.49))
	assert.Equal(t, TierModerate, TierFor(0.5))
	assert.Equal(t, TierModerate, TierFor(0.8))
	assert.Equal(t, TierStrong, TierFor(0.81))
}

// TestRiskProfileValidate tests that negative percentages are config errors
func TestRiskProfileValidate(t *testing.T) {
	require.NoError(t, DefaultRiskProfile().Validate())

	p := DefaultRiskProfile()
	p.StopLossPct = -0.1
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	p = DefaultRiskProfile()
	p.Tolerance = "yolo"
	assert.Error(t, p.Validate())
}

// TestRecordsPreserveFields tests that timestamps and signed decimals survive JSON encoding
func TestRecordsPreserveFields(t *testing.T) {
	exit := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	rec := TradeRecord{
		ID:         "t-1",
		Symbol:     "ETHUSDT",
		Direction:  DirectionSell,
		Quantity:   decimal.RequireFromString("-0.123456789012345678"),
		EntryTime:  exit.Add(-time.Hour),
		EntryPrice: decimal.RequireFromString("2500.1"),
		ExitTime:   &exit,
		ExitPrice:  decimal.RequireFromString("2400.05"),
		PnL:        decimal.RequireFromString("12.345678901234567891"),
		ExitReason: ExitTarget,
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var back TradeRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, rec.Quantity.Equal(back.Quantity))
	assert.True(t, rec.PnL.Equal(back.PnL))
	assert.True(t, rec.ExitTime.Equal(*back.ExitTime))
	assert.Equal(t, DirectionSell, back.Direction)
}

// TestSignalExpiry tests that a signal is void at and after expiry
func TestSignalExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := TradingSignal{GeneratedAt: now, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Hour)))
}
