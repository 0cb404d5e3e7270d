package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

func TestNewSMA(t *testing.T) {
	sma := NewSMA(20)

	assert.NotNil(t, sma)
	assert.Equal(t, 20, sma.RequiredPeriods())
	_, ok := sma.Value()
	assert.False(t, ok)
}

func TestSMA_Calculate_InsufficientData(t *testing.T) {
	sma := NewSMA(20)
	data := generateTestData(10)

	_, err := Calculate(sma, data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient data")
}

func TestSMA_Calculate_MoreThanPeriod(t *testing.T) {
	sma := NewSMA(5)
	data := generateTestData(10)

	value, err := Calculate(sma, data)
	require.NoError(t, err)

	// Should use only the last 5 values
	expectedSum := 0.0
	for i := 5; i < 10; i++ {
		expectedSum += data[i].Close
	}
	assert.InDelta(t, expectedSum/5.0, value, 1e-9)
}

func TestSMA_IncrementalMatchesBatch(t *testing.T) {
	data := generateTestData(40)
	inc := NewSMA(7)
	var last float64
	for _, b := range data {
		last, _ = inc.Update(b)
	}

	batch, err := Calculate(NewSMA(7), data)
	require.NoError(t, err)
	assert.InDelta(t, batch, last, 1e-9)
}

func TestVolumeAverage(t *testing.T) {
	data := generateFlatData(5, 100)
	for i := range data {
		data[i].Volume = float64(i + 1)
	}
	v, err := Calculate(NewVolumeAverage(5), data)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-12)
}

func TestEMA_SeededWithSMA(t *testing.T) {
	data := generateTestData(5)
	ema := NewEMA(5)
	var (
		v  float64
		ok bool
	)
	for i, b := range data {
		v, ok = ema.Update(b)
		if i < 4 {
			assert.False(t, ok)
		}
	}
	require.True(t, ok)

	sma, err := Calculate(NewSMA(5), data)
	require.NoError(t, err)
	assert.InDelta(t, sma, v, 1e-9)

	// next value follows the smoothing formula
	next := types.Bar{Symbol: "TEST", Timestamp: data[4].Timestamp.Add(time.Hour), Open: 200, High: 200, Low: 200, Close: 200, Volume: 1}
	v2, _ := ema.Update(next)
	alpha := 2.0 / 6.0
	assert.InDelta(t, 200*alpha+sma*(1-alpha), v2, 1e-9)
}

func TestRSI_Extremes(t *testing.T) {
	rising, err := Calculate(NewRSI(14), generateRisingData(30, 100, 0.01))
	require.NoError(t, err)
	assert.Equal(t, 100.0, rising)

	falling, err := Calculate(NewRSI(14), generateRisingData(30, 100, -0.01))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, falling, 1e-9)

	flat, err := Calculate(NewRSI(14), generateFlatData(30, 100))
	require.NoError(t, err)
	assert.Equal(t, 50.0, flat)
}

func TestRSI_RequiresPeriodPlusOne(t *testing.T) {
	rsi := NewRSI(14)
	data := generateTestData(14)
	_, err := Calculate(rsi, data)
	require.Error(t, err)

	_, err = Calculate(rsi, generateTestData(15))
	require.NoError(t, err)
}

func TestRSI_Bounded(t *testing.T) {
	rsi := NewRSI(14)
	for _, b := range generateVolatileData(200) {
		if v, ok := rsi.Update(b); ok {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestATR_ConstantRange(t *testing.T) {
	data := generateFlatData(20, 100)
	for i := range data {
		data[i].High = 101
		data[i].Low = 99
	}
	v, err := Calculate(NewATR(14), data)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestATR_UsesPreviousCloseGap(t *testing.T) {
	atr := NewATR(1)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	atr.Update(types.Bar{Timestamp: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1})
	v, ok := atr.Update(types.Bar{Timestamp: base.Add(time.Hour), Open: 110, High: 111, Low: 109, Close: 110, Volume: 1})
	require.True(t, ok)
	assert.InDelta(t, 11.0, v, 1e-9)
}

func TestVolatility_FlatIsZero(t *testing.T) {
	v, err := Calculate(NewVolatility(20, 252), generateFlatData(30, 100))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestVolatility_Annualized(t *testing.T) {
	// alternating +/-1% moves
	data := generateFlatData(22, 100)
	for i := range data {
		if i%2 == 1 {
			data[i].Close, data[i].Open, data[i].High = 101, 101, 101
		}
	}
	v, err := Calculate(NewVolatility(20, 252), data)
	require.NoError(t, err)
	assert.Greater(t, v, 0.1)
	assert.False(t, math.IsNaN(v))
}

// generateTestData creates deterministic bars with a gentle oscillation
func generateTestData(count int) []types.Bar {
	data := make([]types.Bar, count)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		price := 100.0 + float64(i)*0.5 + math.Sin(float64(i))*2
		data[i] = types.Bar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000 + float64(i),
		}
	}
	return data
}

// generateFlatData creates bars at a constant price
func generateFlatData(count int, price float64) []types.Bar {
	data := make([]types.Bar, count)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		data[i] = types.Bar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		}
	}
	return data
}

// generateRisingData compounds the price by rate per bar
func generateRisingData(count int, start, rate float64) []types.Bar {
	data := make([]types.Bar, count)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < count; i++ {
		data[i] = types.Bar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		}
		price *= 1 + rate
	}
	return data
}

// generateVolatileData swings the price around 100
func generateVolatileData(count int) []types.Bar {
	data := make([]types.Bar, count)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		price := 100 + 15*math.Sin(float64(i)*0.7) + 5*math.Cos(float64(i)*2.3)
		data[i] = types.Bar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1000,
		}
	}
	return data
}
