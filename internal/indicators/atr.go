package indicators

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// ATR represents the Average True Range technical indicator.
// ATR measures market volatility by decomposing the entire range of an asset price for that period.
type ATR struct {
	period    int
	lastClose float64
	bars      int
	value     float64
}

// NewATR creates a new ATR indicator
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Update pushes one bar
func (a *ATR) Update(bar types.Bar) (float64, bool) {
	var tr float64
	if a.bars == 0 {
		tr = bar.High - bar.Low
	} else {
		tr = trueRange(bar, a.lastClose)
	}
	a.lastClose = bar.Close
	a.bars++

	p := float64(a.period)
	if a.bars <= a.period {
		a.value += tr / p
	} else {
		// Wilder smoothing
		a.value = (a.value*(p-1) + tr) / p
	}
	return a.Value()
}

// Value returns the ATR once period bars have been seen
func (a *ATR) Value() (float64, bool) {
	if a.bars < a.period {
		return 0, false
	}
	return a.value, true
}

// trueRange = max(High-Low, |High-PrevClose|, |Low-PrevClose|)
func trueRange(current types.Bar, prevClose float64) float64 {
	hl := current.High - current.Low
	hc := math.Abs(current.High - prevClose)
	lc := math.Abs(current.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

func (a *ATR) Name() string         { return fmt.Sprintf("ATR(%d)", a.period) }
func (a *ATR) RequiredPeriods() int { return a.period }
func (a *ATR) Reset()               { *a = ATR{period: a.period} }
