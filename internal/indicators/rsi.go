package indicators

import (
	"fmt"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// RSI calculates the Relative Strength Index with Wilder smoothing
type RSI struct {
	period    int
	prevClose float64
	hasPrev   bool
	changes   int
	avgGain   float64
	avgLoss   float64
}

// NewRSI creates a new RSI instance with the given period
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update pushes one bar's close
func (r *RSI) Update(bar types.Bar) (float64, bool) {
	if !r.hasPrev {
		r.prevClose = bar.Close
		r.hasPrev = true
		return 0, false
	}
	change := bar.Close - r.prevClose
	r.prevClose = bar.Close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	r.changes++
	p := float64(r.period)
	if r.changes <= r.period {
		// seed with a simple mean of the first period changes
		r.avgGain += gain / p
		r.avgLoss += loss / p
	} else {
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}
	return r.Value()
}

// Value returns the current RSI in [0, 100]
func (r *RSI) Value() (float64, bool) {
	if r.changes < r.period {
		return 0, false
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs), true
}

func (r *RSI) Name() string         { return fmt.Sprintf("RSI(%d)", r.period) }
func (r *RSI) RequiredPeriods() int { return r.period + 1 }
func (r *RSI) Reset()               { *r = RSI{period: r.period} }
