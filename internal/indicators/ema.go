package indicators

import (
	"fmt"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// EMA represents the Exponential Moving Average technical indicator.
// The first value is the SMA of the first period closes.
type EMA struct {
	period    int
	alpha     float64
	seed      *window
	lastValue float64
	ready     bool
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
		seed:   newWindow(period),
	}
}

// Update pushes one bar's close
func (e *EMA) Update(bar types.Bar) (float64, bool) {
	return e.UpdateSingle(bar.Close)
}

// UpdateSingle updates the EMA with a single raw value
func (e *EMA) UpdateSingle(value float64) (float64, bool) {
	if !e.ready {
		e.seed.push(value)
		if !e.seed.full() {
			return 0, false
		}
		e.lastValue = e.seed.mean()
		e.ready = true
		return e.lastValue, true
	}
	// EMA = (Value * Alpha) + (Previous EMA * (1 - Alpha))
	e.lastValue = value*e.alpha + e.lastValue*(1-e.alpha)
	return e.lastValue, true
}

func (e *EMA) Value() (float64, bool) { return e.lastValue, e.ready }
func (e *EMA) Name() string           { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *EMA) RequiredPeriods() int   { return e.period }

func (e *EMA) Reset() {
	e.seed.reset()
	e.lastValue = 0
	e.ready = false
}
