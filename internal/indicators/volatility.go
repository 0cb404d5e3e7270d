package indicators

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// DefaultPeriodsPerYear annualizes daily bars
const DefaultPeriodsPerYear = 252

// Volatility is the annualized sample standard deviation of log returns
// over a trailing window.
type Volatility struct {
	period         int
	periodsPerYear float64
	returns        *window
	prevClose      float64
	hasPrev        bool
}

// NewVolatility creates a volatility indicator over period returns
func NewVolatility(period int, periodsPerYear float64) *Volatility {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	return &Volatility{
		period:         period,
		periodsPerYear: periodsPerYear,
		returns:        newWindow(period),
	}
}

// Update pushes one bar's close
func (v *Volatility) Update(bar types.Bar) (float64, bool) {
	if v.hasPrev && v.prevClose > 0 && bar.Close > 0 {
		v.returns.push(math.Log(bar.Close / v.prevClose))
	}
	v.prevClose = bar.Close
	v.hasPrev = true
	return v.Value()
}

// Value returns the annualized volatility once the window is full
func (v *Volatility) Value() (float64, bool) {
	if v.period < 2 || !v.returns.full() {
		return 0, false
	}
	sd := stat.StdDev(v.returns.ordered(), nil)
	if math.IsNaN(sd) {
		return 0, false
	}
	return sd * math.Sqrt(v.periodsPerYear), true
}

func (v *Volatility) Name() string         { return fmt.Sprintf("Volatility(%d)", v.period) }
func (v *Volatility) RequiredPeriods() int { return v.period + 1 }

func (v *Volatility) Reset() {
	v.returns.reset()
	v.prevClose = 0
	v.hasPrev = false
}
