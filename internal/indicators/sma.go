package indicators

import (
	"fmt"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// PriceSource picks the input value of a bar
type PriceSource func(types.Bar) float64

func ClosePrice(b types.Bar) float64 { return b.Close }
func BarVolume(b types.Bar) float64  { return b.Volume }

// SMA represents the Simple Moving Average technical indicator
type SMA struct {
	period int
	name   string
	source PriceSource
	buf    *window
}

// NewSMA creates an SMA over closing prices
func NewSMA(period int) *SMA {
	return newSMA(period, "SMA", ClosePrice)
}

// NewVolumeAverage creates a trailing mean of bar volume
func NewVolumeAverage(period int) *SMA {
	return newSMA(period, "VolumeAvg", BarVolume)
}

func newSMA(period int, name string, source PriceSource) *SMA {
	return &SMA{
		period: period,
		name:   fmt.Sprintf("%s(%d)", name, period),
		source: source,
		buf:    newWindow(period),
	}
}

// Update pushes one bar
func (s *SMA) Update(bar types.Bar) (float64, bool) {
	s.buf.push(s.source(bar))
	return s.Value()
}

// Value returns the current average once the window is full
func (s *SMA) Value() (float64, bool) {
	if !s.buf.full() {
		return 0, false
	}
	return s.buf.mean(), true
}

func (s *SMA) Name() string         { return s.name }
func (s *SMA) RequiredPeriods() int { return s.period }
func (s *SMA) Reset()               { s.buf.reset() }
