package indicators

import (
	"fmt"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Indicator is an incrementally updated technical indicator. Update consumes
// exactly one bar; ok is false until the warm-up window is filled.
type Indicator interface {
	Update(bar types.Bar) (value float64, ok bool)
	Value() (float64, bool)
	Name() string
	RequiredPeriods() int
	Reset()
}

// Calculate resets ind, replays data through it and returns the final value
func Calculate(ind Indicator, data []types.Bar) (float64, error) {
	if len(data) < ind.RequiredPeriods() {
		return 0, NewInsufficientDataError(ind.Name(), len(data), ind.RequiredPeriods())
	}
	ind.Reset()
	var (
		v  float64
		ok bool
	)
	for _, b := range data {
		v, ok = ind.Update(b)
	}
	if !ok {
		return 0, NewInsufficientDataError(ind.Name(), len(data), ind.RequiredPeriods())
	}
	return v, nil
}

// InsufficientDataError represents an error when there's not enough data for calculation
type InsufficientDataError struct {
	Indicator string
	Available int
	Required  int
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d, need %d",
		e.Indicator, e.Available, e.Required)
}

func NewInsufficientDataError(indicator string, available, required int) *InsufficientDataError {
	return &InsufficientDataError{
		Indicator: indicator,
		Available: available,
		Required:  required,
	}
}

// window is a fixed-size ring buffer with a running sum
type window struct {
	values []float64
	next   int
	count  int
	sum    float64
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{values: make([]float64, size)}
}

func (w *window) push(v float64) {
	evicted := 0.0
	if w.count < len(w.values) {
		w.count++
	} else {
		evicted = w.values[w.next]
	}
	w.values[w.next] = v
	w.next = (w.next + 1) % len(w.values)
	w.sum += v - evicted
}

func (w *window) full() bool { return w.count == len(w.values) }

func (w *window) mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// ordered returns the contents oldest first
func (w *window) ordered() []float64 {
	out := make([]float64, 0, w.count)
	start := 0
	if w.full() {
		start = w.next
	}
	for i := 0; i < w.count; i++ {
		out = append(out, w.values[(start+i)%len(w.values)])
	}
	return out
}

func (w *window) reset() {
	for i := range w.values {
		w.values[i] = 0
	}
	w.next, w.count, w.sum = 0, 0, 0
}
