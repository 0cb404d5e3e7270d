package risk

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// CorrelationSource supplies pairwise return correlations. ok is false when
// the pair is unknown; such pairs contribute no correlated exposure.
type CorrelationSource interface {
	Correlation(a, b string) (float64, bool)
}

// CorrelationMatrix is a static, symmetric correlation lookup
type CorrelationMatrix map[string]map[string]float64

// Correlation looks up a/b in either order
func (m CorrelationMatrix) Correlation(a, b string) (float64, bool) {
	if a == b {
		return 1, true
	}
	if row, ok := m[a]; ok {
		if v, ok := row[b]; ok {
			return v, true
		}
	}
	if row, ok := m[b]; ok {
		if v, ok := row[a]; ok {
			return v, true
		}
	}
	return 0, false
}

type returnPoint struct {
	ts  time.Time
	ret float64
}

// minOverlap is the fewest shared observations a pair needs
const minOverlap = 10

// ReturnCorrelations estimates correlations from trailing log returns of
// observed bars, aligned by timestamp.
type ReturnCorrelations struct {
	mu      sync.RWMutex
	window  int
	last    map[string]float64
	returns map[string][]returnPoint
}

// NewReturnCorrelations keeps up to window returns per symbol
func NewReturnCorrelations(window int) *ReturnCorrelations {
	if window < minOverlap {
		window = minOverlap
	}
	return &ReturnCorrelations{
		window:  window,
		last:    make(map[string]float64),
		returns: make(map[string][]returnPoint),
	}
}

// Observe records the close of bar
func (c *ReturnCorrelations) Observe(bar types.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.last[bar.Symbol]
	c.last[bar.Symbol] = bar.Close
	if !ok || prev <= 0 || bar.Close <= 0 {
		return
	}
	rs := append(c.returns[bar.Symbol], returnPoint{ts: bar.Timestamp, ret: math.Log(bar.Close / prev)})
	if len(rs) > c.window {
		rs = rs[len(rs)-c.window:]
	}
	c.returns[bar.Symbol] = rs
}

// Correlation returns the Pearson correlation of a and b over shared timestamps
func (c *ReturnCorrelations) Correlation(a, b string) (float64, bool) {
	if a == b {
		return 1, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	byTime := make(map[time.Time]float64, len(c.returns[b]))
	for _, p := range c.returns[b] {
		byTime[p.ts] = p.ret
	}
	var x, y []float64
	for _, p := range c.returns[a] {
		if r, ok := byTime[p.ts]; ok {
			x = append(x, p.ret)
			y = append(y, r)
		}
	}
	if len(x) < minOverlap {
		return 0, false
	}
	corr := stat.Correlation(x, y, nil)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0, false
	}
	return corr, true
}
