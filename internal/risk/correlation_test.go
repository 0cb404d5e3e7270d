package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

func TestReturnCorrelations(t *testing.T) {
	c := NewReturnCorrelations(50)
	for i := 0; i < 40; i++ {
		ts := now.Add(time.Duration(i) * time.Hour)
		wave := math.Sin(float64(i) / 3)
		c.Observe(types.Bar{Symbol: "A", Timestamp: ts, Close: 100 + 5*wave})
		c.Observe(types.Bar{Symbol: "B", Timestamp: ts, Close: 50 + 2.5*wave})
		c.Observe(types.Bar{Symbol: "C", Timestamp: ts, Close: 80 - 4*wave})
	}

	rho, ok := c.Correlation("A", "B")
	assert.True(t, ok)
	assert.InDelta(t, 1, rho, 0.01)

	rho, ok = c.Correlation("A", "C")
	assert.True(t, ok)
	assert.Less(t, rho, -0.9)

	_, ok = c.Correlation("A", "unknown")
	assert.False(t, ok)

	rho, ok = c.Correlation("A", "A")
	assert.True(t, ok)
	assert.Equal(t, 1.0, rho)
}

func TestCorrelationMatrixSymmetric(t *testing.T) {
	m := CorrelationMatrix{"A": {"B": 0.4}}
	v, ok := m.Correlation("B", "A")
	assert.True(t, ok)
	assert.Equal(t, 0.4, v)
	_, ok = m.Correlation("A", "C")
	assert.False(t, ok)
}
