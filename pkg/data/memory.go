package data

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// MemorySource serves bars held in memory, e.g. synthetic series in tests
type MemorySource struct {
	mu   sync.RWMutex
	bars map[string][]types.Bar
}

// NewMemorySource creates an empty in-memory source
func NewMemorySource() *MemorySource {
	return &MemorySource{bars: make(map[string][]types.Bar)}
}

// Add appends bars for symbol, keeping them sorted and unique by timestamp
func (m *MemorySource) Add(symbol string, bars ...types.Bar) {
	symbol = strings.ToUpper(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range bars {
		bars[i].Symbol = symbol
	}
	m.bars[symbol] = Normalize(append(m.bars[symbol], bars...))
}

func (m *MemorySource) Name() string { return "memory" }

func (m *MemorySource) BarsFor(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars, ok := m.bars[strings.ToUpper(symbol)]
	if !ok {
		return nil, errors.NewDataError("data", "MemorySource.BarsFor", fmt.Sprintf("no bars for %s", symbol)).WithContext("symbol", symbol)
	}
	out := FilterByDateRange(bars, start, end)
	return append([]types.Bar(nil), out...), nil
}
