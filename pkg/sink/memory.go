package sink

import (
	"context"
	"sync"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Memory keeps everything in process, keyed by run id
type Memory struct {
	mu      sync.RWMutex
	signals map[string][]types.TradingSignal
	trades  map[string][]types.TradeRecord
	equity  map[string][]types.EquityPoint
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		signals: make(map[string][]types.TradingSignal),
		trades:  make(map[string][]types.TradeRecord),
		equity:  make(map[string][]types.EquityPoint),
	}
}

func (m *Memory) WriteSignal(ctx context.Context, runID string, sig types.TradingSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.signals[runID] = append(m.signals[runID], sig)
	return nil
}

func (m *Memory) WriteTrade(ctx context.Context, runID string, trade types.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.trades[runID] = append(m.trades[runID], trade)
	return nil
}

func (m *Memory) WriteEquity(ctx context.Context, runID string, point types.EquityPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.equity[runID] = append(m.equity[runID], point)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Signals returns a copy of the signals written for runID
func (m *Memory) Signals(runID string) []types.TradingSignal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.TradingSignal(nil), m.signals[runID]...)
}

// Trades returns a copy of the trades written for runID
func (m *Memory) Trades(runID string) []types.TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.TradeRecord(nil), m.trades[runID]...)
}

// Equity returns a copy of the equity samples written for runID
func (m *Memory) Equity(runID string) []types.EquityPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.EquityPoint(nil), m.equity[runID]...)
}
