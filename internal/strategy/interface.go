package strategy

import (
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Strategy defines the interface the backtest and live loops drive
type Strategy interface {
	// Name returns the name of the strategy
	Name() string

	// SeriesConfig describes the indicators and bar window the strategy reads
	SeriesConfig() indicators.SeriesConfig

	// Generate evaluates the latest bar of window and returns a signal, or nil.
	// Implementations must be pure functions of their inputs and registry state.
	Generate(symbol string, window []types.Bar, snap indicators.Snapshot) *types.TradingSignal
}

// TradeObserver is implemented by strategies that learn from closed trades
type TradeObserver interface {
	OnTradeClosed(rec types.TradeRecord)
}
