package sink

import (
	"context"

	"github.com/ducminhle1904/tradecore/internal/safety"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Guarded routes writes through a circuit breaker so a dead store fails fast
// instead of stalling every bar
type Guarded struct {
	inner   Sink
	breaker *safety.CircuitBreaker
}

func NewGuarded(inner Sink, breaker *safety.CircuitBreaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) WriteSignal(ctx context.Context, runID string, sig types.TradingSignal) error {
	return g.breaker.Call(func() error { return g.inner.WriteSignal(ctx, runID, sig) })
}

func (g *Guarded) WriteTrade(ctx context.Context, runID string, trade types.TradeRecord) error {
	return g.breaker.Call(func() error { return g.inner.WriteTrade(ctx, runID, trade) })
}

func (g *Guarded) WriteEquity(ctx context.Context, runID string, point types.EquityPoint) error {
	return g.breaker.Call(func() error { return g.inner.WriteEquity(ctx, runID, point) })
}

// Close always reaches the inner sink
func (g *Guarded) Close() error { return g.inner.Close() }
