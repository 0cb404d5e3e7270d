package backtest

import (
	"fmt"
	"time"

	"github.com/ducminhle1904/tradecore/internal/analytics"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Results is a snapshot of a replay. It is partial unless State is Completed.
type Results struct {
	RunID         string                `json:"run_id"`
	Strategy      string                `json:"strategy"`
	State         State                 `json:"state"`
	Fault         error                 `json:"-"`
	FaultMessage  string                `json:"fault,omitempty"`
	InitialCash   float64               `json:"initial_cash"`
	FinalValue    float64               `json:"final_value"`
	Trades        []types.TradeRecord   `json:"trades"`
	OpenTrades    []types.TradeRecord   `json:"open_trades,omitempty"`
	Fills         []types.Fill          `json:"fills"`
	Equity        []types.EquityPoint   `json:"equity"`
	Signals       []types.TradingSignal `json:"signals"`
	Rejections    map[string]int        `json:"rejections"`
	BarsProcessed int                   `json:"bars_processed"`
	DataErrors    int                   `json:"data_errors"`
	Start         time.Time             `json:"start"`
	End           time.Time             `json:"end"`
}

// TotalReturn is final over initial value, minus one
func (r *Results) TotalReturn() float64 {
	if r.InitialCash == 0 {
		return 0
	}
	return r.FinalValue/r.InitialCash - 1
}

// RejectionCount sums rejections over all reasons
func (r *Results) RejectionCount() int {
	n := 0
	for _, v := range r.Rejections {
		n += v
	}
	return n
}

// Analyze scores the run's equity curve and trades
func (r *Results) Analyze(benchmark []float64, opts analytics.Options) (analytics.Report, error) {
	return analytics.Compute(r.Equity, r.Trades, benchmark, opts)
}

// PrintSummary writes a short plain-text summary to stdout
func (r *Results) PrintSummary() {
	fmt.Printf("=== Backtest Results (%s) ===\n", r.RunID)
	fmt.Printf("Strategy: %s | State: %s\n", r.Strategy, r.State)
	fmt.Printf("Initial Cash: $%.2f\n", r.InitialCash)
	fmt.Printf("Final Value: $%.2f\n", r.FinalValue)
	fmt.Printf("Total Return: %.2f%%\n", r.TotalReturn()*100)
	fmt.Printf("Trades: %d | Signals: %d | Rejections: %d\n", len(r.Trades), len(r.Signals), r.RejectionCount())
	fmt.Printf("Bars: %d | Data errors: %d\n", r.BarsProcessed, r.DataErrors)
	if r.FaultMessage != "" {
		fmt.Printf("Fault: %s\n", r.FaultMessage)
	}
}
