package analytics

import (
	"time"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// TradeStats summarizes closed round trips
type TradeStats struct {
	Total            int           `json:"total_trades"`
	Winners          int           `json:"winning_trades"`
	Losers           int           `json:"losing_trades"`
	WinRate          float64       `json:"win_rate"`
	ProfitFactor     float64       `json:"profit_factor"`
	AverageWin       float64       `json:"average_win"`
	AverageLoss      float64       `json:"average_loss"`
	Expectancy       float64       `json:"expectancy"`
	TotalPnL         float64       `json:"total_pnl"`
	TotalCommission  float64       `json:"total_commission"`
	AvgHoldingPeriod time.Duration `json:"avg_holding_period"`
}

// Trades computes statistics over closed trades. Open trades are ignored
// and a zero PnL counts as a loss.
func Trades(trades []types.TradeRecord) TradeStats {
	var (
		s                   TradeStats
		grossWin, grossLoss float64
		holding             time.Duration
	)
	for _, t := range trades {
		if !t.Closed() {
			continue
		}
		pnl := t.PnL.InexactFloat64()
		s.Total++
		s.TotalPnL += pnl
		s.TotalCommission += t.Commission.InexactFloat64()
		holding += t.HoldingPeriod
		if pnl > 0 {
			s.Winners++
			grossWin += pnl
		} else {
			s.Losers++
			grossLoss -= pnl
		}
	}
	if s.Total == 0 {
		return s
	}

	s.WinRate = float64(s.Winners) / float64(s.Total)
	s.AvgHoldingPeriod = holding / time.Duration(s.Total)
	if s.Winners > 0 {
		s.AverageWin = grossWin / float64(s.Winners)
	}
	if s.Losers > 0 {
		s.AverageLoss = -grossLoss / float64(s.Losers)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossWin / grossLoss
		if s.ProfitFactor > ProfitFactorCap {
			s.ProfitFactor = ProfitFactorCap
		}
	case grossWin > 0:
		s.ProfitFactor = ProfitFactorCap
	}
	s.Expectancy = s.WinRate*s.AverageWin + (1-s.WinRate)*s.AverageLoss
	return s
}

// ExposureTime is the fraction of equity samples holding any position
func ExposureTime(curve []types.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	n := 0
	for _, p := range curve {
		if p.GrossExposure > 0 {
			n++
		}
	}
	return float64(n) / float64(len(curve))
}
