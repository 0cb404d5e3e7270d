package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a signed holding in one symbol; positive quantity is long
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	OpenedAt      time.Time       `json:"opened_at"`
	RuleIDs       []string        `json:"rule_ids,omitempty"`
}

// IsLong reports a positive quantity
func (p Position) IsLong() bool { return p.Quantity.IsPositive() }

// IsFlat reports a zero quantity
func (p Position) IsFlat() bool { return p.Quantity.IsZero() }

// Direction returns Buy for longs, Sell for shorts, None when flat
func (p Position) Direction() Direction {
	switch p.Quantity.Sign() {
	case 1:
		return DirectionBuy
	case -1:
		return DirectionSell
	default:
		return DirectionNone
	}
}

// MarketValue returns quantity × mark
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.MarkPrice)
}

// EquityPoint is one sample of the equity curve
type EquityPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalValue    float64   `json:"total_value"`
	Cash          float64   `json:"cash"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	GrossExposure float64   `json:"gross_exposure"`
}

// ExitReason records why a trade was closed
type ExitReason string

const (
	ExitSignal    ExitReason = "signal"
	ExitStopLoss  ExitReason = "stop_loss"
	ExitTarget    ExitReason = "take_profit"
	ExitEndOfRun  ExitReason = "end_of_run"
	ExitReduction ExitReason = "reduction"
)

// TradeRecord is one round trip. Exit fields are zero while the trade is open.
type TradeRecord struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Direction     Direction       `json:"direction"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryTime     time.Time       `json:"entry_time"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	ExitTime      *time.Time      `json:"exit_time,omitempty"`
	ExitPrice     decimal.Decimal `json:"exit_price"`
	PnL           decimal.Decimal `json:"pnl"`
	Commission    decimal.Decimal `json:"commission"`
	HoldingPeriod time.Duration   `json:"holding_period"`
	ExitReason    ExitReason      `json:"exit_reason,omitempty"`
	RuleIDs       []string        `json:"rule_ids,omitempty"`
}

// Closed reports whether the trade has an exit
func (t TradeRecord) Closed() bool { return t.ExitTime != nil }
