package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderKind distinguishes intents that open/add exposure from those that close it
type OrderKind string

const (
	OrderKindOpen  OrderKind = "open"
	OrderKindClose OrderKind = "close"
)

// OrderIntent is a sized, risk-bounded instruction. Immutable once produced.
type OrderIntent struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Direction      Direction       `json:"direction"`
	Quantity       decimal.Decimal `json:"quantity"`
	StopPrice      decimal.Decimal `json:"stop_price"`
	TargetPrice    decimal.Decimal `json:"target_price"`
	Kind           OrderKind       `json:"order_kind"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	RuleIDs        []string        `json:"rule_ids,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Notional returns quantity × reference price
func (o OrderIntent) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.ReferencePrice)
}

// SignedQuantity is positive for buys and negative for sells
func (o OrderIntent) SignedQuantity() decimal.Decimal {
	if o.Direction == DirectionSell {
		return o.Quantity.Neg()
	}
	return o.Quantity
}

// Fill is the executed result of an intent, applied exactly once to a portfolio
type Fill struct {
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Price      decimal.Decimal `json:"fill_price"`
	Quantity   decimal.Decimal `json:"fill_quantity"`
	Commission decimal.Decimal `json:"commission"`
	Slippage   decimal.Decimal `json:"slippage"`
	Timestamp  time.Time       `json:"timestamp"`
}

// SignedQuantity is positive for buys and negative for sells
func (f Fill) SignedQuantity() decimal.Decimal {
	if f.Direction == DirectionSell {
		return f.Quantity.Neg()
	}
	return f.Quantity
}

// Notional returns price × quantity
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Quantity)
}
