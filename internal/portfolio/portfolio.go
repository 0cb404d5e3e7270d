package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// position is the internal ledger entry. cost is the signed cost basis
// (sum of price x signed quantity of the open lots), so avg = cost / qty.
type position struct {
	qty      decimal.Decimal
	cost     decimal.Decimal
	mark     decimal.Decimal
	stop     decimal.Decimal
	target   decimal.Decimal
	openedAt time.Time
	ruleIDs  []string
}

// openTrade is the in-progress round trip of a position
type openTrade struct {
	rec        types.TradeRecord
	entryComm  decimal.Decimal
	entryCount int
}

// FillMeta carries attribution that is not part of the fill itself
type FillMeta struct {
	StopPrice   decimal.Decimal
	TargetPrice decimal.Decimal
	RuleIDs     []string
	ExitReason  types.ExitReason
}

// Portfolio is the single mutable aggregate of cash, positions and realized
// PnL. Every method is serialized by one mutex; fills are applied exactly once.
//
// Accounting identity maintained on every fill:
//
//	cash == initial + realized - sum(cost basis of open positions)
//
// so total value == cash + sum(qty x mark) == initial + realized + unrealized.
type Portfolio struct {
	mu        sync.Mutex
	initial   decimal.Decimal
	cash      decimal.Decimal
	realized  decimal.Decimal
	positions map[string]*position
	open      map[string]*openTrade
	ledger    []types.TradeRecord
	applied   map[string]bool
	fills     []types.Fill
}

// New creates a portfolio holding only cash
func New(cash decimal.Decimal) (*Portfolio, error) {
	if !cash.IsPositive() {
		return nil, errors.NewConfigError("portfolio", "New", fmt.Sprintf("starting cash must be positive, got: %s", cash))
	}
	return &Portfolio{
		initial:   cash,
		cash:      cash,
		positions: make(map[string]*position),
		open:      make(map[string]*openTrade),
		applied:   make(map[string]bool),
	}, nil
}

// ApplyFill books one fill and returns any trade records it closed.
// A fill is rejected with a SimulationFault if it is malformed or its
// order id was already applied; the portfolio is then unchanged.
func (p *Portfolio) ApplyFill(f types.Fill, meta FillMeta) ([]types.TradeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateFill(f); err != nil {
		return nil, err
	}
	if p.applied[f.OrderID] {
		return nil, errors.NewSimulationFault("portfolio", "ApplyFill", "fill applied twice").
			WithContext("order", f.OrderID)
	}
	p.applied[f.OrderID] = true
	p.fills = append(p.fills, f)

	q := f.SignedQuantity()
	p.cash = p.cash.Sub(f.Price.Mul(q)).Sub(f.Commission)
	p.realized = p.realized.Sub(f.Commission)

	pos, ok := p.positions[f.Symbol]
	if !ok {
		pos = &position{}
		p.positions[f.Symbol] = pos
	}
	pos.mark = f.Price

	var closed []types.TradeRecord
	switch {
	case pos.qty.IsZero() || pos.qty.Sign() == q.Sign():
		p.increase(pos, f, q, f.Commission, meta)
	default:
		closeQ := q
		if q.Abs().GreaterThan(pos.qty.Abs()) {
			closeQ = pos.qty.Neg()
		}
		remainder := q.Sub(closeQ)

		closeComm := f.Commission
		openComm := decimal.Zero
		if !remainder.IsZero() {
			closeComm = f.Commission.Mul(closeQ.Abs()).Div(q.Abs())
			openComm = f.Commission.Sub(closeComm)
		}
		closed = append(closed, p.reduce(pos, f, closeQ, closeComm, meta))

		if !remainder.IsZero() {
			p.increase(pos, f, remainder, openComm, meta)
		}
	}

	if pos.qty.IsZero() {
		delete(p.positions, f.Symbol)
	}
	p.ledger = append(p.ledger, closed...)
	return closed, nil
}

func validateFill(f types.Fill) error {
	fault := func(msg string) error {
		return errors.NewSimulationFault("portfolio", "ApplyFill", msg).
			WithContext("order", f.OrderID).WithContext("symbol", f.Symbol)
	}
	switch {
	case f.OrderID == "":
		return fault("fill without order reference")
	case f.Symbol == "":
		return fault("fill without symbol")
	case f.Direction != types.DirectionBuy && f.Direction != types.DirectionSell:
		return fault("fill without side")
	case !f.Price.IsPositive():
		return fault("non-positive fill price")
	case !f.Quantity.IsPositive():
		return fault("non-positive fill quantity")
	case f.Commission.IsNegative():
		return fault("negative commission")
	}
	return nil
}

// increase adds signed quantity q in the position's direction
func (p *Portfolio) increase(pos *position, f types.Fill, q, comm decimal.Decimal, meta FillMeta) {
	if pos.qty.IsZero() {
		pos.openedAt = f.Timestamp
		pos.ruleIDs = append([]string(nil), meta.RuleIDs...)
		p.open[f.Symbol] = &openTrade{rec: types.TradeRecord{
			ID:        f.OrderID,
			Symbol:    f.Symbol,
			Direction: f.Direction,
			EntryTime: f.Timestamp,
			RuleIDs:   append([]string(nil), meta.RuleIDs...),
		}}
	} else {
		pos.ruleIDs = mergeIDs(pos.ruleIDs, meta.RuleIDs)
	}
	pos.qty = pos.qty.Add(q)
	pos.cost = pos.cost.Add(f.Price.Mul(q))
	if !meta.StopPrice.IsZero() {
		pos.stop = meta.StopPrice
	}
	if !meta.TargetPrice.IsZero() {
		pos.target = meta.TargetPrice
	}

	ot := p.open[f.Symbol]
	ot.entryComm = ot.entryComm.Add(comm)
	ot.entryCount++
	ot.rec.Quantity = pos.qty.Abs()
	ot.rec.EntryPrice = pos.cost.Div(pos.qty)
	ot.rec.RuleIDs = mergeIDs(ot.rec.RuleIDs, meta.RuleIDs)
}

// reduce closes closeQ (opposite sign to the position) and returns the
// closed portion as a trade record
func (p *Portfolio) reduce(pos *position, f types.Fill, closeQ, exitComm decimal.Decimal, meta FillMeta) types.TradeRecord {
	full := closeQ.Abs().Equal(pos.qty.Abs())

	costRemoved := pos.cost
	if !full {
		costRemoved = pos.cost.Mul(closeQ.Abs()).Div(pos.qty.Abs())
	}
	gross := f.Price.Mul(closeQ).Neg().Sub(costRemoved)
	p.realized = p.realized.Add(gross)

	ot := p.open[f.Symbol]
	entryAlloc := ot.entryComm
	if !full {
		entryAlloc = ot.entryComm.Mul(closeQ.Abs()).Div(pos.qty.Abs())
	}
	ot.entryComm = ot.entryComm.Sub(entryAlloc)

	exitTime := f.Timestamp
	rec := ot.rec
	rec.RuleIDs = append([]string(nil), ot.rec.RuleIDs...)
	rec.Quantity = closeQ.Abs()
	rec.ExitTime = &exitTime
	rec.ExitPrice = f.Price
	rec.Commission = entryAlloc.Add(exitComm)
	rec.PnL = gross.Sub(rec.Commission)
	rec.HoldingPeriod = f.Timestamp.Sub(rec.EntryTime)
	rec.ExitReason = meta.ExitReason
	if rec.ExitReason == "" {
		rec.ExitReason = types.ExitSignal
	}
	if !full {
		rec.ID = fmt.Sprintf("%s/%s", ot.rec.ID, f.OrderID)
		if meta.ExitReason == "" {
			rec.ExitReason = types.ExitReduction
		}
	}

	pos.qty = pos.qty.Add(closeQ)
	pos.cost = pos.cost.Sub(costRemoved)
	if full {
		delete(p.open, f.Symbol)
		pos.stop, pos.target = decimal.Zero, decimal.Zero
	} else {
		ot.rec.Quantity = pos.qty.Abs()
	}
	return rec
}

func mergeIDs(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, id := range b {
		found := false
		for _, x := range out {
			if x == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}

// Mark updates the mark price of an open position. Unknown symbols are ignored.
func (p *Portfolio) Mark(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[symbol]; ok && price.IsPositive() {
		pos.mark = price
	}
}

// SetProtection replaces the stop and target of an open position
func (p *Portfolio) SetProtection(symbol string, stop, target decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[symbol]; ok {
		pos.stop, pos.target = stop, target
	}
}

// Snapshot is a consistent, immutable copy of portfolio state
type Snapshot struct {
	InitialCash   decimal.Decimal
	Cash          decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	TotalValue    decimal.Decimal
	GrossExposure decimal.Decimal
	Positions     map[string]types.Position
}

// Position returns the open position of symbol
func (s Snapshot) Position(symbol string) (types.Position, bool) {
	pos, ok := s.Positions[symbol]
	return pos, ok
}

// Symbols returns the symbols with open positions, sorted
func (s Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Positions))
	for sym := range s.Positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the current state under the portfolio lock
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Portfolio) snapshotLocked() Snapshot {
	s := Snapshot{
		InitialCash: p.initial,
		Cash:        p.cash,
		RealizedPnL: p.realized,
		TotalValue:  p.cash,
		Positions:   make(map[string]types.Position, len(p.positions)),
	}
	for sym, pos := range p.positions {
		value := pos.qty.Mul(pos.mark)
		unrealized := value.Sub(pos.cost)
		s.TotalValue = s.TotalValue.Add(value)
		s.UnrealizedPnL = s.UnrealizedPnL.Add(unrealized)
		s.GrossExposure = s.GrossExposure.Add(value.Abs())
		s.Positions[sym] = types.Position{
			Symbol:        sym,
			Quantity:      pos.qty,
			AvgPrice:      pos.cost.Div(pos.qty),
			UnrealizedPnL: unrealized,
			MarkPrice:     pos.mark,
			StopPrice:     pos.stop,
			TargetPrice:   pos.target,
			OpenedAt:      pos.openedAt,
			RuleIDs:       append([]string(nil), pos.ruleIDs...),
		}
	}
	return s
}

// EquityPoint samples the equity curve at ts
func (p *Portfolio) EquityPoint(ts time.Time) types.EquityPoint {
	s := p.Snapshot()
	return types.EquityPoint{
		Timestamp:     ts,
		TotalValue:    s.TotalValue.InexactFloat64(),
		Cash:          s.Cash.InexactFloat64(),
		UnrealizedPnL: s.UnrealizedPnL.InexactFloat64(),
		RealizedPnL:   s.RealizedPnL.InexactFloat64(),
		GrossExposure: s.GrossExposure.InexactFloat64(),
	}
}

// Trades returns the closed trade ledger in close order
func (p *Portfolio) Trades() []types.TradeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.TradeRecord(nil), p.ledger...)
}

// OpenTrades returns the in-progress round trips, sorted by symbol
func (p *Portfolio) OpenTrades() []types.TradeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.TradeRecord, 0, len(p.open))
	for _, ot := range p.open {
		out = append(out, ot.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Fills returns every applied fill in application order
func (p *Portfolio) Fills() []types.Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Fill(nil), p.fills...)
}

// Reconcile verifies the accounting identity and that each position equals
// the signed sum of its fills. A violation is a SimulationFault.
func (p *Portfolio) Reconcile() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	openCost := decimal.Zero
	for _, pos := range p.positions {
		openCost = openCost.Add(pos.cost)
	}
	expected := p.initial.Add(p.realized).Sub(openCost)
	if !expected.Equal(p.cash) {
		return errors.NewSimulationFault("portfolio", "Reconcile", "cash does not reconcile").
			WithContext("cash", p.cash.String()).WithContext("expected", expected.String())
	}

	sums := make(map[string]decimal.Decimal)
	for _, f := range p.fills {
		sums[f.Symbol] = sums[f.Symbol].Add(f.SignedQuantity())
	}
	for sym, sum := range sums {
		qty := decimal.Zero
		if pos, ok := p.positions[sym]; ok {
			qty = pos.qty
		}
		if !qty.Equal(sum) {
			return errors.NewSimulationFault("portfolio", "Reconcile", "position differs from fill sum").
				WithContext("symbol", sym)
		}
	}
	return nil
}
