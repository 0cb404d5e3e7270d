package risk

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/monitoring"
	"github.com/ducminhle1904/tradecore/internal/portfolio"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Rejection and scaling reasons
const (
	ReasonNoSignal         = "no_signal"
	ReasonInvalidSignal    = "invalid_signal"
	ReasonInvalidProfile   = "invalid_profile"
	ReasonInvalidPortfolio = "invalid_portfolio"
	ReasonExpired          = "expired"
	ReasonShortNotAllowed  = "short_not_allowed"
	ReasonSymbolCap        = "symbol_cap"
	ReasonSectorCap        = "sector_cap"
	ReasonCorrelationCap   = "correlation_cap"
	ReasonLeverageCap      = "leverage_cap"
	ReasonInsufficientCash = "insufficient_cash"
	ReasonBelowMinNotional = "below_min_notional"
	ReasonOppositeSignal   = "opposite_signal"
	ReasonSized            = "sized"
)

// idNamespace scopes deterministic intent ids
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tradecore/order-intent"))

// Decision is the outcome of sizing one signal. A rejection is a value, not an error.
type Decision struct {
	Intent   *types.OrderIntent
	Rejected bool
	Scaled   bool
	Reason   string
}

// Outcome labels the decision for metrics
func (d Decision) Outcome() string {
	switch {
	case d.Rejected:
		return "rejected"
	case d.Intent != nil && d.Intent.Kind == types.OrderKindClose:
		return "close"
	case d.Scaled:
		return "scaled"
	default:
		return "accepted"
	}
}

// Err returns the rejection as a RiskRejection error, or nil
func (d Decision) Err() error {
	if !d.Rejected {
		return nil
	}
	return errors.NewRiskRejection("risk", "SizeAndBound", d.Reason)
}

func reject(reason string) Decision {
	return Decision{Rejected: true, Reason: reason}
}

// Manager sizes signals into order intents and enforces portfolio limits.
// It holds no portfolio state; every decision reads the snapshot it is given.
type Manager struct {
	cfg    Config
	corr   CorrelationSource
	logger *zap.Logger
	seq    atomic.Uint64
}

// BuyCosts prices the fill of an opening buy for the cash cap
type BuyCosts interface {
	// MaxBuyNotional returns the largest notional at the signal's reference
	// price whose slipped fill plus commission cash covers
	MaxBuyNotional(sig *types.TradingSignal, cash float64) float64
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager's logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCorrelations enables the correlation-weighted exposure cap
func WithCorrelations(src CorrelationSource) Option {
	return func(m *Manager) { m.corr = src }
}

// NewManager validates cfg
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the manager's limits
func (m *Manager) Config() Config { return m.cfg }

// SizeAndBound turns sig into a sized, bounded intent or a rejection. at is
// the decision time used for the expiry check and the intent timestamp.
// Invalid inputs never produce an intent.
func (m *Manager) SizeAndBound(sig *types.TradingSignal, snap portfolio.Snapshot, profile types.RiskProfile, at time.Time) Decision {
	return m.SizeWithCosts(sig, snap, profile, at, nil)
}

// SizeWithCosts is SizeAndBound with buys capped so that costs, not just
// the notional, fit in cash. A nil costs leaves only the cash buffer.
func (m *Manager) SizeWithCosts(sig *types.TradingSignal, snap portfolio.Snapshot, profile types.RiskProfile, at time.Time, costs BuyCosts) Decision {
	d := m.decide(sig, snap, profile, at, costs)
	monitoring.RecordRiskDecision(d.Outcome(), d.Reason)
	if d.Rejected && sig != nil {
		m.logger.Debug("signal rejected",
			zap.String("symbol", sig.Symbol),
			zap.String("direction", sig.Direction.String()),
			zap.Float64("confidence", sig.Confidence),
			zap.String("reason", d.Reason))
	}
	return d
}

func (m *Manager) decide(sig *types.TradingSignal, snap portfolio.Snapshot, profile types.RiskProfile, at time.Time, costs BuyCosts) Decision {
	if sig == nil {
		return reject(ReasonNoSignal)
	}
	if err := validateSignal(sig); err != nil {
		m.logger.Warn("invalid signal", zap.Error(err))
		return reject(ReasonInvalidSignal)
	}
	if err := profile.Validate(); err != nil {
		return reject(ReasonInvalidProfile)
	}
	if sig.Expired(at) {
		return reject(ReasonExpired)
	}
	total := snap.TotalValue.InexactFloat64()
	if !snap.TotalValue.IsPositive() || math.IsInf(total, 0) {
		return reject(ReasonInvalidPortfolio)
	}

	pos, hasPos := snap.Position(sig.Symbol)
	if hasPos && pos.Direction() == sig.Direction.Opposite() {
		return Decision{Intent: m.CloseIntent(pos, at, ReasonOppositeSignal), Reason: ReasonOppositeSignal}
	}
	if sig.Direction == types.DirectionSell && !m.cfg.AllowShort {
		return reject(ReasonShortNotAllowed)
	}

	mult := profile.Tolerance.SizeMultiplier()
	if mult > 1 {
		mult = 1
	}
	maxPct := profile.MaxPositionPct * mult

	notional := total * maxPct * sig.Confidence
	if m.cfg.TargetVolatility > 0 && sig.Volatility > 0 {
		notional *= math.Min(1, m.cfg.TargetVolatility/sig.Volatility)
	}

	var scaled bool
	reason := ReasonSized
	for _, c := range m.capacities(sig, snap, pos, hasPos, total, maxPct, costs) {
		if c.allowed <= 0 {
			return reject(c.reason)
		}
		if notional > c.allowed {
			notional = c.allowed
			scaled = true
			reason = c.reason
		}
	}
	if notional < m.cfg.MinNotional || notional <= 0 {
		if scaled {
			return reject(reason)
		}
		return reject(ReasonBelowMinNotional)
	}

	price := decimal.NewFromFloat(sig.ReferencePrice)
	qty := decimal.NewFromFloat(notional).Div(price).Truncate(m.cfg.QuantityPrecision)
	if !qty.IsPositive() {
		return reject(ReasonBelowMinNotional)
	}
	stop, target := m.protection(sig, profile)

	return Decision{
		Intent: &types.OrderIntent{
			ID:             m.nextID(sig.Symbol, at),
			Symbol:         sig.Symbol,
			Direction:      sig.Direction,
			Quantity:       qty,
			StopPrice:      stop,
			TargetPrice:    target,
			Kind:           types.OrderKindOpen,
			ReferencePrice: price,
			RuleIDs:        append([]string(nil), sig.RuleIDs...),
			Reason:         fmt.Sprintf("%s conf=%.2f %s", sig.Direction, sig.Confidence, strings.Join(sig.RuleIDs, ",")),
			CreatedAt:      at,
		},
		Scaled: scaled,
		Reason: reason,
	}
}

type capacity struct {
	reason  string
	allowed float64
}

// capacities returns the remaining notional under each portfolio limit
func (m *Manager) capacities(sig *types.TradingSignal, snap portfolio.Snapshot, pos types.Position, hasPos bool, total, maxPct float64, costs BuyCosts) []capacity {
	existing := 0.0
	if hasPos {
		existing = math.Abs(pos.MarketValue().InexactFloat64())
	}

	sector := m.cfg.SectorOf(sig.Symbol)
	sectorExposure, correlated := 0.0, existing
	for _, sym := range snap.Symbols() {
		p := snap.Positions[sym]
		value := math.Abs(p.MarketValue().InexactFloat64())
		if m.cfg.SectorOf(sym) == sector {
			sectorExposure += value
		}
		if sym == sig.Symbol || m.corr == nil {
			continue
		}
		if rho, ok := m.corr.Correlation(sig.Symbol, sym); ok && !math.IsNaN(rho) {
			correlated += math.Abs(rho) * value
		}
	}

	caps := []capacity{
		{ReasonSymbolCap, total*maxPct - existing},
		{ReasonSectorCap, total*m.cfg.SectorCapPct - sectorExposure},
	}
	if m.corr != nil {
		caps = append(caps, capacity{ReasonCorrelationCap, total*m.cfg.CorrelationCapPct - correlated})
	}
	caps = append(caps, capacity{ReasonLeverageCap, total*m.cfg.MaxLeverage - snap.GrossExposure.InexactFloat64()})
	if sig.Direction == types.DirectionBuy {
		spendable := snap.Cash.InexactFloat64() * (1 - m.cfg.CashBuffer)
		if costs != nil {
			spendable = costs.MaxBuyNotional(sig, spendable)
		}
		caps = append(caps, capacity{ReasonInsufficientCash, spendable})
	}
	return caps
}

// protection derives stop and target from ATR, falling back to the profile's percentages
func (m *Manager) protection(sig *types.TradingSignal, profile types.RiskProfile) (decimal.Decimal, decimal.Decimal) {
	ref := sig.ReferencePrice
	sign := 1.0
	if sig.Direction == types.DirectionSell {
		sign = -1.0
	}

	stop := ref - sign*sig.ATR*m.cfg.StopATRMultiple
	target := ref + sign*sig.ATR*m.cfg.TargetATRMultiple
	if sig.ATR <= 0 || stop <= 0 || target <= 0 {
		stop = ref * (1 - sign*profile.StopLossPct)
		target = ref * (1 + sign*profile.TakeProfitPct)
	}
	if target <= 0 {
		target = 0
	}
	return decimal.NewFromFloat(stop), decimal.NewFromFloat(target)
}

// CloseIntent builds an intent that flattens pos at its mark
func (m *Manager) CloseIntent(pos types.Position, at time.Time, reason string) *types.OrderIntent {
	return &types.OrderIntent{
		ID:             m.nextID(pos.Symbol, at),
		Symbol:         pos.Symbol,
		Direction:      pos.Direction().Opposite(),
		Quantity:       pos.Quantity.Abs(),
		Kind:           types.OrderKindClose,
		ReferencePrice: pos.MarkPrice,
		RuleIDs:        append([]string(nil), pos.RuleIDs...),
		Reason:         reason,
		CreatedAt:      at,
	}
}

// ShouldClose reports whether mark has crossed pos's stop or target. Stops
// are checked first.
func (m *Manager) ShouldClose(pos types.Position, mark decimal.Decimal) (bool, types.ExitReason) {
	if pos.IsFlat() || !mark.IsPositive() {
		return false, ""
	}
	hasStop, hasTarget := pos.StopPrice.IsPositive(), pos.TargetPrice.IsPositive()
	if pos.IsLong() {
		if hasStop && mark.LessThanOrEqual(pos.StopPrice) {
			return true, types.ExitStopLoss
		}
		if hasTarget && mark.GreaterThanOrEqual(pos.TargetPrice) {
			return true, types.ExitTarget
		}
		return false, ""
	}
	if hasStop && mark.GreaterThanOrEqual(pos.StopPrice) {
		return true, types.ExitStopLoss
	}
	if hasTarget && mark.LessThanOrEqual(pos.TargetPrice) {
		return true, types.ExitTarget
	}
	return false, ""
}

func (m *Manager) nextID(symbol string, at time.Time) string {
	n := m.seq.Add(1)
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s|%d|%d", symbol, at.UnixNano(), n))).String()
}

func validateSignal(sig *types.TradingSignal) error {
	fail := func(msg string) error {
		return errors.NewDataError("risk", "validateSignal", msg).WithContext("symbol", sig.Symbol)
	}
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

	switch {
	case sig.Symbol == "":
		return fail("signal without symbol")
	case sig.Direction != types.DirectionBuy && sig.Direction != types.DirectionSell:
		return fail("signal without direction")
	case !finite(sig.Confidence) || sig.Confidence <= 0 || sig.Confidence > 1:
		return fail(fmt.Sprintf("confidence out of range: %v", sig.Confidence))
	case !finite(sig.ReferencePrice) || sig.ReferencePrice <= 0:
		return fail(fmt.Sprintf("bad reference price: %v", sig.ReferencePrice))
	case !finite(sig.ATR) || sig.ATR < 0:
		return fail(fmt.Sprintf("bad atr: %v", sig.ATR))
	case !finite(sig.Volatility) || sig.Volatility < 0:
		return fail(fmt.Sprintf("bad volatility: %v", sig.Volatility))
	}
	return nil
}
