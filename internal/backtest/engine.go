package backtest

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/internal/monitoring"
	"github.com/ducminhle1904/tradecore/internal/portfolio"
	"github.com/ducminhle1904/tradecore/internal/risk"
	"github.com/ducminhle1904/tradecore/internal/strategy"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// State is the lifecycle of a replay
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Config configures one replay
type Config struct {
	RunID              string
	InitialCash        float64
	Costs              CostModel
	Profile            types.RiskProfile
	DataErrorTolerance int
	LiquidateAtEnd     bool
	ConcurrentSignals  bool
	Workers            int
}

// DefaultConfig starts with 10,000 cash and the default risk profile
func DefaultConfig() Config {
	return Config{
		RunID:              "backtest",
		InitialCash:        10000,
		Costs:              DefaultCostModel(),
		Profile:            types.DefaultRiskProfile(),
		DataErrorTolerance: 10,
		LiquidateAtEnd:     true,
	}
}

// Validate returns a ConfigError for unusable settings
func (c Config) Validate() error {
	if math.IsNaN(c.InitialCash) || c.InitialCash <= 0 {
		return errors.NewConfigError("backtest", "Config.Validate", fmt.Sprintf("initial cash must be positive, got: %.2f", c.InitialCash))
	}
	if c.DataErrorTolerance < 0 {
		return errors.NewConfigError("backtest", "Config.Validate", fmt.Sprintf("data error tolerance must be >= 0, got: %d", c.DataErrorTolerance))
	}
	if err := c.Costs.Validate(); err != nil {
		return err
	}
	return c.Profile.Validate()
}

// BarObserver sees every accepted bar, e.g. a correlation estimator
type BarObserver interface {
	Observe(bar types.Bar)
}

// Engine replays bar streams through strategy, risk and a simulated
// portfolio. Replays are deterministic and never read the wall clock.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	strategy  strategy.Strategy
	risk      *risk.Manager
	portfolio *portfolio.Portfolio
	series    *indicators.Manager
	streams   []BarStream
	heads     []head
	observers []BarObserver
	logger    *zap.Logger

	state      State
	fault      error
	bars       int
	dataErrors int
	lastBar    map[string]types.Bar
	equity     []types.EquityPoint
	signals    []types.TradingSignal
	rejections map[string]int
	start      time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine's logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBarObserver registers o to receive every accepted bar
func WithBarObserver(o BarObserver) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// NewEngine validates inputs. The stream order is the universe order used
// to break timestamp ties.
func NewEngine(cfg Config, strat strategy.Strategy, rm *risk.Manager, streams []BarStream, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strat == nil || rm == nil {
		return nil, errors.NewConfigError("backtest", "NewEngine", "strategy and risk manager are required")
	}
	if len(streams) == 0 {
		return nil, errors.NewConfigError("backtest", "NewEngine", "universe is empty")
	}
	seen := make(map[string]bool, len(streams))
	for _, s := range streams {
		if s == nil || s.Symbol() == "" {
			return nil, errors.NewConfigError("backtest", "NewEngine", "stream without symbol")
		}
		if seen[s.Symbol()] {
			return nil, errors.NewConfigError("backtest", "NewEngine", fmt.Sprintf("duplicate symbol %s in universe", s.Symbol()))
		}
		seen[s.Symbol()] = true
	}

	series, err := indicators.NewManager(strat.SeriesConfig())
	if err != nil {
		return nil, err
	}
	pf, err := portfolio.New(decimal.NewFromFloat(cfg.InitialCash))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		strategy:   strat,
		risk:       rm,
		portfolio:  pf,
		series:     series,
		streams:    streams,
		heads:      make([]head, len(streams)),
		logger:     zap.NewNop(),
		state:      StateInitialized,
		lastBar:    make(map[string]types.Bar),
		rejections: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("run", cfg.RunID), zap.String("strategy", strat.Name()))
	return e, nil
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Portfolio exposes the simulated portfolio for inspection
func (e *Engine) Portfolio() *portfolio.Portfolio { return e.portfolio }

// Run replays until the streams are exhausted, a fault occurs or ctx is done.
// Cancellation is observed between timestamps; the engine then stays Running
// and a later Run resumes from the last committed bar. Results are always
// returned, partial when err is non-nil.
func (e *Engine) Run(ctx context.Context) (*Results, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateCompleted:
		return e.results(), nil
	case StateFailed:
		return e.results(), e.fault
	case StateInitialized:
		e.logger.Info("backtest started", zap.Int("symbols", len(e.streams)), zap.Float64("initial_cash", e.cfg.InitialCash))
	}
	e.state = StateRunning

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("backtest paused", zap.Int("bars", e.bars), zap.Error(err))
			return e.results(), err
		}
		group, err := e.nextGroup(ctx)
		if err != nil {
			if isContextErr(err) {
				return e.results(), err
			}
			return e.fail(err)
		}
		if len(group) == 0 {
			break
		}
		if err := e.step(group); err != nil {
			return e.fail(err)
		}
	}

	if e.cfg.LiquidateAtEnd {
		if err := e.liquidate(); err != nil {
			return e.fail(err)
		}
	}
	if err := e.portfolio.Reconcile(); err != nil {
		return e.fail(err)
	}
	e.state = StateCompleted
	monitoring.RecordRun(string(StateCompleted))
	res := e.results()
	e.logger.Info("backtest completed",
		zap.Int("bars", e.bars),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("final_value", res.FinalValue))
	return res, nil
}

func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) fail(err error) (*Results, error) {
	if _, ok := errors.CategoryOf(err); !ok {
		err = errors.Wrap(err, errors.ErrorCategorySimulation, "backtest", "Run")
	}
	e.state = StateFailed
	e.fault = err
	monitoring.RecordRun(string(StateFailed))
	e.logger.Error("backtest failed", zap.Int("bars", e.bars), zap.Error(err))
	return e.results(), err
}

// nextGroup pops every head bar sharing the earliest timestamp, in universe order
func (e *Engine) nextGroup(ctx context.Context) ([]types.Bar, error) {
	for i := range e.heads {
		if err := e.fill(ctx, i); err != nil {
			return nil, err
		}
	}

	var earliest time.Time
	found := false
	for _, h := range e.heads {
		if h.ok && (!found || h.bar.Timestamp.Before(earliest)) {
			earliest, found = h.bar.Timestamp, true
		}
	}
	if !found {
		return nil, nil
	}

	var group []types.Bar
	for i := range e.heads {
		if e.heads[i].ok && e.heads[i].bar.Timestamp.Equal(earliest) {
			group = append(group, e.heads[i].bar)
			e.heads[i].ok = false
		}
	}
	return group, nil
}

// fill loads the next bar of stream i unless one is already buffered.
// Data errors from the stream are counted and skipped.
func (e *Engine) fill(ctx context.Context, i int) error {
	h := &e.heads[i]
	for !h.ok && !h.done {
		bar, err := e.streams[i].Next(ctx)
		switch {
		case err == nil:
			if bar.Symbol == "" {
				bar.Symbol = e.streams[i].Symbol()
			}
			if bar.Symbol != e.streams[i].Symbol() {
				if err := e.dataError(errors.NewDataError("backtest", "Run", "bar symbol does not match stream").
					WithContext("stream", e.streams[i].Symbol()).WithContext("symbol", bar.Symbol)); err != nil {
					return err
				}
				continue
			}
			h.bar, h.ok = bar, true
		case err == io.EOF:
			h.done = true
		case errors.IsDataError(err):
			if err := e.dataError(err); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// dataError records an isolated bad bar and fails once the tolerance is exceeded
func (e *Engine) dataError(err error) error {
	e.dataErrors++
	monitoring.RecordDataError(symbolOf(err))
	e.logger.Warn("bar skipped", zap.Int("data_errors", e.dataErrors), zap.Error(err))
	if e.dataErrors > e.cfg.DataErrorTolerance {
		return errors.Wrap(err, errors.ErrorCategoryData, "backtest", "Run").
			WithContext("data_errors", e.dataErrors).
			WithContext("tolerance", e.cfg.DataErrorTolerance)
	}
	return nil
}

func symbolOf(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		if s, ok := e.Context["symbol"].(string); ok {
			return s
		}
	}
	return ""
}

// evaluated is one accepted bar with its generated signal
type evaluated struct {
	bar    types.Bar
	snap   indicators.Snapshot
	signal *types.TradingSignal
}

// step processes one timestamp: series, signals, then risk, fills and the
// exit sweep through the single portfolio writer in universe order
func (e *Engine) step(group []types.Bar) error {
	accepted := make([]evaluated, 0, len(group))
	for _, bar := range group {
		snap, err := e.series.Update(bar)
		if err != nil {
			if errors.IsDataError(err) {
				if err := e.dataError(err); err != nil {
					return err
				}
				continue
			}
			return err
		}
		e.bars++
		if e.start.IsZero() {
			e.start = bar.Timestamp
		}
		monitoring.RecordBar(bar.Symbol)
		e.lastBar[bar.Symbol] = bar
		e.portfolio.Mark(bar.Symbol, decimal.NewFromFloat(bar.Close))
		for _, o := range e.observers {
			o.Observe(bar)
		}
		accepted = append(accepted, evaluated{bar: bar, snap: snap})
	}
	if len(accepted) == 0 {
		return nil
	}

	e.generate(accepted)

	for _, ev := range accepted {
		if ev.signal == nil {
			continue
		}
		e.signals = append(e.signals, *ev.signal)
		d := e.risk.SizeWithCosts(ev.signal, e.portfolio.Snapshot(), e.cfg.Profile, ev.bar.Timestamp,
			barCosts{model: e.cfg.Costs, bar: ev.bar, snap: ev.snap})
		if d.Rejected {
			e.rejections[d.Reason]++
			continue
		}
		reason := types.ExitReason("")
		if d.Intent.Kind == types.OrderKindClose {
			reason = types.ExitSignal
		}
		if err := e.execute(d.Intent, ev.bar, ev.snap, reason); err != nil {
			return err
		}
	}

	for _, ev := range accepted {
		pos, ok := e.portfolio.Snapshot().Position(ev.bar.Symbol)
		if !ok {
			continue
		}
		if hit, reason := e.risk.ShouldClose(pos, pos.MarkPrice); hit {
			intent := e.risk.CloseIntent(pos, ev.bar.Timestamp, string(reason))
			if err := e.execute(intent, ev.bar, ev.snap, reason); err != nil {
				return err
			}
		}
	}

	return e.sample(accepted[len(accepted)-1].bar.Timestamp)
}

// generate evaluates the strategy for each bar, concurrently when enabled.
// Results land in fixed slots so the reduction order is the universe order.
func (e *Engine) generate(batch []evaluated) {
	window := func(symbol string) []types.Bar {
		if s, ok := e.series.Series(symbol); ok {
			return s.Window()
		}
		return nil
	}
	if !e.cfg.ConcurrentSignals || len(batch) < 2 {
		for i := range batch {
			batch[i].signal = e.strategy.Generate(batch[i].bar.Symbol, window(batch[i].bar.Symbol), batch[i].snap)
		}
		return
	}
	parallel(len(batch), e.cfg.Workers, func(i int) {
		batch[i].signal = e.strategy.Generate(batch[i].bar.Symbol, window(batch[i].bar.Symbol), batch[i].snap)
	})
}

// execute simulates the fill of intent on bar and books it
func (e *Engine) execute(intent *types.OrderIntent, bar types.Bar, snap indicators.Snapshot, reason types.ExitReason) error {
	price, slip := e.cfg.Costs.FillPrice(intent.Direction, bar, snap)
	fillPrice := decimal.NewFromFloat(price)
	notional := fillPrice.Mul(intent.Quantity)
	fill := types.Fill{
		OrderID:    intent.ID,
		Symbol:     intent.Symbol,
		Direction:  intent.Direction,
		Price:      fillPrice,
		Quantity:   intent.Quantity,
		Commission: decimal.NewFromFloat(e.cfg.Costs.Commission(notional.InexactFloat64())),
		Slippage:   decimal.NewFromFloat(slip),
		Timestamp:  bar.Timestamp,
	}
	// checked before booking so the ledger stops at the last good fill
	after := e.portfolio.Snapshot().Cash.Sub(fill.Price.Mul(fill.SignedQuantity())).Sub(fill.Commission)
	if after.IsNegative() {
		return errors.NewSimulationFault("backtest", "execute", "fill would take cash negative").
			WithContext("order", fill.OrderID).WithContext("symbol", fill.Symbol).
			WithContext("cash_after", after.StringFixed(2))
	}

	meta := portfolio.FillMeta{RuleIDs: intent.RuleIDs, ExitReason: reason}
	if intent.Kind == types.OrderKindOpen {
		meta.StopPrice, meta.TargetPrice = intent.StopPrice, intent.TargetPrice
	}

	closed, err := e.portfolio.ApplyFill(fill, meta)
	if err != nil {
		return err
	}
	monitoring.RecordFill(fill.Symbol, fill.Direction.String(), notional.InexactFloat64())
	e.logger.Debug("fill",
		zap.String("symbol", fill.Symbol),
		zap.String("side", fill.Direction.String()),
		zap.String("qty", fill.Quantity.String()),
		zap.String("price", fill.Price.StringFixed(4)),
		zap.String("kind", string(intent.Kind)))

	if obs, ok := e.strategy.(strategy.TradeObserver); ok {
		for _, rec := range closed {
			obs.OnTradeClosed(rec)
		}
	}
	return nil
}

// sample appends an equity point, replacing one at the same timestamp
func (e *Engine) sample(ts time.Time) error {
	pt := e.portfolio.EquityPoint(ts)
	if math.IsNaN(pt.TotalValue) || math.IsInf(pt.TotalValue, 0) {
		return errors.NewSimulationFault("backtest", "sample", "equity is not finite").WithContext("timestamp", ts)
	}
	if n := len(e.equity); n > 0 && e.equity[n-1].Timestamp.Equal(ts) {
		e.equity[n-1] = pt
	} else {
		e.equity = append(e.equity, pt)
	}
	monitoring.UpdateEquity(e.cfg.RunID, pt.TotalValue)
	return nil
}

// liquidate closes every open position at its symbol's last close
func (e *Engine) liquidate() error {
	snap := e.portfolio.Snapshot()
	if len(snap.Positions) == 0 {
		return nil
	}
	var last time.Time
	for _, sym := range snap.Symbols() {
		bar, ok := e.lastBar[sym]
		if !ok {
			continue
		}
		series, _ := e.series.Snapshot(sym)
		intent := e.risk.CloseIntent(snap.Positions[sym], bar.Timestamp, string(types.ExitEndOfRun))
		if err := e.execute(intent, bar, series, types.ExitEndOfRun); err != nil {
			return err
		}
		if bar.Timestamp.After(last) {
			last = bar.Timestamp
		}
	}
	return e.sample(last)
}

func (e *Engine) results() *Results {
	snap := e.portfolio.Snapshot()
	rejections := make(map[string]int, len(e.rejections))
	for k, v := range e.rejections {
		rejections[k] = v
	}
	r := &Results{
		RunID:         e.cfg.RunID,
		Strategy:      e.strategy.Name(),
		State:         e.state,
		Fault:         e.fault,
		InitialCash:   e.cfg.InitialCash,
		FinalValue:    snap.TotalValue.InexactFloat64(),
		Trades:        e.portfolio.Trades(),
		OpenTrades:    e.portfolio.OpenTrades(),
		Fills:         e.portfolio.Fills(),
		Equity:        append([]types.EquityPoint(nil), e.equity...),
		Signals:       append([]types.TradingSignal(nil), e.signals...),
		Rejections:    rejections,
		BarsProcessed: e.bars,
		DataErrors:    e.dataErrors,
		Start:         e.start,
	}
	if e.fault != nil {
		r.FaultMessage = e.fault.Error()
	}
	if n := len(e.equity); n > 0 {
		r.End = e.equity[n-1].Timestamp
	}
	return r
}
