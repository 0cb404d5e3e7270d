package rules

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/internal/monitoring"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// RawSignal is the aggregated rule consensus for one bar, before enrichment
type RawSignal struct {
	Symbol     string
	Timestamp  time.Time
	Direction  types.Direction
	Confidence float64
	// Votes on the winning side, in registry order
	Votes []types.RuleVote
	// Votes on the losing side
	Opposing []types.RuleVote
}

// RuleIDs returns the ids of the winning votes
func (s RawSignal) RuleIDs() []string {
	ids := make([]string, len(s.Votes))
	for i, v := range s.Votes {
		ids[i] = v.RuleID
	}
	return ids
}

// Evaluation is the full outcome of one Evaluate call
type Evaluation struct {
	Signal     *RawSignal
	Votes      []types.RuleVote
	Vetoed     bool
	VetoRule   string
	VetoReason string
	Faults     []error
}

// Engine owns an ordered registry of rules and aggregates their votes.
// Registry mutations block until in-flight evaluations finish.
type Engine struct {
	mu     sync.RWMutex
	rules  []Rule
	index  map[string]int
	weight *Reliability
	logger *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for evaluator faults
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithReliability shares a reliability tracker between engines
func WithReliability(r *Reliability) Option {
	return func(e *Engine) {
		if r != nil {
			e.weight = r
		}
	}
}

// NewEngine validates rules and builds an engine. Invalid parameters or
// duplicate ids are rejected with a ConfigError.
func NewEngine(rs []Rule, opts ...Option) (*Engine, error) {
	e := &Engine{
		index:  make(map[string]int),
		weight: NewReliability(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range rs {
		if err := e.add(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) add(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, dup := e.index[r.ID]; dup {
		return errors.NewConfigError("rules", "Engine.Add", fmt.Sprintf("duplicate rule id %q", r.ID))
	}
	e.index[r.ID] = len(e.rules)
	e.rules = append(e.rules, r)
	return nil
}

// Add appends a rule to the registry
func (e *Engine) Add(r Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.add(r)
}

// Remove deletes a rule; unknown ids are a ConfigError
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[id]
	if !ok {
		return errors.NewConfigError("rules", "Engine.Remove", fmt.Sprintf("unknown rule %q", id))
	}
	e.rules = append(e.rules[:i], e.rules[i+1:]...)
	e.index = make(map[string]int, len(e.rules))
	for j, r := range e.rules {
		e.index[r.ID] = j
	}
	return nil
}

// Enable turns a rule on
func (e *Engine) Enable(id string) error { return e.setEnabled(id, true) }

// Disable turns a rule off
func (e *Engine) Disable(id string) error { return e.setEnabled(id, false) }

func (e *Engine) setEnabled(id string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[id]
	if !ok {
		return errors.NewConfigError("rules", "Engine.setEnabled", fmt.Sprintf("unknown rule %q", id))
	}
	e.rules[i].Enabled = on
	return nil
}

// Rules returns a copy of the registry in evaluation order
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// RequiredSpecs lists the indicators needed by all registered rules
func (e *Engine) RequiredSpecs() []indicators.Spec {
	return RequiredSpecs(e.Rules())
}

// Reliability exposes the weight tracker
func (e *Engine) Reliability() *Reliability { return e.weight }

// Evaluate runs every enabled rule and returns the aggregated signal, or nil.
func (e *Engine) Evaluate(symbol string, bar types.Bar, snap indicators.Snapshot) *RawSignal {
	return e.EvaluateDetailed(symbol, bar, snap).Signal
}

// EvaluateDetailed is Evaluate with individual votes, veto and faults exposed
func (e *Engine) EvaluateDetailed(symbol string, bar types.Bar, snap indicators.Snapshot) Evaluation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var ev Evaluation
	for _, r := range e.rules {
		if !r.Enabled || !r.IsVeto() {
			continue
		}
		veto, reason, err := e.safeVeto(r, snap)
		if err != nil {
			ev.Faults = append(ev.Faults, e.fault(r, symbol, err))
			continue
		}
		if veto {
			ev.Vetoed, ev.VetoRule, ev.VetoReason = true, r.ID, reason
			monitoring.RecordVeto(r.ID)
			return ev
		}
	}

	var voters []Rule
	for _, r := range e.rules {
		if !r.Enabled || r.IsVeto() {
			continue
		}
		voters = append(voters, r)
		vote, ok, err := e.safeEvaluate(r, bar, snap)
		if err != nil {
			ev.Faults = append(ev.Faults, e.fault(r, symbol, err))
			continue
		}
		if ok {
			ev.Votes = append(ev.Votes, vote)
		}
	}

	ev.Signal = e.aggregate(symbol, snap.Timestamp, voters, ev.Votes)
	return ev
}

// safeEvaluate isolates panics and invalid values of a single rule
func (e *Engine) safeEvaluate(r Rule, bar types.Bar, snap indicators.Snapshot) (vote types.RuleVote, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			vote, ok, err = types.RuleVote{}, false, fmt.Errorf("evaluator panic: %v", p)
		}
	}()
	vote, ok = evaluate(r, bar, snap)
	if !ok {
		return types.RuleVote{}, false, nil
	}
	vote.RuleID = r.ID
	if math.IsNaN(vote.Strength) || vote.Strength < 0 || vote.Strength > 1 {
		return types.RuleVote{}, false, fmt.Errorf("strength %v outside [0,1]", vote.Strength)
	}
	if !vote.Direction.Valid() {
		return types.RuleVote{}, false, fmt.Errorf("invalid direction %d", vote.Direction)
	}
	if vote.Direction == types.DirectionNone {
		return types.RuleVote{}, false, nil
	}
	return vote, true, nil
}

func (e *Engine) safeVeto(r Rule, snap indicators.Snapshot) (veto bool, reason string, err error) {
	defer func() {
		if p := recover(); p != nil {
			veto, reason, err = false, "", fmt.Errorf("veto panic: %v", p)
		}
	}()
	veto, reason = vetoed(r, snap)
	return veto, reason, nil
}

func (e *Engine) fault(r Rule, symbol string, err error) error {
	wrapped := errors.Wrap(err, errors.ErrorCategoryEvaluator, "rules", "Evaluate").
		WithContext("rule", r.ID).
		WithContext("symbol", symbol)
	e.logger.Warn("discarding vote from misbehaving rule",
		zap.String("rule", r.ID),
		zap.String("symbol", symbol),
		zap.Error(err))
	monitoring.RecordEvaluatorFault(r.ID)
	return wrapped
}

// aggregate combines votes. Majority by count wins and ties yield nil.
// Confidence is min((winning weighted strength - losing weighted strength) / Q,
// strongest winning strength), clamped to [0,1], where Q = max(half the enabled
// weight, the largest single weight). Equal-strength unanimous votes at or above
// quorum give that strength; thinner consensus scales down proportionally.
// Q depends only on the enabled set, so a corroborating vote never lowers
// confidence and a contradicting vote never raises it.
func (e *Engine) aggregate(symbol string, ts time.Time, voters []Rule, votes []types.RuleVote) *RawSignal {
	if len(votes) == 0 {
		return nil
	}

	var buys, sells []types.RuleVote
	for _, v := range votes {
		if v.Direction == types.DirectionBuy {
			buys = append(buys, v)
		} else {
			sells = append(sells, v)
		}
	}
	if len(buys) == len(sells) {
		return nil
	}

	win, lose, dir := buys, sells, types.DirectionBuy
	if len(sells) > len(buys) {
		win, lose, dir = sells, buys, types.DirectionSell
	}

	totalW, maxW := 0.0, 0.0
	for _, r := range voters {
		w := e.weight.Weight(r.ID)
		totalW += w
		maxW = math.Max(maxW, w)
	}
	quorum := math.Max(totalW/2, maxW)
	if quorum <= 0 {
		return nil
	}

	support, opposition, strongest := 0.0, 0.0, 0.0
	for _, v := range win {
		support += e.weight.Weight(v.RuleID) * v.Strength
		strongest = math.Max(strongest, v.Strength)
	}
	for _, v := range lose {
		opposition += e.weight.Weight(v.RuleID) * v.Strength
	}
	confidence := clamp01(math.Min((support-opposition)/quorum, strongest))
	if confidence <= 0 {
		return nil
	}

	return &RawSignal{
		Symbol:     symbol,
		Timestamp:  ts,
		Direction:  dir,
		Confidence: confidence,
		Votes:      win,
		Opposing:   lose,
	}
}
