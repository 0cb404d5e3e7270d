package strategy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/rules"
	"github.com/ducminhle1904/tradecore/internal/signal"
	"github.com/ducminhle1904/tradecore/pkg/model"
)

var _ Strategy = (*signal.Generator)(nil)
var _ TradeObserver = (*signal.Generator)(nil)

// Config describes a rules-based strategy. Empty Rules means the default set.
type Config struct {
	Name    string             `json:"name"`
	Rules   []rules.Rule       `json:"rules"`
	Signal  signal.Config      `json:"signal"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

// DefaultConfig returns the default rule set with default signal settings
func DefaultConfig() Config {
	return Config{
		Name:   "rules",
		Rules:  rules.DefaultRules(),
		Signal: signal.DefaultConfig(),
	}
}

// New builds a rule-driven signal generator. Pinned weights in cfg.Weights
// override reliability tracking for those rules.
func New(cfg Config, logger *zap.Logger, predictor model.Predictor) (*signal.Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rs := cfg.Rules
	if len(rs) == 0 {
		rs = rules.DefaultRules()
	}

	reliability := rules.NewReliability()
	for id, w := range cfg.Weights {
		if w <= 0 {
			return nil, errors.NewConfigError("strategy", "New", fmt.Sprintf("weight for rule %s must be positive, got: %.2f", id, w))
		}
		reliability.SetWeight(id, w)
	}

	engine, err := rules.NewEngine(rs, rules.WithLogger(logger), rules.WithReliability(reliability))
	if err != nil {
		return nil, err
	}
	for id := range cfg.Weights {
		if !hasRule(rs, id) {
			return nil, errors.NewConfigError("strategy", "New", fmt.Sprintf("weight given for unknown rule %s", id))
		}
	}

	opts := []signal.Option{signal.WithLogger(logger)}
	if cfg.Name != "" {
		opts = append(opts, signal.WithName(cfg.Name))
	}
	if predictor != nil {
		opts = append(opts, signal.WithPredictor(predictor))
	}
	return signal.NewGenerator(engine, cfg.Signal, opts...)
}

func hasRule(rs []rules.Rule, id string) bool {
	for _, r := range rs {
		if r.ID == id {
			return true
		}
	}
	return false
}
