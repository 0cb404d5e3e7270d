package signal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/internal/monitoring"
	"github.com/ducminhle1904/tradecore/internal/rules"
	"github.com/ducminhle1904/tradecore/pkg/model"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Config configures signal finalization
type Config struct {
	Horizon          time.Duration `json:"horizon"`
	AgreementBonus   float64       `json:"agreement_bonus"`
	MinConfidence    float64       `json:"min_confidence"`
	ATRPeriod        int           `json:"atr_period"`
	VolatilityPeriod int           `json:"volatility_period"`
	AdaptiveWeights  bool          `json:"adaptive_weights"`
	PeriodsPerYear   float64       `json:"periods_per_year"` // annualizes volatility; 0 means daily bars
	Context          ContextConfig `json:"context"`
}

// DefaultConfig expires signals after one daily session
func DefaultConfig() Config {
	return Config{
		Horizon:          24 * time.Hour,
		AgreementBonus:   0.1,
		MinConfidence:    0,
		ATRPeriod:        14,
		VolatilityPeriod: 20,
		Context:          NewDefaultContextConfig(),
	}
}

// Validate returns a ConfigError for invalid parameters
func (c Config) Validate() error {
	if c.Horizon <= 0 {
		return errors.NewConfigError("signal", "Config.Validate", fmt.Sprintf("horizon must be positive, got: %s", c.Horizon))
	}
	if c.AgreementBonus < 0 || c.AgreementBonus > 1 {
		return errors.NewConfigError("signal", "Config.Validate", fmt.Sprintf("agreement_bonus must be in [0,1], got: %.2f", c.AgreementBonus))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return errors.NewConfigError("signal", "Config.Validate", fmt.Sprintf("min_confidence must be in [0,1], got: %.2f", c.MinConfidence))
	}
	if c.PeriodsPerYear < 0 {
		return errors.NewConfigError("signal", "Config.Validate", fmt.Sprintf("periods_per_year must be >= 0, got: %.2f", c.PeriodsPerYear))
	}
	if c.ATRPeriod < 1 || c.VolatilityPeriod < 2 {
		return errors.NewConfigError("signal", "Config.Validate", "atr_period must be >= 1 and volatility_period >= 2")
	}
	return c.Context.Validate()
}

// Generator turns rule consensus, plus an optional model source, into
// finalized trading signals. It holds no per-symbol state.
type Generator struct {
	name      string
	engine    *rules.Engine
	predictor model.Predictor
	cfg       Config
	logger    *zap.Logger
}

// Option configures a Generator
type Option func(*Generator)

// WithPredictor adds a model-based signal source
func WithPredictor(p model.Predictor) Option {
	return func(g *Generator) { g.predictor = p }
}

// WithLogger sets the generator's logger
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithName labels the generator in reports and comparisons
func WithName(name string) Option {
	return func(g *Generator) { g.name = name }
}

// NewGenerator validates cfg and wraps engine
func NewGenerator(engine *rules.Engine, cfg Config, opts ...Option) (*Generator, error) {
	if engine == nil {
		return nil, errors.NewConfigError("signal", "NewGenerator", "rules engine is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{name: "rules", engine: engine, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Name returns the generator label
func (g *Generator) Name() string { return g.name }

// Engine returns the wrapped rules engine
func (g *Generator) Engine() *rules.Engine { return g.engine }

// RequiredSpecs lists every indicator the generator reads
func (g *Generator) RequiredSpecs() []indicators.Spec {
	specs := g.engine.RequiredSpecs()
	specs = append(specs, g.cfg.Context.specs()...)
	specs = append(specs,
		indicators.Spec{Kind: indicators.KindATR, Period: g.cfg.ATRPeriod},
		indicators.Spec{Kind: indicators.KindVolatility, Period: g.cfg.VolatilityPeriod},
	)
	return specs
}

// SeriesConfig returns a series configuration covering RequiredSpecs
func (g *Generator) SeriesConfig() indicators.SeriesConfig {
	cfg := indicators.SeriesConfig{PeriodsPerYear: indicators.DefaultPeriodsPerYear}
	if g.cfg.PeriodsPerYear > 0 {
		cfg.PeriodsPerYear = g.cfg.PeriodsPerYear
	}
	cfg = cfg.WithSpecs(g.RequiredSpecs()...)
	cfg.WindowSize = 2
	if g.predictor != nil {
		cfg.WindowSize = g.predictor.WindowLength() + 1
	}
	return cfg
}

// Generate finalizes a signal for the latest bar in snap. window holds the
// recent bars (oldest first) and is only read by the model source.
func (g *Generator) Generate(symbol string, window []types.Bar, snap indicators.Snapshot) *types.TradingSignal {
	bar := snap.Bar
	ev := g.engine.EvaluateDetailed(symbol, bar, snap)
	if ev.Vetoed {
		// the veto suppresses model votes as well
		g.logger.Debug("signal vetoed",
			zap.String("symbol", symbol),
			zap.String("rule", ev.VetoRule),
			zap.String("reason", ev.VetoReason))
		return nil
	}

	modelVote, hasModel := g.predict(symbol, window)
	raw := ev.Signal

	var (
		dir        types.Direction
		confidence float64
		source     types.SignalSource
		ruleIDs    []string
		reasons    []string
	)
	switch {
	case raw == nil && !hasModel:
		return nil
	case raw != nil && !hasModel:
		dir, confidence, source = raw.Direction, raw.Confidence, types.SourceRules
		ruleIDs = raw.RuleIDs()
	case raw == nil && hasModel:
		dir, confidence, source = modelVote.Direction, modelVote.Strength, types.SourceModel
		ruleIDs = []string{modelVote.RuleID}
	default:
		if raw.Direction != modelVote.Direction {
			g.logger.Debug("rules and model disagree",
				zap.String("symbol", symbol),
				zap.Stringer("rules", raw.Direction),
				zap.Stringer("model", modelVote.Direction))
			return nil
		}
		dir, source = raw.Direction, types.SourceCombined
		confidence = math.Min(1, (raw.Confidence+modelVote.Strength)/2+g.cfg.AgreementBonus)
		ruleIDs = append(raw.RuleIDs(), modelVote.RuleID)
	}

	if confidence <= 0 || confidence < g.cfg.MinConfidence || len(ruleIDs) == 0 {
		return nil
	}

	if raw != nil {
		for _, v := range raw.Votes {
			reasons = append(reasons, v.RuleID+": "+v.Rationale)
		}
	}
	if hasModel {
		reasons = append(reasons, modelVote.RuleID+": "+modelVote.Rationale)
	}
	ctx := classifyContext(g.cfg.Context, snap)
	reasons = append(reasons, fmt.Sprintf("context: trend %s, volume %s", ctx.Trend, ctx.VolumeRegime))

	atr, _ := snap.Get(indicators.Key(indicators.KindATR, g.cfg.ATRPeriod))
	vol, _ := snap.Get(indicators.Key(indicators.KindVolatility, g.cfg.VolatilityPeriod))

	sig := &types.TradingSignal{
		Symbol:         symbol,
		Direction:      dir,
		Confidence:     confidence,
		Tier:           types.TierFor(confidence),
		RuleIDs:        ruleIDs,
		Source:         source,
		Context:        ctx,
		Rationale:      strings.Join(reasons, "; "),
		GeneratedAt:    bar.Timestamp,
		ExpiresAt:      bar.Timestamp.Add(g.cfg.Horizon),
		ReferencePrice: bar.Close,
		ATR:            atr,
		Volatility:     vol,
	}
	monitoring.RecordSignal(symbol, dir.String(), string(sig.Tier), string(source), confidence)
	return sig
}

// predict queries the model source. Failures and invalid outputs are
// logged and treated as an abstention.
func (g *Generator) predict(symbol string, window []types.Bar) (vote types.RuleVote, ok bool) {
	if g.predictor == nil {
		return types.RuleVote{}, false
	}
	defer func() {
		if p := recover(); p != nil {
			g.logger.Warn("model source panicked", zap.String("symbol", symbol), zap.Any("panic", p))
			monitoring.RecordEvaluatorFault(g.predictor.Name())
			vote, ok = types.RuleVote{}, false
		}
	}()

	features, err := model.Features(window, g.predictor.WindowLength())
	if err != nil {
		return types.RuleVote{}, false
	}
	vote, err = g.predictor.Predict(symbol, features)
	if err != nil {
		g.logger.Warn("model prediction failed", zap.String("symbol", symbol), zap.Error(err))
		monitoring.RecordEvaluatorFault(g.predictor.Name())
		return types.RuleVote{}, false
	}
	if math.IsNaN(vote.Strength) || vote.Strength < 0 || vote.Strength > 1 || !vote.Direction.Valid() {
		g.logger.Warn("discarding invalid model vote", zap.String("symbol", symbol), zap.Float64("strength", vote.Strength))
		monitoring.RecordEvaluatorFault(g.predictor.Name())
		return types.RuleVote{}, false
	}
	if vote.Direction == types.DirectionNone || vote.Strength == 0 {
		return types.RuleVote{}, false
	}
	if vote.RuleID == "" {
		vote.RuleID = g.predictor.Name()
	}
	return vote, true
}

// GenerateFromWindow replays window through a fresh indicator series and
// finalizes a signal for its last bar.
func (g *Generator) GenerateFromWindow(symbol string, window []types.Bar) (*types.TradingSignal, error) {
	cfg := g.SeriesConfig()
	cfg.WindowSize = len(window)
	series, err := indicators.NewSeries(symbol, cfg)
	if err != nil {
		return nil, err
	}
	var snap indicators.Snapshot
	for _, b := range window {
		if snap, err = series.Update(b); err != nil {
			return nil, err
		}
	}
	if snap.Bars == 0 {
		return nil, errors.NewDataError("signal", "GenerateFromWindow", "empty window").WithContext("symbol", symbol)
	}
	return g.Generate(symbol, series.Window(), snap), nil
}

// OnTradeClosed feeds a closed trade back into rule reliability when
// adaptive weights are enabled
func (g *Generator) OnTradeClosed(rec types.TradeRecord) {
	if !g.cfg.AdaptiveWeights || !rec.Closed() || len(rec.RuleIDs) == 0 {
		return
	}
	g.engine.Reliability().RecordOutcome(rec.RuleIDs, rec.PnL.IsPositive())
}
