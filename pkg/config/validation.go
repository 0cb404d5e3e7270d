package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/data"
	"github.com/ducminhle1904/tradecore/pkg/optimization"
)

// Validator checks a loaded configuration before anything is built from it
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

func fail(format string, args ...interface{}) error {
	return errors.NewConfigError("config", "Validate", fmt.Sprintf(format, args...))
}

// Validate performs validation on every section. Component configs are
// checked by their own Validate so the limits live in one place.
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return fail("config is nil")
	}
	if err := v.validateBacktest(cfg); err != nil {
		return err
	}
	if err := v.validateData(&cfg.Data); err != nil {
		return err
	}
	if _, err := cfg.SignalSettings(); err != nil {
		return err
	}
	for id, w := range cfg.Strategy.Weights {
		if math.IsNaN(w) || w <= 0 {
			return fail("weight for rule %s must be positive, got: %.2f", id, w)
		}
	}
	for _, r := range cfg.Strategy.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if err := cfg.Risk.Validate(); err != nil {
		return err
	}
	if cfg.Risk.CorrelationWindow < 0 {
		return fail("correlation_window must be >= 0, got: %d", cfg.Risk.CorrelationWindow)
	}
	if _, err := cfg.ProfileStore(); err != nil {
		return err
	}
	if err := v.validateModel(&cfg.Model); err != nil {
		return err
	}
	if err := v.validateSink(&cfg.Sink); err != nil {
		return err
	}
	if err := v.validateOptimization(cfg); err != nil {
		return err
	}
	if err := v.validateLive(&cfg.Live); err != nil {
		return err
	}
	return v.validateReport(&cfg.Report)
}

func (v *Validator) validateBacktest(cfg *Config) error {
	b := cfg.Backtest
	if b.InitialBalance <= 0 {
		return fail("initial balance must be positive, got: %.2f", b.InitialBalance)
	}
	if b.Commission < 0 || b.Commission >= MaxCommission {
		return fail("commission must be between 0 and %.2f, got: %.4f", MaxCommission, b.Commission)
	}
	if b.MinCommission < 0 || b.SlippageBps < 0 || b.SlippageATRFraction < 0 {
		return fail("min_commission, slippage_bps and slippage_atr_fraction must be >= 0")
	}
	if b.DataErrorTolerance < 0 {
		return fail("data_error_tolerance must be >= 0, got: %d", b.DataErrorTolerance)
	}
	if b.Workers < 0 {
		return fail("workers must be >= 0, got: %d", b.Workers)
	}
	return nil
}

func (v *Validator) validateData(d *DataConfig) error {
	switch d.Source {
	case "csv", "bybit":
	default:
		return fail("data source must be csv or bybit, got: %q", d.Source)
	}
	if d.Interval != "" {
		if _, err := data.IntervalDuration(d.Interval); err != nil {
			return fail("invalid interval %q", d.Interval)
		}
	}
	start, end, err := d.Range()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return fail("data end %s must be after start %s", d.End, d.Start)
	}
	seen := make(map[string]bool, len(d.Symbols))
	for _, s := range d.Symbols {
		if seen[s] {
			return fail("duplicate symbol %s", s)
		}
		seen[s] = true
	}
	return nil
}

func (v *Validator) validateModel(m *ModelConfig) error {
	if !m.Enabled {
		return nil
	}
	if m.Path == "" {
		return fail("model.path is required when the model is enabled")
	}
	if m.WindowLength < 2 {
		return fail("model.window_length must be >= 2, got: %d", m.WindowLength)
	}
	return nil
}

func (v *Validator) validateSink(s *SinkConfig) error {
	switch s.Type {
	case "", "none", "memory":
	case "sqlite":
		if s.Path == "" {
			return fail("sink.path is required for the sqlite sink")
		}
	case "redis":
		if s.RedisAddr == "" {
			return fail("sink.redis_addr is required for the redis sink")
		}
	default:
		return fail("unknown sink type %q", s.Type)
	}
	return nil
}

func (v *Validator) validateLive(l *LiveConfig) error {
	switch l.AlertTier {
	case "", "weak", "moderate", "strong":
	default:
		return fail("live.alert_tier must be weak, moderate or strong, got: %q", l.AlertTier)
	}
	if l.TelegramToken != "" && l.TelegramChatID == "" {
		return fail("live.telegram_chat_id is required when a telegram token is set")
	}
	return nil
}

func (v *Validator) validateOptimization(cfg *Config) error {
	o := cfg.Optimization
	if _, err := optimization.FitnessByName(o.Fitness, 1); err != nil {
		return err
	}
	if err := o.GA.Validate(); err != nil {
		return err
	}
	if err := o.WalkForward.Validate(); err != nil {
		return err
	}
	_, err := cfg.OptimizationRanges()
	return err
}

func (v *Validator) validateReport(r *ReportConfig) error {
	for _, f := range r.Formats {
		switch strings.ToLower(f) {
		case "console", "csv", "json", "excel":
		default:
			return fail("unknown report format %q", f)
		}
	}
	return nil
}

// Range parses the optional start and end dates
func (d DataConfig) Range() (start, end time.Time, err error) {
	parse := func(name, s string) (time.Time, error) {
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fail("invalid %s date %q, want YYYY-MM-DD", name, s)
		}
		return t, nil
	}
	if start, err = parse("start", d.Start); err != nil {
		return
	}
	end, err = parse("end", d.End)
	return
}
