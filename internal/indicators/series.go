package indicators

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Kind names an indicator family
type Kind string

const (
	KindSMA        Kind = "sma"
	KindEMA        Kind = "ema"
	KindRSI        Kind = "rsi"
	KindATR        Kind = "atr"
	KindVolatility Kind = "volatility"
	KindVolumeAvg  Kind = "volume_avg"
)

// Spec identifies one indicator instance, e.g. {sma 20} -> "sma_20"
type Spec struct {
	Kind   Kind `json:"kind"`
	Period int  `json:"period"`
}

// Key returns the snapshot key of the spec
func (s Spec) Key() string {
	return fmt.Sprintf("%s_%d", s.Kind, s.Period)
}

// Key builds a snapshot key without a Spec value
func Key(kind Kind, period int) string {
	return Spec{Kind: kind, Period: period}.Key()
}

// ParseSpec parses a snapshot key such as "volume_avg_20"
func ParseSpec(key string) (Spec, error) {
	i := strings.LastIndex(key, "_")
	if i <= 0 || i == len(key)-1 {
		return Spec{}, errors.NewConfigError("indicators", "ParseSpec", fmt.Sprintf("malformed indicator key %q", key))
	}
	period, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return Spec{}, errors.NewConfigError("indicators", "ParseSpec", fmt.Sprintf("malformed period in %q", key))
	}
	s := Spec{Kind: Kind(key[:i]), Period: period}
	return s, s.Validate()
}

// Validate returns a ConfigError for unknown kinds or periods
func (s Spec) Validate() error {
	switch s.Kind {
	case KindSMA, KindEMA, KindRSI, KindATR, KindVolumeAvg:
		if s.Period < 1 {
			return errors.NewConfigError("indicators", "Spec.Validate", fmt.Sprintf("%s period must be >= 1, got: %d", s.Kind, s.Period))
		}
	case KindVolatility:
		if s.Period < 2 {
			return errors.NewConfigError("indicators", "Spec.Validate", fmt.Sprintf("volatility period must be >= 2, got: %d", s.Period))
		}
	default:
		return errors.NewConfigError("indicators", "Spec.Validate", fmt.Sprintf("unknown indicator kind %q", s.Kind))
	}
	return nil
}

func (s Spec) build(periodsPerYear float64) Indicator {
	switch s.Kind {
	case KindSMA:
		return NewSMA(s.Period)
	case KindEMA:
		return NewEMA(s.Period)
	case KindRSI:
		return NewRSI(s.Period)
	case KindATR:
		return NewATR(s.Period)
	case KindVolatility:
		return NewVolatility(s.Period, periodsPerYear)
	case KindVolumeAvg:
		return NewVolumeAverage(s.Period)
	}
	return nil
}

// Snapshot is the indicator state of one symbol after one bar. Values holds
// only warmed-up indicators; Previous is the prior bar's Values.
type Snapshot struct {
	Symbol    string             `json:"symbol"`
	Timestamp time.Time          `json:"timestamp"`
	Bar       types.Bar          `json:"bar"`
	Values    map[string]float64 `json:"values"`
	Previous  map[string]float64 `json:"previous,omitempty"`
	Bars      int                `json:"bars"`
}

// Get returns the current value of key
func (s Snapshot) Get(key string) (float64, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Prev returns the previous bar's value of key
func (s Snapshot) Prev(key string) (float64, bool) {
	v, ok := s.Previous[key]
	return v, ok
}

// Ready reports whether every key has a current value
func (s Snapshot) Ready(keys ...string) bool {
	for _, k := range keys {
		if _, ok := s.Values[k]; !ok {
			return false
		}
	}
	return true
}

// SeriesConfig configures the indicators maintained for each symbol
type SeriesConfig struct {
	Specs          []Spec  `json:"specs"`
	PeriodsPerYear float64 `json:"periods_per_year"`
	WindowSize     int     `json:"window_size"`
}

// DefaultSpecs covers the default rule set and risk inputs
func DefaultSpecs() []Spec {
	return []Spec{
		{KindSMA, 5}, {KindSMA, 20}, {KindSMA, 50},
		{KindRSI, 14},
		{KindATR, 14},
		{KindVolatility, 20},
		{KindVolumeAvg, 20},
	}
}

// DefaultSeriesConfig returns the default spec set on daily bars
func DefaultSeriesConfig() SeriesConfig {
	return SeriesConfig{
		Specs:          DefaultSpecs(),
		PeriodsPerYear: DefaultPeriodsPerYear,
		WindowSize:     100,
	}
}

// WithSpecs returns a copy of cfg including extra specs, deduplicated by key
func (c SeriesConfig) WithSpecs(extra ...Spec) SeriesConfig {
	seen := make(map[string]bool, len(c.Specs)+len(extra))
	out := make([]Spec, 0, len(c.Specs)+len(extra))
	for _, s := range append(append([]Spec{}, c.Specs...), extra...) {
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		out = append(out, s)
	}
	c.Specs = out
	return c
}

// Validate returns a ConfigError for invalid specs
func (c SeriesConfig) Validate() error {
	for _, s := range c.Specs {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if c.WindowSize < 0 {
		return errors.NewConfigError("indicators", "SeriesConfig.Validate", "window_size must be >= 0")
	}
	return nil
}

// Series maintains incremental indicators for a single symbol. It is not safe
// for concurrent Update calls; each symbol is driven by one goroutine.
type Series struct {
	symbol     string
	keys       []string
	inds       []Indicator
	windowSize int
	window     []types.Bar
	last       Snapshot
	bars       int
}

// NewSeries creates the indicator series of one symbol
func NewSeries(symbol string, cfg SeriesConfig) (*Series, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Series{symbol: symbol, windowSize: cfg.WindowSize}
	seen := make(map[string]bool)
	for _, spec := range cfg.Specs {
		if seen[spec.Key()] {
			continue
		}
		seen[spec.Key()] = true
		s.keys = append(s.keys, spec.Key())
		s.inds = append(s.inds, spec.build(cfg.PeriodsPerYear))
	}
	return s, nil
}

// Symbol returns the series' symbol
func (s *Series) Symbol() string { return s.symbol }

// Update folds one bar into every indicator. A rejected bar leaves the
// series unchanged and returns a DataError.
func (s *Series) Update(bar types.Bar) (Snapshot, error) {
	if bar.Symbol != "" && bar.Symbol != s.symbol {
		return s.last, errors.NewDataError("indicators", "Series.Update", "bar for a different symbol").
			WithContext("series", s.symbol).WithContext("bar", bar.Symbol)
	}
	if err := bar.Validate(); err != nil {
		return s.last, err
	}
	if s.bars > 0 && !bar.Timestamp.After(s.last.Timestamp) {
		return s.last, errors.NewDataError("indicators", "Series.Update", "non-monotonic timestamp").
			WithContext("symbol", s.symbol).
			WithContext("last", s.last.Timestamp.Format(time.RFC3339)).
			WithContext("got", bar.Timestamp.Format(time.RFC3339))
	}
	bar.Symbol = s.symbol

	values := make(map[string]float64, len(s.inds))
	for i, ind := range s.inds {
		if v, ok := ind.Update(bar); ok {
			values[s.keys[i]] = v
		}
	}
	s.bars++
	if s.windowSize > 0 {
		s.window = append(s.window, bar)
		if len(s.window) > s.windowSize {
			s.window = s.window[len(s.window)-s.windowSize:]
		}
	}

	s.last = Snapshot{
		Symbol:    s.symbol,
		Timestamp: bar.Timestamp,
		Bar:       bar,
		Values:    values,
		Previous:  s.last.Values,
		Bars:      s.bars,
	}
	return s.last, nil
}

// Snapshot returns the state after the most recent accepted bar
func (s *Series) Snapshot() Snapshot { return s.last }

// Window returns a copy of the most recent bars, oldest first
func (s *Series) Window() []types.Bar {
	out := make([]types.Bar, len(s.window))
	copy(out, s.window)
	return out
}

// Keys returns the snapshot keys maintained by the series
func (s *Series) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Reset clears all indicator state
func (s *Series) Reset() {
	for _, ind := range s.inds {
		ind.Reset()
	}
	s.window = nil
	s.last = Snapshot{}
	s.bars = 0
}

// Manager owns one Series per symbol. Different symbols may be updated
// concurrently; updates for the same symbol must be serialized by the caller.
type Manager struct {
	cfg    SeriesConfig
	mu     sync.RWMutex
	series map[string]*Series
}

// NewManager validates cfg and creates an empty manager
func NewManager(cfg SeriesConfig) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, series: make(map[string]*Series)}, nil
}

// Update routes bar to its symbol's series, creating it on first use
func (m *Manager) Update(bar types.Bar) (Snapshot, error) {
	s, err := m.seriesFor(bar.Symbol)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Update(bar)
}

func (m *Manager) seriesFor(symbol string) (*Series, error) {
	if symbol == "" {
		return nil, errors.NewDataError("indicators", "Manager.Update", "bar without symbol")
	}
	m.mu.RLock()
	s, ok := m.series[symbol]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.series[symbol]; ok {
		return s, nil
	}
	s, err := NewSeries(symbol, m.cfg)
	if err != nil {
		return nil, err
	}
	m.series[symbol] = s
	return s, nil
}

// Series returns the series of symbol if it exists
func (m *Manager) Series(symbol string) (*Series, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[symbol]
	return s, ok
}

// Snapshot returns the latest snapshot of symbol
func (m *Manager) Snapshot(symbol string) (Snapshot, bool) {
	s, ok := m.Series(symbol)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Symbols returns the tracked symbols, sorted
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.series))
	for sym := range m.series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
