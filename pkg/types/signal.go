package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Direction is the side a vote or signal recommends
type Direction int

const (
	DirectionNone Direction = iota
	DirectionBuy
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "BUY"
	case DirectionSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Opposite returns the mirrored direction; None stays None
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	default:
		return DirectionNone
	}
}

// Valid reports whether d is one of the declared directions
func (d Direction) Valid() bool {
	return d == DirectionNone || d == DirectionBuy || d == DirectionSell
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection parses BUY/SELL/NONE case-insensitively
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return DirectionBuy, nil
	case "SELL", "SHORT":
		return DirectionSell, nil
	case "NONE", "":
		return DirectionNone, nil
	}
	return DirectionNone, fmt.Errorf("unknown direction %q", s)
}

// StrengthTier is a coarse bucket derived from confidence
type StrengthTier string

const (
	TierWeak     StrengthTier = "weak"
	TierModerate StrengthTier = "moderate"
	TierStrong   StrengthTier = "strong"
)

// TierFor maps confidence to a tier: weak below 0.5, strong above 0.8,
// moderate otherwise (0.5 and 0.8 are both moderate).
func TierFor(confidence float64) StrengthTier {
	switch {
	case confidence > 0.8:
		return TierStrong
	case confidence >= 0.5:
		return TierModerate
	default:
		return TierWeak
	}
}

// RuleVote is one rule's opinion on a single bar
type RuleVote struct {
	RuleID    string    `json:"rule_id"`
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
	Rationale string    `json:"rationale"`
}

// SignalSource identifies which decision sources produced a signal
type SignalSource string

const (
	SourceRules    SignalSource = "rules"
	SourceModel    SignalSource = "model"
	SourceCombined SignalSource = "combined"
)

// Trend is the slope classification of a longer moving average
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// VolumeRegime classifies current volume against its trailing average
type VolumeRegime string

const (
	VolumeQuiet  VolumeRegime = "quiet"
	VolumeNormal VolumeRegime = "normal"
	VolumeHigh   VolumeRegime = "high"
)

// MarketContext is descriptive enrichment attached to a signal's rationale
type MarketContext struct {
	Trend        Trend        `json:"trend"`
	VolumeRegime VolumeRegime `json:"volume_regime"`
}

// TradingSignal is a finalized directional recommendation, before sizing
type TradingSignal struct {
	Symbol      string        `json:"symbol"`
	Direction   Direction     `json:"direction"`
	Confidence  float64       `json:"confidence"`
	Tier        StrengthTier  `json:"tier"`
	RuleIDs     []string      `json:"rule_ids"`
	Source      SignalSource  `json:"source"`
	Context     MarketContext `json:"context"`
	Rationale   string        `json:"rationale"`
	GeneratedAt time.Time     `json:"generated_at"`
	ExpiresAt   time.Time     `json:"expires_at"`

	// Market state at generation, used for sizing and stops
	ReferencePrice float64 `json:"reference_price"`
	ATR            float64 `json:"atr"`
	Volatility     float64 `json:"volatility"`
}

// Expired reports whether the signal is void at the given time
func (s TradingSignal) Expired(at time.Time) bool {
	return !s.ExpiresAt.After(at)
}
