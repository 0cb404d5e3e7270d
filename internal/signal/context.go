package signal

import (
	"fmt"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/indicators"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// ContextConfig holds configuration for market-context classification
type ContextConfig struct {
	TrendPeriod         int     `json:"trend_period"`          // Longer SMA used for trend slope (default: 50)
	TrendSlopeThreshold float64 `json:"trend_slope_threshold"` // Relative slope per bar counted as trending (default: 0.001)
	VolumePeriod        int     `json:"volume_period"`         // Trailing volume average (default: 20)
	QuietVolumeRatio    float64 `json:"quiet_volume_ratio"`    // Below this multiple of average is quiet (default: 0.5)
	HighVolumeRatio     float64 `json:"high_volume_ratio"`     // Above this multiple of average is high (default: 1.5)
}

// NewDefaultContextConfig creates default context configuration
func NewDefaultContextConfig() ContextConfig {
	return ContextConfig{
		TrendPeriod:         50,
		TrendSlopeThreshold: 0.001,
		VolumePeriod:        20,
		QuietVolumeRatio:    0.5,
		HighVolumeRatio:     1.5,
	}
}

// Validate validates the context configuration
func (c ContextConfig) Validate() error {
	if c.TrendPeriod < 2 {
		return errors.NewConfigError("signal", "ContextConfig.Validate", fmt.Sprintf("trend_period must be >= 2, got: %d", c.TrendPeriod))
	}
	if c.TrendSlopeThreshold < 0 {
		return errors.NewConfigError("signal", "ContextConfig.Validate", fmt.Sprintf("trend_slope_threshold must be >= 0, got: %.4f", c.TrendSlopeThreshold))
	}
	if c.VolumePeriod < 1 {
		return errors.NewConfigError("signal", "ContextConfig.Validate", fmt.Sprintf("volume_period must be >= 1, got: %d", c.VolumePeriod))
	}
	if c.QuietVolumeRatio <= 0 || c.HighVolumeRatio <= c.QuietVolumeRatio {
		return errors.NewConfigError("signal", "ContextConfig.Validate", "volume ratios must satisfy 0 < quiet < high")
	}
	return nil
}

func (c ContextConfig) specs() []indicators.Spec {
	return []indicators.Spec{
		{Kind: indicators.KindSMA, Period: c.TrendPeriod},
		{Kind: indicators.KindVolumeAvg, Period: c.VolumePeriod},
	}
}

// classifyContext reads trend and volume regime from a snapshot. Missing
// inputs classify as flat and normal.
func classifyContext(c ContextConfig, snap indicators.Snapshot) types.MarketContext {
	ctx := types.MarketContext{Trend: types.TrendFlat, VolumeRegime: types.VolumeNormal}

	key := indicators.Key(indicators.KindSMA, c.TrendPeriod)
	cur, ok1 := snap.Get(key)
	prev, ok2 := snap.Prev(key)
	if ok1 && ok2 && prev > 0 {
		slope := (cur - prev) / prev
		switch {
		case slope > c.TrendSlopeThreshold:
			ctx.Trend = types.TrendUp
		case slope < -c.TrendSlopeThreshold:
			ctx.Trend = types.TrendDown
		}
	}

	vkey := indicators.Key(indicators.KindVolumeAvg, c.VolumePeriod)
	avg, ok := snap.Prev(vkey)
	if !ok {
		avg, ok = snap.Get(vkey)
	}
	if ok && avg > 0 {
		ratio := snap.Bar.Volume / avg
		switch {
		case ratio < c.QuietVolumeRatio:
			ctx.VolumeRegime = types.VolumeQuiet
		case ratio > c.HighVolumeRatio:
			ctx.VolumeRegime = types.VolumeHigh
		}
	}
	return ctx
}
