package types

import (
	"fmt"
	"math"
	"time"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

// Bar is one OHLCV sample for a symbol. Bars are immutable once emitted and
// strictly increasing in Timestamp per symbol.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the bar's internal consistency
func (b Bar) Validate() error {
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close, "volume": b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidBar(b, fmt.Sprintf("%s is not finite", name))
		}
	}
	if b.Timestamp.IsZero() {
		return invalidBar(b, "missing timestamp")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return invalidBar(b, "prices must be positive")
	}
	if b.High < b.Low {
		return invalidBar(b, fmt.Sprintf("high %.8f below low %.8f", b.High, b.Low))
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return invalidBar(b, "open/close outside high-low range")
	}
	if b.Volume < 0 {
		return invalidBar(b, "negative volume")
	}
	return nil
}

// TypicalPrice returns (high+low+close)/3
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

func invalidBar(b Bar, msg string) error {
	return errors.NewDataError("types", "Bar.Validate", msg).
		WithContext("symbol", b.Symbol).
		WithContext("timestamp", b.Timestamp.Format(time.RFC3339))
}
