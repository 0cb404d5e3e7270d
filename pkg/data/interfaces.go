package data

import (
	"context"
	"time"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// BarSource loads historical bars for one symbol. A zero start or end leaves
// that side of the range open. Bars are returned oldest first.
type BarSource interface {
	Name() string
	BarsFor(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error)
}

// Feed pushes closed bars as they complete
type Feed interface {
	// Run delivers bars to out until ctx is done or the feed fails permanently
	Run(ctx context.Context, out chan<- types.Bar) error
}

// DataCache caches loaded bars by key
type DataCache interface {
	Get(key string) ([]types.Bar, bool)
	Set(key string, bars []types.Bar)
	Clear()
	Size() int
}

// CSVColumnMapping defines the column positions for different CSV formats
type CSVColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	MinColumns   int
	DateFormat   string
}

// DefaultCSVFormat is timestamp,open,high,low,close,volume with a header row.
// Timestamps may also be unix milliseconds or RFC3339.
var DefaultCSVFormat = CSVColumnMapping{
	TimestampCol: 0,
	OpenCol:      1,
	HighCol:      2,
	LowCol:       3,
	CloseCol:     4,
	VolumeCol:    5,
	MinColumns:   6,
	DateFormat:   "2006-01-02 15:04:05",
}
