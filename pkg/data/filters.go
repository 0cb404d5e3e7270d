package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// FilterByPeriod keeps the trailing period ending at the last bar
func FilterByPeriod(bars []types.Bar, period time.Duration) []types.Bar {
	if period <= 0 || len(bars) == 0 {
		return bars
	}
	cutoff := bars[len(bars)-1].Timestamp.Add(-period)
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(cutoff) })
	return bars[i:]
}

// FilterByDateRange keeps bars with start <= timestamp < end. Zero bounds are open.
func FilterByDateRange(bars []types.Bar, start, end time.Time) []types.Bar {
	if start.IsZero() && end.IsZero() {
		return bars
	}
	var filtered []types.Bar
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !b.Timestamp.Before(end) {
			continue
		}
		filtered = append(filtered, b)
	}
	return filtered
}

// ValidateTimeSequence ensures bars are strictly increasing in time
func ValidateTimeSequence(bars []types.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("data not in chronological order at index %d: %s after %s",
				i, bars[i].Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Normalize sorts by timestamp and drops duplicate timestamps, keeping the first
func Normalize(bars []types.Bar) []types.Bar {
	if len(bars) <= 1 {
		return bars
	}
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	out := sorted[:1]
	for _, b := range sorted[1:] {
		if b.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, b)
	}
	return out
}
