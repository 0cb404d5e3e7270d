package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCategoryMatchingThroughWrap tests that categories survive fmt wrapping
func TestCategoryMatchingThroughWrap(t *testing.T) {
	base := NewDataError("indicators", "Update", "non-monotonic timestamp").
		WithContext("symbol", "BTCUSDT")
	wrapped := fmt.Errorf("bar 12: %w", base)

	assert.True(t, IsDataError(wrapped))
	assert.False(t, IsConfigError(wrapped))

	cat, ok := CategoryOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorCategoryData, cat)
	assert.Contains(t, wrapped.Error(), "symbol=BTCUSDT")
}

// TestFatalCategories tests which categories stop their owner
func TestFatalCategories(t *testing.T) {
	assert.True(t, NewConfigError("risk", "NewManager", "bad pct").IsFatal())
	assert.True(t, NewSimulationFault("backtest", "applyFill", "negative cash").IsFatal())
	assert.False(t, NewDataError("backtest", "step", "bad bar").IsFatal())
	assert.False(t, NewRiskRejection("risk", "SizeAndBound", "cap").IsFatal())

	assert.Equal(t, RecoveryActionStop, NewConfigError("a", "b", "c").GetRecoveryAction())
	assert.Equal(t, RecoveryActionSkip, NewDataError("a", "b", "c").GetRecoveryAction())
}

// TestWrapNil tests that wrapping nil yields nil
func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorCategoryStorage, "sink", "Write"))
	assert.True(t, NewStorageError("sink", "Write", fmt.Errorf("disk full")).IsRetryable())
}

// TestErrorStats tests counting and the bounded recent buffer
func TestErrorStats(t *testing.T) {
	stats := NewErrorStats(2)
	stats.RecordError(NewDataError("a", "b", "1"))
	stats.RecordError(NewDataError("a", "b", "2"))
	stats.RecordError(NewEvaluatorError("a", "b", "3"))
	stats.RecordError(nil)

	assert.Equal(t, 3, stats.TotalErrors)
	assert.Equal(t, 2, stats.Count(ErrorCategoryData))
	assert.Len(t, stats.RecentErrors, 2)
	assert.InDelta(t, 2.0/3.0, stats.GetErrorRate(ErrorCategoryData), 1e-12)
}
