package reporting

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/tradecore/internal/analytics"
	"github.com/ducminhle1904/tradecore/internal/backtest"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleRun(t *testing.T) Run {
	t.Helper()
	exit := t0.Add(4 * time.Hour)
	res := &backtest.Results{
		RunID:       "demo/run 1",
		Strategy:    "rules",
		State:       backtest.StateCompleted,
		InitialCash: 1000,
		FinalValue:  1010,
		Signals: []types.TradingSignal{
			{Symbol: "BTCUSDT", Direction: types.DirectionBuy, Confidence: 0.85, Tier: types.TierStrong, Source: types.SourceRules,
				RuleIDs: []string{"sma_cross"}, GeneratedAt: t0, ReferencePrice: 100},
		},
		Trades: []types.TradeRecord{
			{ID: "a", Symbol: "BTCUSDT", Direction: types.DirectionBuy, Quantity: decimal.NewFromInt(1), EntryTime: t0,
				EntryPrice: decimal.NewFromInt(100), ExitTime: &exit, ExitPrice: decimal.NewFromInt(110),
				PnL: decimal.RequireFromString("9.8"), Commission: decimal.RequireFromString("0.2"), ExitReason: types.ExitTarget,
				HoldingPeriod: 4 * time.Hour, RuleIDs: []string{"sma_cross"}},
		},
		OpenTrades: []types.TradeRecord{
			{ID: "b", Symbol: "ETHUSDT", Direction: types.DirectionBuy, Quantity: decimal.NewFromInt(2), EntryTime: exit, EntryPrice: decimal.NewFromInt(50)},
		},
		Equity: []types.EquityPoint{
			{Timestamp: t0, TotalValue: 1000, Cash: 1000},
			{Timestamp: t0.Add(2 * time.Hour), TotalValue: 990, Cash: 900, UnrealizedPnL: -10, GrossExposure: 90},
			{Timestamp: exit, TotalValue: 1010, Cash: 1010, RealizedPnL: 9.8},
		},
		Rejections:    map[string]int{"symbol_cap": 2, "cash": 1},
		BarsProcessed: 3,
		Start:         t0,
		End:           exit,
	}
	rep, err := analytics.Compute(res.Equity, res.Trades, nil, analytics.DefaultOptions())
	require.NoError(t, err)
	return Run{Results: res, Report: rep, Symbols: []string{"BTCUSDT", "ETHUSDT"}, Interval: "1h"}
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	run := sampleRun(t)
	OutputConsole(&buf, run)
	out := buf.String()
	assert.Contains(t, out, "BACKTEST RESULTS")
	assert.Contains(t, out, "$1010.00")
	assert.Contains(t, out, "1.00%")
	assert.Contains(t, out, "cash=1, symbol_cap=2")
	assert.Contains(t, out, "1 (1 open)")

	buf.Reset()
	NewDefaultConsoleReporter().OutputComparison(&buf, []Run{run, run})
	assert.Equal(t, 2, strings.Count(buf.String(), "demo/run 1"))
}

func TestTradesCSV(t *testing.T) {
	run := sampleRun(t)
	path := filepath.Join(t.TempDir(), "nested", "trades.csv")
	require.NoError(t, NewDefaultCSVReporter().WriteTradesCSV(run, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Trade_ID", rows[0][0])
	assert.Equal(t, []string{"a", "BTCUSDT", "BUY"}, rows[1][:3])
	assert.Equal(t, "10.00", rows[1][10])
	assert.Equal(t, "W", rows[1][12])
	assert.Equal(t, "", rows[2][4], "open trade has no exit")
	assert.Contains(t, rows[3][len(rows[3])-1], "SUMMARY: total_pnl=$9.80")
}

func TestEquityCSV(t *testing.T) {
	run := sampleRun(t)
	path := filepath.Join(t.TempDir(), "equity.csv")
	require.NoError(t, NewDefaultCSVReporter().WriteEquityCSV(run, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2024-01-01 02:00:00,990.00,900.00,-10.00,0.00,90.00", lines[2])
}

func TestResultsJSONRoundTrip(t *testing.T) {
	run := sampleRun(t)
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, NewDefaultJSONFormatter().WriteResultsJSON(run, path))

	doc, err := ReadResultsJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "1h", doc.Interval)
	assert.Equal(t, run.Report.Trades.Total, doc.Report.Trades.Total)
	require.Len(t, doc.Results.Trades, 1)
	assert.True(t, doc.Results.Trades[0].PnL.Equal(decimal.RequireFromString("9.8")))
	assert.Equal(t, types.DirectionBuy, doc.Results.Signals[0].Direction)
}

func TestExcelWorkbook(t *testing.T) {
	run := sampleRun(t)
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteTradesXLSX(run, path))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()
	assert.Equal(t, []string{summarySheet, tradesSheet, equitySheet, signalsSheet}, fx.GetSheetList())

	v, err := fx.GetCellValue(tradesSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	rows, err := fx.GetRows(equitySheet)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	v, err = fx.GetCellValue(summarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "demo/run 1", v)
}

func TestWriteAll(t *testing.T) {
	run := sampleRun(t)
	root := t.TempDir()
	var buf bytes.Buffer
	files, err := NewDefaultReporter().WriteAll(&buf, run, root, []string{"console", "csv", "json", "excel"})
	require.NoError(t, err)
	require.Len(t, files, 4)
	for _, f := range files {
		assert.FileExists(t, f)
		assert.Equal(t, filepath.Join(root, "demo_run_1"), filepath.Dir(f))
	}
	assert.NotEmpty(t, buf.String())

	_, err = NewDefaultReporter().WriteAll(&buf, run, root, []string{"pdf"})
	assert.Error(t, err)
}

func TestDefaultOutputDir(t *testing.T) {
	assert.Equal(t, filepath.Join("results", "run"), DefaultOutputDir("", " "))
	assert.Equal(t, filepath.Join("out", "a_b"), DefaultOutputDir("out", "a:b"))
}
