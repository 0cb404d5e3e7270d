package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// DefaultConsoleReporter implements console output functionality
type DefaultConsoleReporter struct{}

// NewDefaultConsoleReporter creates a new console reporter
func NewDefaultConsoleReporter() *DefaultConsoleReporter {
	return &DefaultConsoleReporter{}
}

// OutputResults prints the run summary as a table
func (r *DefaultConsoleReporter) OutputResults(w io.Writer, run Run) {
	res, rep := run.Results, run.Report

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BACKTEST RESULTS")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Run", res.RunID},
		{"Strategy", res.Strategy},
		{"State", string(res.State)},
	})
	if len(run.Symbols) > 0 {
		t.AppendRow(table.Row{"Symbols", strings.Join(run.Symbols, ", ")})
	}
	if run.Interval != "" {
		t.AppendRow(table.Row{"Interval", run.Interval})
	}
	if !res.Start.IsZero() {
		t.AppendRow(table.Row{"Period", fmt.Sprintf("%s → %s", res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"))})
	}
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Initial Balance", fmt.Sprintf("$%.2f", res.InitialCash)},
		{"Final Value", fmt.Sprintf("$%.2f", res.FinalValue)},
		{"Total Return", pct(res.TotalReturn())},
		{"Annualized Return", pct(rep.AnnualizedReturn)},
		{"Volatility", pct(rep.Volatility)},
		{"Max Drawdown", pct(rep.MaxDrawdown)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", rep.Sharpe)},
		{"Sortino Ratio", fmt.Sprintf("%.2f", rep.Sortino)},
		{"Calmar Ratio", fmt.Sprintf("%.2f", rep.Calmar)},
		{"VaR / CVaR", fmt.Sprintf("%s / %s", pct(rep.VaR), pct(rep.CVaR))},
		{"Exposure Time", pct(rep.ExposureTime)},
	})
	if rep.HasBenchmark {
		t.AppendRows([]table.Row{
			{"Alpha / Beta", fmt.Sprintf("%.4f / %.2f", rep.Alpha, rep.Beta)},
			{"Annualized Alpha", pct(rep.AnnualizedAlpha)},
			{"Information Ratio", fmt.Sprintf("%.2f", rep.InformationRatio)},
		})
	}
	t.AppendSeparator()

	ts := rep.Trades
	t.AppendRows([]table.Row{
		{"Total Trades", fmt.Sprintf("%d (%d open)", ts.Total, len(res.OpenTrades))},
		{"Win Rate", fmt.Sprintf("%s (%d W / %d L)", pct(ts.WinRate), ts.Winners, ts.Losers)},
		{"Profit Factor", fmt.Sprintf("%.2f", ts.ProfitFactor)},
		{"Avg Win / Loss", fmt.Sprintf("$%.2f / $%.2f", ts.AverageWin, ts.AverageLoss)},
		{"Expectancy", fmt.Sprintf("$%.2f", ts.Expectancy)},
		{"Commission", fmt.Sprintf("$%.2f", ts.TotalCommission)},
		{"Avg Holding", ts.AvgHoldingPeriod.Round(time.Minute).String()},
		{"Signals", fmt.Sprintf("%d", len(res.Signals))},
		{"Bars / Data Errors", fmt.Sprintf("%d / %d", res.BarsProcessed, res.DataErrors)},
	})
	if len(res.Rejections) > 0 {
		reasons := make([]string, 0, len(res.Rejections))
		for reason := range res.Rejections {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		parts := make([]string, len(reasons))
		for i, reason := range reasons {
			parts[i] = fmt.Sprintf("%s=%d", reason, res.Rejections[reason])
		}
		t.AppendRow(table.Row{"Rejections", strings.Join(parts, ", ")})
	}
	if res.FaultMessage != "" {
		t.AppendRow(table.Row{"Fault", res.FaultMessage})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 60, Align: text.AlignLeft},
	})
	t.Render()
}

// OutputComparison prints one row per run, ordered as given
func (r *DefaultConsoleReporter) OutputComparison(w io.Writer, runs []Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("STRATEGY COMPARISON")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run", "Strategy", "State", "Return", "Max DD", "Sharpe", "Trades", "Win Rate"})
	for _, run := range runs {
		res := run.Results
		t.AppendRow(table.Row{
			res.RunID,
			res.Strategy,
			string(res.State),
			pct(res.TotalReturn()),
			pct(run.Report.MaxDrawdown),
			fmt.Sprintf("%.2f", run.Report.Sharpe),
			run.Report.Trades.Total,
			pct(run.Report.Trades.WinRate),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	t.Render()
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

// OutputConsole is a convenience wrapper around DefaultConsoleReporter
func OutputConsole(w io.Writer, run Run) {
	NewDefaultConsoleReporter().OutputResults(w, run)
}
