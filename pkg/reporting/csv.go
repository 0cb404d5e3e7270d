package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

const timeLayout = "2006-01-02 15:04:05"

// DefaultCSVReporter implements CSV output functionality
type DefaultCSVReporter struct{}

// NewDefaultCSVReporter creates a new CSV reporter
func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{}
}

// WriteTradesCSV writes closed then open trades with a trailing summary row.
// A .xlsx path is delegated to the Excel writer.
func (r *DefaultCSVReporter) WriteTradesCSV(run Run, path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return NewDefaultExcelReporter().WriteTradesXLSX(run, path)
	}
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"Trade_ID", "Symbol", "Direction", "Entry_Time", "Exit_Time", "Entry_Price", "Exit_Price",
		"Quantity", "PnL", "Commission", "Return_%", "Exit_Reason", "Win_Loss", "Rules",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	res := run.Results
	for _, list := range [][]types.TradeRecord{res.Trades, res.OpenTrades} {
		for _, t := range list {
			if err := w.Write(tradeRow(t)); err != nil {
				return err
			}
		}
	}

	ts := run.Report.Trades
	summaryRow := make([]string, len(header))
	summaryRow[len(header)-1] = fmt.Sprintf("SUMMARY: total_pnl=$%.2f; trades=%d; open=%d; win_rate=%.2f%%; profit_factor=%.2f",
		ts.TotalPnL, ts.Total, len(res.OpenTrades), ts.WinRate*100, ts.ProfitFactor)
	if err := w.Write(summaryRow); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func tradeRow(t types.TradeRecord) []string {
	exitTime, exitPrice, ret, winLoss := "", "", "", ""
	if t.Closed() {
		exitTime = t.ExitTime.Format(timeLayout)
		exitPrice = t.ExitPrice.String()
		if !t.EntryPrice.IsZero() {
			move, _ := t.ExitPrice.Sub(t.EntryPrice).Div(t.EntryPrice).Float64()
			if t.Direction == types.DirectionSell {
				move = -move
			}
			ret = fmt.Sprintf("%.2f", move*100)
		}
		winLoss = "L"
		if t.PnL.IsPositive() {
			winLoss = "W"
		}
	}
	return []string{
		t.ID,
		t.Symbol,
		t.Direction.String(),
		t.EntryTime.Format(timeLayout),
		exitTime,
		t.EntryPrice.String(),
		exitPrice,
		t.Quantity.String(),
		t.PnL.StringFixed(2),
		t.Commission.StringFixed(4),
		ret,
		string(t.ExitReason),
		winLoss,
		strings.Join(t.RuleIDs, "|"),
	}
}

// WriteEquityCSV writes the equity curve, one row per sample
func (r *DefaultCSVReporter) WriteEquityCSV(run Run, path string) error {
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Timestamp", "Total_Value", "Cash", "Unrealized_PnL", "Realized_PnL", "Gross_Exposure"}); err != nil {
		return err
	}
	for _, p := range run.Results.Equity {
		row := []string{
			p.Timestamp.Format(timeLayout),
			fmt.Sprintf("%.2f", p.TotalValue),
			fmt.Sprintf("%.2f", p.Cash),
			fmt.Sprintf("%.2f", p.UnrealizedPnL),
			fmt.Sprintf("%.2f", p.RealizedPnL),
			fmt.Sprintf("%.2f", p.GrossExposure),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
