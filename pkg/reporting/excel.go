package reporting

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

const (
	summarySheet = "Summary"
	tradesSheet  = "Trades"
	equitySheet  = "Equity"
	signalsSheet = "Signals"
)

// DefaultExcelReporter implements Excel output functionality
type DefaultExcelReporter struct{}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{}
}

// WriteTradesXLSX writes a workbook with summary, trades, equity and signals sheets
func (r *DefaultExcelReporter) WriteTradesXLSX(run Run, path string) error {
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	for _, s := range []string{tradesSheet, equitySheet, signalsSheet} {
		if _, err := fx.NewSheet(s); err != nil {
			return err
		}
	}

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}
	if err := r.writeSummarySheet(fx, summarySheet, run, styles); err != nil {
		return err
	}
	if err := r.writeTradesSheet(fx, tradesSheet, run, styles); err != nil {
		return err
	}
	if err := r.writeEquitySheet(fx, equitySheet, run, styles); err != nil {
		return err
	}
	if err := r.writeSignalsSheet(fx, signalsSheet, run, styles); err != nil {
		return err
	}
	return fx.SaveAs(path)
}

func (r *DefaultExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	lightBorder := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}

	// Header style - Dark slate background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.RedPercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Font:      &excelize.Font{Color: "FF0000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.GreenPercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Font:      &excelize.Font{Color: "008000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.GreenCurrencyStyle, err = fx.NewStyle(&excelize.Style{NumFmt: 7, Font: &excelize.Font{Color: "008000"}, Border: lightBorder})
	if err != nil {
		return styles, err
	}
	styles.RedCurrencyStyle, err = fx.NewStyle(&excelize.Style{NumFmt: 7, Font: &excelize.Font{Color: "FF0000"}, Border: lightBorder})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{Border: lightBorder})
	if err != nil {
		return styles, err
	}

	styles.SummaryStyle, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"F0F8FF"}, Pattern: 1},
		Border: lightBorder,
	})
	return styles, err
}

func (r *DefaultExcelReporter) writeHeader(fx *excelize.File, sheet string, headers []string, styles ExcelStyles) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}
	fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (r *DefaultExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, run Run, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 24)
	fx.SetColWidth(sheet, "B", "B", 22)
	r.writeHeader(fx, sheet, []string{"Metric", "Value"}, styles)

	res, rep := run.Results, run.Report
	type metric struct {
		name  string
		value interface{}
		style int
	}
	metrics := []metric{
		{"Run", res.RunID, styles.BaseStyle},
		{"Strategy", res.Strategy, styles.BaseStyle},
		{"State", string(res.State), styles.BaseStyle},
		{"Initial Balance", res.InitialCash, styles.CurrencyStyle},
		{"Final Value", res.FinalValue, styles.CurrencyStyle},
		{"Total Return", res.TotalReturn(), signedPercent(res.TotalReturn(), styles)},
		{"Annualized Return", rep.AnnualizedReturn, signedPercent(rep.AnnualizedReturn, styles)},
		{"Volatility", rep.Volatility, styles.PercentStyle},
		{"Max Drawdown", rep.MaxDrawdown, styles.RedPercentStyle},
		{"Sharpe Ratio", rep.Sharpe, styles.BaseStyle},
		{"Sortino Ratio", rep.Sortino, styles.BaseStyle},
		{"Calmar Ratio", rep.Calmar, styles.BaseStyle},
		{"Value at Risk", rep.VaR, styles.PercentStyle},
		{"Conditional VaR", rep.CVaR, styles.PercentStyle},
		{"Exposure Time", rep.ExposureTime, styles.PercentStyle},
		{"Total Trades", rep.Trades.Total, styles.BaseStyle},
		{"Win Rate", rep.Trades.WinRate, styles.PercentStyle},
		{"Profit Factor", rep.Trades.ProfitFactor, styles.BaseStyle},
		{"Expectancy", rep.Trades.Expectancy, styles.CurrencyStyle},
		{"Total Commission", rep.Trades.TotalCommission, styles.CurrencyStyle},
		{"Signals", len(res.Signals), styles.BaseStyle},
		{"Bars Processed", res.BarsProcessed, styles.BaseStyle},
		{"Data Errors", res.DataErrors, styles.BaseStyle},
	}
	if rep.HasBenchmark {
		metrics = append(metrics,
			metric{"Alpha", rep.Alpha, styles.BaseStyle},
			metric{"Annualized Alpha", rep.AnnualizedAlpha, styles.BaseStyle},
			metric{"Beta", rep.Beta, styles.BaseStyle},
			metric{"Information Ratio", rep.InformationRatio, styles.BaseStyle},
		)
	}
	for i, m := range metrics {
		row := i + 2
		fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), m.name)
		fx.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), styles.SummaryStyle)
		fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), m.value)
		fx.SetCellStyle(sheet, fmt.Sprintf("B%d", row), fmt.Sprintf("B%d", row), m.style)
	}
	return nil
}

func (r *DefaultExcelReporter) writeTradesSheet(fx *excelize.File, sheet string, run Run, styles ExcelStyles) error {
	headers := []string{"Trade ID", "Symbol", "Direction", "Entry Time", "Exit Time", "Entry Price", "Exit Price",
		"Quantity", "PnL", "Commission", "Exit Reason", "Rules"}
	r.writeHeader(fx, sheet, headers, styles)
	fx.SetColWidth(sheet, "A", "A", 38)
	fx.SetColWidth(sheet, "D", "E", 18)
	fx.SetColWidth(sheet, "L", "L", 30)

	row := 2
	for _, list := range [][]types.TradeRecord{run.Results.Trades, run.Results.OpenTrades} {
		for _, t := range list {
			entryPx, _ := t.EntryPrice.Float64()
			qty, _ := t.Quantity.Float64()
			pnl, _ := t.PnL.Float64()
			commission, _ := t.Commission.Float64()
			var exitTime, exitPx interface{}
			if t.Closed() {
				exitTime = t.ExitTime.Format(timeLayout)
				exitPx, _ = t.ExitPrice.Float64()
			}
			r.WriteTradeRow(fx, sheet, row, []interface{}{
				t.ID, t.Symbol, t.Direction.String(), t.EntryTime.Format(timeLayout), exitTime,
				entryPx, exitPx, qty, pnl, commission, string(t.ExitReason), strings.Join(t.RuleIDs, ", "),
			}, styles)
			if t.Closed() {
				cell := fmt.Sprintf("I%d", row)
				style := styles.RedCurrencyStyle
				if pnl > 0 {
					style = styles.GreenCurrencyStyle
				}
				fx.SetCellStyle(sheet, cell, cell, style)
			}
			row++
		}
	}
	return nil
}

func (r *DefaultExcelReporter) writeEquitySheet(fx *excelize.File, sheet string, run Run, styles ExcelStyles) error {
	r.writeHeader(fx, sheet, []string{"Timestamp", "Total Value", "Cash", "Unrealized PnL", "Realized PnL", "Gross Exposure", "Drawdown"}, styles)
	fx.SetColWidth(sheet, "A", "A", 18)
	fx.SetColWidth(sheet, "B", "G", 15)

	peak := 0.0
	for i, p := range run.Results.Equity {
		row := i + 2
		if p.TotalValue > peak {
			peak = p.TotalValue
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - p.TotalValue) / peak
		}
		values := []interface{}{p.Timestamp.Format(timeLayout), p.TotalValue, p.Cash, p.UnrealizedPnL, p.RealizedPnL, p.GrossExposure, dd}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
			style := styles.CurrencyStyle
			switch col {
			case 0:
				style = styles.BaseStyle
			case 6:
				style = styles.RedPercentStyle
			}
			fx.SetCellStyle(sheet, cell, cell, style)
		}
	}
	return nil
}

func (r *DefaultExcelReporter) writeSignalsSheet(fx *excelize.File, sheet string, run Run, styles ExcelStyles) error {
	r.writeHeader(fx, sheet, []string{"Generated", "Symbol", "Direction", "Confidence", "Tier", "Source", "Price", "Rules", "Rationale"}, styles)
	fx.SetColWidth(sheet, "A", "A", 18)
	fx.SetColWidth(sheet, "H", "I", 40)

	for i, s := range run.Results.Signals {
		row := i + 2
		values := []interface{}{
			s.GeneratedAt.Format(timeLayout), s.Symbol, s.Direction.String(), s.Confidence,
			string(s.Tier), string(s.Source), s.ReferencePrice, strings.Join(s.RuleIDs, ", "), s.Rationale,
		}
		r.WriteTradeRow(fx, sheet, row, values, styles)
		cell := fmt.Sprintf("D%d", row)
		fx.SetCellStyle(sheet, cell, cell, styles.PercentStyle)
	}
	return nil
}

// WriteTradeRow writes one row with the base style
func (r *DefaultExcelReporter) WriteTradeRow(fx *excelize.File, sheet string, row int, values []interface{}, styles ExcelStyles) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		fx.SetCellValue(sheet, cell, v)
		fx.SetCellStyle(sheet, cell, cell, styles.BaseStyle)
	}
}

func signedPercent(v float64, styles ExcelStyles) int {
	if v < 0 {
		return styles.RedPercentStyle
	}
	return styles.GreenPercentStyle
}

// WriteTradesXLSX is a convenience wrapper around DefaultExcelReporter
func WriteTradesXLSX(run Run, path string) error {
	return NewDefaultExcelReporter().WriteTradesXLSX(run, path)
}
