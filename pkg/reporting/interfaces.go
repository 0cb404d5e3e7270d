package reporting

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/tradecore/internal/analytics"
	"github.com/ducminhle1904/tradecore/internal/backtest"
)

// Package reporting renders backtest results and their analytics

// Run is one finished backtest together with its performance report
type Run struct {
	Results  *backtest.Results
	Report   analytics.Report
	Symbols  []string
	Interval string
}

// ConsoleReporter defines interface for console output
type ConsoleReporter interface {
	OutputResults(w io.Writer, run Run)
	OutputComparison(w io.Writer, runs []Run)
}

// FileReporter defines interface for file output
type FileReporter interface {
	WriteTradesCSV(run Run, path string) error
	WriteEquityCSV(run Run, path string) error
	WriteTradesXLSX(run Run, path string) error
	WriteResultsJSON(run Run, path string) error
}

// PathManager defines interface for output path management
type PathManager interface {
	GetDefaultOutputDir(root, runID string) string
	EnsureDirectoryExists(path string) error
}

// Reporter combines all reporting interfaces
type Reporter interface {
	ConsoleReporter
	FileReporter
	PathManager
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle        int
	CurrencyStyle      int
	PercentStyle       int
	BaseStyle          int
	RedPercentStyle    int
	GreenPercentStyle  int
	RedCurrencyStyle   int
	GreenCurrencyStyle int
	SummaryStyle       int
}

// ExcelFormatter writes rows with the shared styles
type ExcelFormatter interface {
	WriteTradeRow(fx *excelize.File, sheet string, row int, values []interface{}, styles ExcelStyles)
}
