package reporting

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// DefaultReporter implements the complete Reporter interface
type DefaultReporter struct {
	console *DefaultConsoleReporter
	csv     *DefaultCSVReporter
	excel   *DefaultExcelReporter
	json    *DefaultJSONFormatter
	paths   *DefaultPathManager
}

// NewDefaultReporter creates a new default reporter with all functionality
func NewDefaultReporter() *DefaultReporter {
	return &DefaultReporter{
		console: NewDefaultConsoleReporter(),
		csv:     NewDefaultCSVReporter(),
		excel:   NewDefaultExcelReporter(),
		json:    NewDefaultJSONFormatter(),
		paths:   NewDefaultPathManager(),
	}
}

// Console output methods
func (r *DefaultReporter) OutputResults(w io.Writer, run Run) {
	r.console.OutputResults(w, run)
}

func (r *DefaultReporter) OutputComparison(w io.Writer, runs []Run) {
	r.console.OutputComparison(w, runs)
}

// File output methods
func (r *DefaultReporter) WriteTradesCSV(run Run, path string) error {
	return r.csv.WriteTradesCSV(run, path)
}

func (r *DefaultReporter) WriteEquityCSV(run Run, path string) error {
	return r.csv.WriteEquityCSV(run, path)
}

func (r *DefaultReporter) WriteTradesXLSX(run Run, path string) error {
	return r.excel.WriteTradesXLSX(run, path)
}

func (r *DefaultReporter) WriteResultsJSON(run Run, path string) error {
	return r.json.WriteResultsJSON(run, path)
}

// Path management methods
func (r *DefaultReporter) GetDefaultOutputDir(root, runID string) string {
	return r.paths.GetDefaultOutputDir(root, runID)
}

func (r *DefaultReporter) EnsureDirectoryExists(path string) error {
	return r.paths.EnsureDirectoryExists(path)
}

// WriteAll renders run in every format. Console output goes to w; file
// formats land in <root>/<run id>/. It returns the files written.
func (r *DefaultReporter) WriteAll(w io.Writer, run Run, root string, formats []string) ([]string, error) {
	dir := r.GetDefaultOutputDir(root, run.Results.RunID)
	var written []string
	for _, format := range formats {
		switch strings.ToLower(format) {
		case "console":
			r.OutputResults(w, run)
		case "csv":
			trades := filepath.Join(dir, "trades.csv")
			if err := r.WriteTradesCSV(run, trades); err != nil {
				return written, err
			}
			equity := filepath.Join(dir, "equity.csv")
			if err := r.WriteEquityCSV(run, equity); err != nil {
				return written, err
			}
			written = append(written, trades, equity)
		case "json":
			path := filepath.Join(dir, "results.json")
			if err := r.WriteResultsJSON(run, path); err != nil {
				return written, err
			}
			written = append(written, path)
		case "excel":
			path := filepath.Join(dir, "report.xlsx")
			if err := r.WriteTradesXLSX(run, path); err != nil {
				return written, err
			}
			written = append(written, path)
		default:
			return written, fmt.Errorf("unknown report format %q", format)
		}
	}
	return written, nil
}
