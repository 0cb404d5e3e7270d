package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ducminhle1904/tradecore/internal/analytics"
	"github.com/ducminhle1904/tradecore/internal/backtest"
)

// ResultsDocument is the JSON shape of a saved run
type ResultsDocument struct {
	Symbols  []string          `json:"symbols,omitempty"`
	Interval string            `json:"interval,omitempty"`
	Report   analytics.Report  `json:"report"`
	Results  *backtest.Results `json:"results"`
}

// DefaultJSONFormatter implements JSON output functionality
type DefaultJSONFormatter struct{}

// NewDefaultJSONFormatter creates a new JSON formatter
func NewDefaultJSONFormatter() *DefaultJSONFormatter {
	return &DefaultJSONFormatter{}
}

// Format renders the run as indented JSON
func (f *DefaultJSONFormatter) Format(run Run) ([]byte, error) {
	return json.MarshalIndent(ResultsDocument{
		Symbols:  run.Symbols,
		Interval: run.Interval,
		Report:   run.Report,
		Results:  run.Results,
	}, "", "  ")
}

// Print writes the JSON rendering to w
func (f *DefaultJSONFormatter) Print(w io.Writer, run Run) error {
	data, err := f.Format(run)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// WriteResultsJSON writes the JSON rendering to path
func (f *DefaultJSONFormatter) WriteResultsJSON(run Run, path string) error {
	data, err := f.Format(run)
	if err != nil {
		return err
	}
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadResultsJSON loads a document written by WriteResultsJSON
func ReadResultsJSON(path string) (*ResultsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc ResultsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &doc, nil
}
