package data

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// CSVTimeLayout is the timestamp format written by WriteCSV, always UTC
const CSVTimeLayout = "2006-01-02 15:04:05"

// DataFilePath is where CSVSource looks for a symbol's bars
func DataFilePath(dataRoot, exchange, category, symbol, interval string) string {
	return filepath.Join(dataRoot, exchange, category, strings.ToUpper(symbol), ConvertIntervalToMinutes(interval), "candles.csv")
}

// WriteCSV writes bars with a timestamp,open,high,low,close,volume header,
// creating parent directories
func WriteCSV(path string, bars []types.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewStorageError("data", "WriteCSV", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.NewStorageError("data", "WriteCSV", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return errors.NewStorageError("data", "WriteCSV", err)
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range bars {
		record := []string{
			b.Timestamp.UTC().Format(CSVTimeLayout),
			num(b.Open), num(b.High), num(b.Low), num(b.Close), num(b.Volume),
		}
		if err := w.Write(record); err != nil {
			return errors.NewStorageError("data", "WriteCSV", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.NewStorageError("data", "WriteCSV", err)
	}
	return f.Close()
}
