package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// CSVSource loads bars from CSV files, either named per symbol or found under
// the data/{exchange}/{category}/{symbol}/{interval}/candles.csv layout
type CSVSource struct {
	root     string
	exchange string
	category string
	interval string
	files    map[string]string
	format   CSVColumnMapping
	logger   *zap.Logger
}

// CSVOption configures a CSVSource
type CSVOption func(*CSVSource)

// WithFiles maps symbols to explicit file paths
func WithFiles(files map[string]string) CSVOption {
	return func(s *CSVSource) {
		for sym, path := range files {
			s.files[strings.ToUpper(sym)] = path
		}
	}
}

// WithFormat sets the column mapping
func WithFormat(f CSVColumnMapping) CSVOption {
	return func(s *CSVSource) { s.format = f }
}

// WithCSVLogger sets the logger used for skipped rows
func WithCSVLogger(l *zap.Logger) CSVOption {
	return func(s *CSVSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewCSVSource creates a CSV source rooted at root
func NewCSVSource(root, exchange, category, interval string, opts ...CSVOption) *CSVSource {
	s := &CSVSource{
		root:     root,
		exchange: exchange,
		category: category,
		interval: interval,
		files:    make(map[string]string),
		format:   DefaultCSVFormat,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CSVSource) Name() string { return "csv" }

// BarsFor reads the symbol's file and filters it to [start, end)
func (s *CSVSource) BarsFor(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := s.files[strings.ToUpper(symbol)]
	if !ok {
		var err error
		if path, err = FindDataFile(s.root, s.exchange, s.category, symbol, s.interval); err != nil {
			return nil, err
		}
	}
	bars, err := s.LoadFile(path, symbol)
	if err != nil {
		return nil, err
	}
	return FilterByDateRange(bars, start, end), nil
}

// LoadFile parses one CSV file. Rows that cannot be parsed are skipped and
// logged; rows that parse but are inconsistent are passed through so the
// replay's data-error tolerance decides.
func (s *CSVSource) LoadFile(path, symbol string) ([]types.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryData, "data", "LoadFile").WithContext("path", path).WithContext("symbol", symbol)
	}
	defer file.Close()
	return s.parse(file, path, strings.ToUpper(symbol))
}

func (s *CSVSource) parse(r io.Reader, path, symbol string) ([]types.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, errors.NewDataError("data", "LoadFile", "empty CSV file").WithContext("path", path)
		}
		return nil, errors.Wrap(err, errors.ErrorCategoryData, "data", "LoadFile").WithContext("path", path)
	}

	f := s.format
	var bars []types.Bar
	line, skipped := 1, 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCategoryData, "data", "LoadFile").WithContext("path", path).WithContext("line", line)
		}
		if len(record) < f.MinColumns {
			skipped++
			s.logger.Warn("insufficient columns, skipping", zap.String("path", path), zap.Int("line", line), zap.Int("columns", len(record)))
			continue
		}
		ts, err := parseTimestamp(strings.TrimSpace(record[f.TimestampCol]), f.DateFormat)
		if err != nil {
			skipped++
			s.logger.Warn("invalid timestamp, skipping", zap.String("path", path), zap.Int("line", line), zap.Error(err))
			continue
		}
		vals, err := parseFloats(record, f.OpenCol, f.HighCol, f.LowCol, f.CloseCol, f.VolumeCol)
		if err != nil {
			skipped++
			s.logger.Warn("invalid number, skipping", zap.String("path", path), zap.Int("line", line), zap.Error(err))
			continue
		}
		bars = append(bars, types.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	if len(bars) == 0 {
		return nil, errors.NewDataError("data", "LoadFile", fmt.Sprintf("no valid rows (%d skipped)", skipped)).WithContext("path", path).WithContext("symbol", symbol)
	}
	if skipped > 0 {
		s.logger.Info("csv loaded with skipped rows", zap.String("path", path), zap.Int("bars", len(bars)), zap.Int("skipped", skipped))
	}
	return Normalize(bars), nil
}

func parseTimestamp(s, layout string) (time.Time, error) {
	if t, err := time.Parse(layout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseFloats(record []string, cols ...int) ([]float64, error) {
	out := make([]float64, len(cols))
	for i, c := range cols {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[c]), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
