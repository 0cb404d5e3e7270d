package data

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

// ConvertIntervalToMinutes converts interval strings like "5m", "1h", "4h" to minute numbers
func ConvertIntervalToMinutes(interval string) string {
	d, err := IntervalDuration(interval)
	if err != nil {
		return interval
	}
	return strconv.Itoa(int(d / time.Minute))
}

// IntervalDuration parses "5m", "1h", "1d", "1w" or a bare minute count
func IntervalDuration(interval string) (time.Duration, error) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if n, err := strconv.Atoi(interval); err == nil && n > 0 {
		return time.Duration(n) * time.Minute, nil
	}
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	num, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || num <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(num) * time.Minute, nil
	case 'h':
		return time.Duration(num) * time.Hour, nil
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid interval %q", interval)
}

// FindDataFile locates data/{exchange}/{category}/{symbol}/{interval minutes}/candles.csv.
// category may be empty to try every category known for the exchange.
func FindDataFile(dataRoot, exchange, category, symbol, interval string) (string, error) {
	symbol = strings.ToUpper(symbol)

	categories := []string{category}
	if category == "" {
		switch strings.ToLower(exchange) {
		case "bybit":
			categories = []string{"spot", "linear", "inverse"}
		default:
			categories = []string{"spot", "futures", "linear", "inverse"}
		}
	}

	attempted := make([]string, 0, len(categories))
	for _, c := range categories {
		path := DataFilePath(dataRoot, exchange, c, symbol, interval)
		attempted = append(attempted, path)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.NewDataError("data", "FindDataFile", fmt.Sprintf("no data file for %s %s", symbol, interval)).
		WithContext("symbol", symbol).
		WithContext("attempted", strings.Join(attempted, ", "))
}
