package sink

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS signals (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	direction    TEXT NOT NULL,
	confidence   REAL NOT NULL,
	tier         TEXT NOT NULL,
	source       TEXT NOT NULL,
	rule_ids     TEXT,
	rationale    TEXT,
	price        REAL,
	generated_at DATETIME NOT NULL,
	expires_at   DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	trade_id    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	direction   TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	entry_time  DATETIME NOT NULL,
	entry_price TEXT NOT NULL,
	exit_time   DATETIME,
	exit_price  TEXT,
	pnl         TEXT,
	commission  TEXT,
	exit_reason TEXT
);
CREATE TABLE IF NOT EXISTS equity (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	ts             DATETIME NOT NULL,
	total_value    REAL NOT NULL,
	cash           REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	realized_pnl   REAL NOT NULL,
	gross_exposure REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_run ON signals(run_id, symbol);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, symbol);
CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, ts);
`

// SQLite journals run output into a local database file
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSQLite opens (or creates) the journal at path
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.NewConfigError("sink", "NewSQLite", "sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "sink", "NewSQLite").WithContext("path", path)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "sink", "NewSQLite").WithContext("path", path)
	}
	logger.Info("sqlite journal opened", zap.String("path", path))
	return &SQLite{db: db}, nil
}

func (s *SQLite) exec(ctx context.Context, query string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLite) WriteSignal(ctx context.Context, runID string, sig types.TradingSignal) error {
	return s.exec(ctx,
		`INSERT INTO signals (run_id, symbol, direction, confidence, tier, source, rule_ids, rationale, price, generated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		sig.Symbol,
		sig.Direction.String(),
		sig.Confidence,
		string(sig.Tier),
		string(sig.Source),
		strings.Join(sig.RuleIDs, ","),
		sig.Rationale,
		sig.ReferencePrice,
		sig.GeneratedAt.UTC().Format(time.RFC3339Nano),
		sig.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
}

func (s *SQLite) WriteTrade(ctx context.Context, runID string, tr types.TradeRecord) error {
	var exitTime interface{}
	if tr.ExitTime != nil {
		exitTime = tr.ExitTime.UTC().Format(time.RFC3339Nano)
	}
	return s.exec(ctx,
		`INSERT INTO trades (run_id, trade_id, symbol, direction, quantity, entry_time, entry_price, exit_time, exit_price, pnl, commission, exit_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		tr.ID,
		tr.Symbol,
		tr.Direction.String(),
		tr.Quantity.String(),
		tr.EntryTime.UTC().Format(time.RFC3339Nano),
		tr.EntryPrice.String(),
		exitTime,
		tr.ExitPrice.String(),
		tr.PnL.String(),
		tr.Commission.String(),
		string(tr.ExitReason),
	)
}

func (s *SQLite) WriteEquity(ctx context.Context, runID string, p types.EquityPoint) error {
	return s.exec(ctx,
		`INSERT INTO equity (run_id, ts, total_value, cash, unrealized_pnl, realized_pnl, gross_exposure)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID,
		p.Timestamp.UTC().Format(time.RFC3339Nano),
		p.TotalValue,
		p.Cash,
		p.UnrealizedPnL,
		p.RealizedPnL,
		p.GrossExposure,
	)
}

// Trades reads back the trades journaled for runID in insertion order
func (s *SQLite) Trades(ctx context.Context, runID string) ([]types.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT trade_id, symbol, direction, quantity, entry_time, entry_price, exit_time, exit_price, pnl, commission, exit_reason
		 FROM trades WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.TradeRecord
	for rows.Next() {
		var (
			tr                                  types.TradeRecord
			dir, qty, entryAt, entryPx          string
			exitAt                              sql.NullString
			exitPx, pnl, commission, exitReason sql.NullString
		)
		if err := rows.Scan(&tr.ID, &tr.Symbol, &dir, &qty, &entryAt, &entryPx, &exitAt, &exitPx, &pnl, &commission, &exitReason); err != nil {
			return nil, err
		}
		if tr.Direction, err = types.ParseDirection(dir); err != nil {
			return nil, err
		}
		tr.Quantity = decimal.RequireFromString(qty)
		tr.EntryPrice = decimal.RequireFromString(entryPx)
		if tr.EntryTime, err = time.Parse(time.RFC3339Nano, entryAt); err != nil {
			return nil, err
		}
		if exitAt.Valid {
			at, err := time.Parse(time.RFC3339Nano, exitAt.String)
			if err != nil {
				return nil, err
			}
			tr.ExitTime = &at
			tr.HoldingPeriod = at.Sub(tr.EntryTime)
		}
		tr.ExitPrice = decimalOrZero(exitPx)
		tr.PnL = decimalOrZero(pnl)
		tr.Commission = decimalOrZero(commission)
		tr.ExitReason = types.ExitReason(exitReason.String)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Count returns the number of rows table holds for runID
func (s *SQLite) Count(ctx context.Context, table, runID string) (int, error) {
	switch table {
	case "signals", "trades", "equity":
	default:
		return 0, errors.NewConfigError("sink", "SQLite.Count", "unknown table "+table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE run_id = ?", runID).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func decimalOrZero(v sql.NullString) decimal.Decimal {
	if !v.Valid || v.String == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}
