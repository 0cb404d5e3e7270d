package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Options controls where and how verbosely a session logs
type Options struct {
	Dir     string // log directory, default "logs"
	Level   string // debug, info, warn, error
	Console bool   // also write human-readable lines to stderr
	JSON    bool   // file encoding; console encoding otherwise
}

// DefaultOptions logs info and above to logs/ and the console
func DefaultOptions() Options {
	return Options{Dir: "logs", Level: "info", Console: true}
}

// Logger is a session logger writing to logs/<name>_<interval>_<date>.log
type Logger struct {
	*zap.Logger
	name     string
	interval string
	path     string
	file     *os.File
}

// NewLogger opens (or appends to) the session log for name and interval
func NewLogger(name, interval string, opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	dir := opts.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, FileName(name, interval, time.Now()))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var fileEnc zapcore.Encoder
	if opts.JSON {
		fileEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		fileEnc = zapcore.NewConsoleEncoder(encCfg)
	}
	cores := []zapcore.Core{zapcore.NewCore(fileEnc, zapcore.AddSync(file), level)}
	if opts.Console {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level))
	}

	l := &Logger{
		Logger:   zap.New(zapcore.NewTee(cores...)).With(zap.String("session", name)),
		name:     name,
		interval: interval,
		path:     path,
		file:     file,
	}
	l.Info("session started", zap.String("interval", interval), zap.String("log_file", path))
	return l, nil
}

// New builds a console-only logger, used by tools that do not keep session files
func New(level string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// ParseLevel maps a level name to a zap level; empty means info
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// FileName is the session log file name for a day
func FileName(name, interval string, day time.Time) string {
	if interval == "" {
		return fmt.Sprintf("%s_%s.log", name, day.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s_%s_%s.log", name, interval, day.Format("2006-01-02"))
}

// LogSignal records an emitted signal
func (l *Logger) LogSignal(sig types.TradingSignal) {
	l.Info("signal",
		zap.String("symbol", sig.Symbol),
		zap.Stringer("direction", sig.Direction),
		zap.Float64("confidence", sig.Confidence),
		zap.String("tier", string(sig.Tier)),
		zap.Strings("rules", sig.RuleIDs),
		zap.String("source", string(sig.Source)),
		zap.Time("generated_at", sig.GeneratedAt))
}

// LogFill records a simulated or live execution
func (l *Logger) LogFill(f types.Fill) {
	l.Info("trade executed",
		zap.String("order_id", f.OrderID),
		zap.String("symbol", f.Symbol),
		zap.Stringer("side", f.Direction),
		zap.String("qty", f.Quantity.String()),
		zap.String("price", f.Price.StringFixed(4)),
		zap.String("commission", f.Commission.StringFixed(4)))
}

// LogTradeClosed records a completed round trip
func (l *Logger) LogTradeClosed(rec types.TradeRecord) {
	l.Info("trade closed",
		zap.String("symbol", rec.Symbol),
		zap.String("pnl", rec.PnL.StringFixed(2)),
		zap.String("exit_reason", string(rec.ExitReason)),
		zap.Duration("held", rec.HoldingPeriod))
}

// GetLogPath returns the session log file path
func (l *Logger) GetLogPath() string { return l.path }

// Close flushes and closes the session log
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.Info("session ended")
	_ = l.Sync()
	err := l.file.Close()
	l.file = nil
	return err
}
