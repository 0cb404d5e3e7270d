package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

// LookupFunc reads an environment variable
type LookupFunc func(key string) (string, bool)

// Load reads a nested JSON config over the defaults, applies TRADECORE_*
// environment overrides, expands ${VAR} secrets and validates the result.
// An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "config", "Load").WithContext("path", path)
		}
		if err := decode(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "config", "Load").WithContext("path", path)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ExpandSecrets(os.LookupEnv)
	if err := NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown fields so typos in the file surface immediately
func decode(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("could not parse config file: %w", err)
	}
	return nil
}

// LoadEnvFile loads variables from a .env file. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrap(err, errors.ErrorCategoryConfiguration, "config", "LoadEnvFile").WithContext("path", path)
	}
	return nil
}

// ApplyEnv overrides fields from TRADECORE_* variables
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	var firstErr error
	num := func(key string, dst *float64) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil && firstErr == nil {
			firstErr = errors.NewConfigError("config", "ApplyEnv", fmt.Sprintf("%s%s is not a number: %q", EnvPrefix, key, v))
			return
		}
		*dst = f
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil && firstErr == nil {
			firstErr = errors.NewConfigError("config", "ApplyEnv", fmt.Sprintf("%s%s is not an integer: %q", EnvPrefix, key, v))
			return
		}
		*dst = n
	}

	num("INITIAL_BALANCE", &c.Backtest.InitialBalance)
	num("COMMISSION", &c.Backtest.Commission)
	num("SLIPPAGE_BPS", &c.Backtest.SlippageBps)
	integer("WORKERS", &c.Backtest.Workers)
	str("PROFILE", &c.Backtest.Profile)
	str("DATA_SOURCE", &c.Data.Source)
	str("DATA_ROOT", &c.Data.Root)
	str("INTERVAL", &c.Data.Interval)
	list("SYMBOLS", &c.Data.Symbols)
	str("START", &c.Data.Start)
	str("END", &c.Data.End)
	str("LOG_LEVEL", &c.Logging.Level)
	str("SINK", &c.Sink.Type)
	str("SINK_PATH", &c.Sink.Path)
	str("REDIS_ADDR", &c.Sink.RedisAddr)
	str("REDIS_PASSWORD", &c.Sink.RedisPassword)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("FEED_URL", &c.Live.FeedURL)
	list("LIVE_SYMBOLS", &c.Live.Symbols)
	str("TELEGRAM_TOKEN", &c.Live.TelegramToken)
	str("TELEGRAM_CHAT_ID", &c.Live.TelegramChatID)
	str("MODEL_PATH", &c.Model.Path)
	str("ONNX_LIBRARY", &c.Model.LibraryPath)
	return firstErr
}

// ExpandSecrets replaces ${VAR} placeholders in credential fields
func (c *Config) ExpandSecrets(lookup LookupFunc) {
	expand := func(s string) string {
		return os.Expand(s, func(key string) string {
			v, _ := lookup(key)
			return v
		})
	}
	c.Exchange.Bybit.APIKey = expand(c.Exchange.Bybit.APIKey)
	c.Exchange.Bybit.APISecret = expand(c.Exchange.Bybit.APISecret)
	c.Sink.RedisPassword = expand(c.Sink.RedisPassword)
	c.Live.TelegramToken = expand(c.Live.TelegramToken)
}

// Save writes the config as indented nested JSON, creating the directory
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
