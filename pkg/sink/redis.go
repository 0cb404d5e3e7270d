package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// default stream cap, approximate trimming
const defaultStreamMaxLen = 100000

// RedisConfig configures the Redis stream sink
type RedisConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // key prefix, e.g. "tradecore"
	MaxLen   int64
}

// Redis appends run output to streams named <prefix>:<kind>:<run id> and
// publishes every signal on <prefix>:signals
type Redis struct {
	client *goredis.Client
	prefix string
	maxLen int64
	logger *zap.Logger
}

// NewRedis connects and pings the server
func NewRedis(cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.NewConfigError("sink", "NewRedis", "redis address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewNetworkError("sink", "NewRedis", fmt.Errorf("redis ping: %w", err)).WithContext("addr", cfg.Addr)
	}

	logger.Info("redis sink connected", zap.String("addr", cfg.Addr))
	return newRedis(client, cfg, logger), nil
}

func newRedis(client *goredis.Client, cfg RedisConfig, logger *zap.Logger) *Redis {
	prefix := cfg.Stream
	if prefix == "" {
		prefix = "tradecore"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &Redis{client: client, prefix: prefix, maxLen: maxLen, logger: logger}
}

// Client returns the underlying client for health checks
func (r *Redis) Client() *goredis.Client { return r.client }

// StreamKey names the stream holding kind ("signals", "trades", "equity") for runID
func (r *Redis) StreamKey(kind, runID string) string {
	return r.prefix + ":" + kind + ":" + runID
}

// PubSubChannel is where live signals are broadcast
func (r *Redis) PubSubChannel() string { return r.prefix + ":signals" }

func (r *Redis) add(ctx context.Context, kind, runID string, v interface{}, publish bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: r.StreamKey(kind, runID),
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	})
	if publish {
		pipe.Publish(ctx, r.PubSubChannel(), string(data))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("redis pipeline failed", zap.String("kind", kind), zap.String("run_id", runID), zap.Error(err))
		return errors.NewNetworkError("sink", "Redis.add", err).WithContext("stream", r.StreamKey(kind, runID))
	}
	return nil
}

func (r *Redis) WriteSignal(ctx context.Context, runID string, sig types.TradingSignal) error {
	return r.add(ctx, "signals", runID, sig, true)
}

func (r *Redis) WriteTrade(ctx context.Context, runID string, trade types.TradeRecord) error {
	return r.add(ctx, "trades", runID, trade, false)
}

func (r *Redis) WriteEquity(ctx context.Context, runID string, point types.EquityPoint) error {
	return r.add(ctx, "equity", runID, point, false)
}

// ReadSignals returns every signal in the run's stream, oldest first
func (r *Redis) ReadSignals(ctx context.Context, runID string) ([]types.TradingSignal, error) {
	msgs, err := r.client.XRange(ctx, r.StreamKey("signals", runID), "-", "+").Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.TradingSignal, 0, len(msgs))
	for _, m := range msgs {
		raw, _ := m.Values["data"].(string)
		var sig types.TradingSignal
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

func (r *Redis) Close() error { return r.client.Close() }
