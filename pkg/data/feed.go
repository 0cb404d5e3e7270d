package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/internal/exchange/bybit"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Public Bybit v5 kline streams
const (
	BybitSpotStreamURL   = "wss://stream.bybit.com/v5/public/spot"
	BybitLinearStreamURL = "wss://stream.bybit.com/v5/public/linear"
)

// FeedConfig configures a websocket kline feed
type FeedConfig struct {
	URL               string
	Symbols           []string
	Interval          string
	PingInterval      time.Duration // default 20s
	ReconnectDelay    time.Duration // default 2s, doubled per failure
	MaxReconnectDelay time.Duration // default 30s
}

func (c *FeedConfig) defaults() {
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// WebsocketFeed subscribes to kline topics and forwards confirmed (closed) bars
type WebsocketFeed struct {
	cfg      FeedConfig
	interval bybit.KlineInterval
	logger   *zap.Logger

	// OnReconnect is called before each reconnection attempt
	OnReconnect func(err error)
}

// NewWebsocketFeed validates cfg
func NewWebsocketFeed(cfg FeedConfig, logger *zap.Logger) (*WebsocketFeed, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return nil, errors.NewConfigError("data", "NewWebsocketFeed", fmt.Sprintf("invalid feed url %q", cfg.URL))
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.NewConfigError("data", "NewWebsocketFeed", "at least one symbol is required")
	}
	iv, err := bybit.ParseInterval(cfg.Interval)
	if err != nil {
		return nil, errors.NewConfigError("data", "NewWebsocketFeed", err.Error())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketFeed{cfg: cfg, interval: iv, logger: logger}, nil
}

// Topics lists the kline subscription topics
func (f *WebsocketFeed) Topics() []string {
	out := make([]string, len(f.cfg.Symbols))
	for i, s := range f.cfg.Symbols {
		out[i] = fmt.Sprintf("kline.%s.%s", f.interval, strings.ToUpper(s))
	}
	return out
}

// Run connects, subscribes and streams bars into out, reconnecting with
// exponential backoff. It returns nil once ctx is done.
func (f *WebsocketFeed) Run(ctx context.Context, out chan<- types.Bar) error {
	delay := f.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := f.runOnce(ctx, out)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		f.logger.Warn("feed disconnected, reconnecting", zap.Error(err), zap.Duration("delay", delay))
		if f.OnReconnect != nil {
			f.OnReconnect(err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type wsKline struct {
	Start   int64  `json:"start"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

type wsMessage struct {
	Topic   string    `json:"topic"`
	Data    []wsKline `json:"data"`
	Op      string    `json:"op"`
	Success *bool     `json:"success"`
	RetMsg  string    `json:"ret_msg"`
}

func (f *WebsocketFeed) runOnce(ctx context.Context, out chan<- types.Bar) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	f.logger.Info("feed connected", zap.String("url", f.cfg.URL), zap.Strings("topics", f.Topics()))

	var writeMu sync.Mutex
	write := func(req wsRequest) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(req)
	}
	if err := write(wsRequest{Op: "subscribe", Args: f.Topics()}); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(f.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				writeMu.Lock()
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
				writeMu.Unlock()
				conn.Close()
				return
			case <-ticker.C:
				if err := write(wsRequest{Op: "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		bars, err := ParseKlineMessage(raw)
		if err != nil {
			f.logger.Warn("feed message rejected", zap.Error(err))
			continue
		}
		for _, b := range bars {
			select {
			case out <- b:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// ParseKlineMessage extracts confirmed bars from one stream message. Control
// messages and unconfirmed updates yield no bars.
func ParseKlineMessage(raw []byte) ([]types.Bar, error) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryData, "data", "ParseKlineMessage")
	}
	if msg.Success != nil && !*msg.Success {
		return nil, errors.NewDataError("data", "ParseKlineMessage", fmt.Sprintf("%s rejected: %s", msg.Op, msg.RetMsg))
	}
	if !strings.HasPrefix(msg.Topic, "kline.") {
		return nil, nil
	}
	parts := strings.Split(msg.Topic, ".")
	if len(parts) != 3 {
		return nil, errors.NewDataError("data", "ParseKlineMessage", fmt.Sprintf("malformed topic %q", msg.Topic))
	}
	symbol := parts[2]

	var bars []types.Bar
	for _, k := range msg.Data {
		if !k.Confirm {
			continue
		}
		vals, err := parseFloats([]string{k.Open, k.High, k.Low, k.Close, k.Volume}, 0, 1, 2, 3, 4)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCategoryData, "data", "ParseKlineMessage").WithContext("symbol", symbol)
		}
		bars = append(bars, types.Bar{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(k.Start).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}
