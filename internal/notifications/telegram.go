package notifications

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

const telegramAPI = "https://api.telegram.org"

type TelegramNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) SendAlert(ctx context.Context, level, message string) error {
	emoji := "ℹ️"
	switch level {
	case LevelWarning:
		emoji = "⚠️"
	case LevelError:
		emoji = "🚨"
	case LevelSignal:
		emoji = "📈"
	}

	text := fmt.Sprintf("%s *TradeCore*\n\n%s", emoji, message)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", text)
	data.Set("parse_mode", "Markdown")

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return errors.NewNetworkError("notifications", "SendAlert", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.NewNetworkError("notifications", "SendAlert", err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewNetworkError("notifications", "SendAlert", fmt.Errorf("telegram API returned status %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
	}
	return nil
}

// FormatSignal renders a signal as a short Markdown message
func FormatSignal(sig types.TradingSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s %s* (%s, %.0f%%)\n", sig.Direction.String(), sig.Symbol, sig.Tier, sig.Confidence*100)
	fmt.Fprintf(&b, "Price: %.4f\n", sig.ReferencePrice)
	if sig.Rationale != "" {
		fmt.Fprintf(&b, "%s\n", sig.Rationale)
	}
	if len(sig.RuleIDs) > 0 {
		fmt.Fprintf(&b, "Rules: %s\n", strings.Join(sig.RuleIDs, ", "))
	}
	fmt.Fprintf(&b, "Expires: %s", sig.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
	return b.String()
}
