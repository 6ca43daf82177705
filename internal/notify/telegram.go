package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"solana-copy-trader/internal/domain"
)

// TelegramSink delivers trade outcomes via the Telegram Bot API. The user ID
// doubles as the chat ID, matching how users are registered through the bot
// front-end.
type TelegramSink struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegramSink creates a TelegramSink for the given bot token. It uses a
// default HTTP client with a 10-second timeout.
func NewTelegramSink(token string) *TelegramSink {
	return &TelegramSink{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Compile-time interface check.
var _ Sink = (*TelegramSink)(nil)

// TradeSucceeded sends a success message to the user's chat.
func (t *TelegramSink) TradeSucceeded(ctx context.Context, userID string, rec *domain.TradeRecord) error {
	text := fmt.Sprintf("*Copy trade executed*\nBought %s\nSpent: %.4f SOL\nTx: `%s`",
		rec.OutputAsset, rec.AmountIn, rec.TxSignatureOut)
	return t.send(ctx, userID, text)
}

// TradeFailed sends a failure message to the user's chat.
func (t *TelegramSink) TradeFailed(ctx context.Context, userID string, rec *domain.TradeRecord) error {
	text := fmt.Sprintf("*Copy trade failed*\nToken: %s\nReason: %s",
		rec.OutputAsset, rec.Error)
	return t.send(ctx, userID, text)
}

// send posts a message via the sendMessage API.
func (t *TelegramSink) send(ctx context.Context, chatID, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	payload := map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
