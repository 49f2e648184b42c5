package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// Sender delivers one formatted alert over a single transport.
type Sender interface {
	Send(ctx context.Context, signal domain.SignalEvent) error
}

// LogSender writes alerts to the structured log. It always succeeds.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "alerts"))}
}

func (l *LogSender) Send(_ context.Context, signal domain.SignalEvent) error {
	l.logger.Info(FormatMessage(signal),
		slog.String("signal_type", string(signal.Type)),
		slog.Int("severity", signal.Severity),
		slog.String("dedupe_key", signal.DedupeKey),
	)
	return nil
}

// SlackSender delivers alerts via a Slack incoming webhook.
type SlackSender struct {
	webhookURL string
	client     *http.Client
}

// NewSlackSender creates a SlackSender for the given webhook URL.
func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackSender) Send(ctx context.Context, signal domain.SignalEvent) error {
	if s.webhookURL == "" {
		return fmt.Errorf("slack: %w", domain.ErrChannelNotConfigured)
	}
	payload := map[string]string{"text": FormatMessage(signal)}
	return postJSON(ctx, s.client, "slack", s.webhookURL, payload)
}

// DiscordSender delivers alerts via a Discord webhook. The title is rendered
// in bold using Discord markdown.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordSender) Send(ctx context.Context, signal domain.SignalEvent) error {
	if d.webhookURL == "" {
		return fmt.Errorf("discord: %w", domain.ErrChannelNotConfigured)
	}
	payload := map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", FormatTitle(signal), FormatMessage(signal)),
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL, payload)
}

// TelegramSender delivers alerts via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramSender) Send(ctx context.Context, signal domain.SignalEvent) error {
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("telegram: %w", domain.ErrChannelNotConfigured)
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    FormatMessage(signal),
	}
	return postJSON(ctx, t.client, "telegram", url, payload)
}

func postJSON(ctx context.Context, client *http.Client, name, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
