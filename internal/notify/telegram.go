package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hamed0406/pingwatch/internal/domain"
)

const DefaultTelegramAPI = "https://api.telegram.org"

// SettingsSource yields the current global notification record.
type SettingsSource interface {
	NotificationConfig(ctx context.Context) (domain.NotificationConfig, error)
}

// Telegram posts alerts through the Bot API. Credentials are read from the
// settings store on every send, so edits apply without a restart.
type Telegram struct {
	BaseURL  string
	Settings SettingsSource
	Client   *http.Client
}

func NewTelegram(baseURL string, settings SettingsSource) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	return &Telegram{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Settings: settings,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, a Alert) error {
	cfg, err := t.Settings.NotificationConfig(ctx)
	if err != nil {
		return fmt.Errorf("load notification settings: %w", err)
	}
	if !cfg.Active() {
		return nil
	}

	body, _ := json.Marshal(telegramMessage{
		ChatID:    cfg.TelegramChatID,
		Text:      "*" + a.Title() + "*\n" + escapeMarkdown(a.Text()),
		ParseMode: "Markdown",
	})
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, cfg.TelegramBotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// the request URL carries the bot token
		return fmt.Errorf("telegram request failed: %w", redact(err, cfg.TelegramBotToken))
	}
	defer resp.Body.Close()
	return statusError("telegram", resp)
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

type redactedError struct{ msg string }

func (e redactedError) Error() string { return e.msg }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***")}
}
