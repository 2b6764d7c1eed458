package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hamed0406/pingwatch/internal/domain"
)

type staticSettings domain.NotificationConfig

func (s staticSettings) NotificationConfig(ctx context.Context) (domain.NotificationConfig, error) {
	return domain.NotificationConfig(s), nil
}

func TestTelegram_SendsMarkdownMessage(t *testing.T) {
	var (
		path string
		msg  telegramMessage
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&msg)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	tg := NewTelegram(ts.URL, staticSettings{TelegramBotToken: "123:abc", TelegramChatID: "42", Enabled: true})
	a := downAlert()
	a.Name = "my_api"
	if err := tg.Send(context.Background(), a); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path %q", path)
	}
	if msg.ChatID != "42" || msg.ParseMode != "Markdown" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.Text, `my\_api`) {
		t.Fatalf("markdown not escaped: %q", msg.Text)
	}
}

func TestTelegram_DisabledIsNoop(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer ts.Close()

	for _, cfg := range []staticSettings{
		{TelegramBotToken: "t", TelegramChatID: "1", Enabled: false},
		{TelegramChatID: "1", Enabled: true},
	} {
		if err := NewTelegram(ts.URL, cfg).Send(context.Background(), downAlert()); err != nil {
			t.Fatalf("inactive telegram should be a no-op, got %v", err)
		}
	}
	if called {
		t.Fatal("inactive telegram should not call the API")
	}
}

func TestTelegram_ErrorRedactsToken(t *testing.T) {
	tg := NewTelegram("http://127.0.0.1:1", staticSettings{TelegramBotToken: "secret-token", TelegramChatID: "1", Enabled: true})
	err := tg.Send(context.Background(), downAlert())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("token leaked in error: %v", err)
	}
}
