package telegram_bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/config"
)

func TestNewBot_DisabledIsNil(t *testing.T) {
	cfg := &config.Config{}
	bot, err := NewBot(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, bot)

	// a nil bot is safe to use
	bot.Notify(context.Background(), "ignored")
	assert.NoError(t, bot.Start(context.Background()))
}

func TestBot_Notify(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"alerts","username":"alerts_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "42", r.FormValue("chat_id"))
			mu.Lock()
			sent = append(sent, r.FormValue("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Alerts.Enabled = true
	cfg.Alerts.TelegramBotToken = "123:abc"
	cfg.Alerts.ChatID = 42
	cfg.Alerts.APIEndpoint = server.URL + "/bot%s/%s"

	bot, err := NewBot(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, bot)

	bot.Notify(context.Background(), "account @shop deactivated")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bot.Notify(ctx, "dropped")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "account @shop deactivated")
}
