package telegram_bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/config"
)

// Bot sends operator alerts to a Telegram chat. A nil *Bot is valid and does nothing.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewBot creates a new Telegram bot instance, or returns nil when alerts are disabled.
func NewBot(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	if !cfg.Alerts.Enabled || cfg.Alerts.TelegramBotToken == "" {
		logger.Info("Telegram alerts are disabled (alerts.enabled=false or token is empty)")
		return nil, nil
	}

	endpoint := cfg.Alerts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	botAPI, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Alerts.TelegramBotToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return &Bot{
		api:    botAPI,
		chatID: cfg.Alerts.ChatID,
		logger: logger,
	}, nil
}

// Start answers /start and /help until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if b == nil {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				b.handleMessage(update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	switch message.Command() {
	case "start", "help":
		text := "I post alerts from the Instagram automation service: deactivated accounts and abandoned events.\n\n" +
			"This chat's ID: " + strconv.FormatInt(message.Chat.ID, 10)
		if message.Chat.ID != b.chatID {
			text += "\nSet alerts.chat_id to this value to receive alerts here."
		}
		b.sendMessage(message.Chat.ID, text)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help.")
	}
}

// Notify posts text to the alert chat. Failures are logged, never returned.
func (b *Bot) Notify(ctx context.Context, text string) {
	if b == nil {
		return
	}
	if ctx.Err() != nil {
		b.logger.Warn("Dropping alert, context done", zap.String("text", text))
		return
	}
	b.sendMessage(b.chatID, "⚠️ "+text)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
