package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	if logger != nil {
		logger.Info("telegram bot connected", "username", bot.Self.UserName)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) GameFinished(_ context.Context, summary GameSummary) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatSummary(summary))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
