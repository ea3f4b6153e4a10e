package notifier

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"
)

type telegramSender struct {
	bot *tele.Bot
}

// NewTelegramSender returns a send-only Telegram client. It never polls for updates.
func NewTelegramSender(token string) (Sender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &telegramSender{bot: b}, nil
}

// Send ignores ctx: telebot calls are bounded by its own HTTP client timeout.
func (t *telegramSender) Send(_ context.Context, chatID int64, threadID int, text string) error {
	_, err := t.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ThreadID:              threadID,
		DisableWebPagePreview: true,
	})
	return err
}
