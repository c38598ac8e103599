package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramTransport delivers push messages as Telegram chat messages.
// The user's device token holds the numeric chat id.
type TelegramTransport struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramTransport authenticates the bot token.
func NewTelegramTransport(token string) (*TelegramTransport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramTransport{bot: bot}, nil
}

func (t *TelegramTransport) SendPush(ctx context.Context, deviceToken, title, body string, _ map[string]string) Delivery {
	chatID, err := strconv.ParseInt(deviceToken, 10, 64)
	if err != nil {
		return Failed("device token is not a telegram chat id")
	}
	if err := ctx.Err(); err != nil {
		return Failed(err.Error())
	}
	msg := tgbotapi.NewMessage(chatID, title+"\n\n"+body)
	if _, err := t.bot.Send(msg); err != nil {
		return Failed(err.Error())
	}
	return Delivered()
}
