package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Sender publishes a formatted message to the messaging channel. The
// platform's own formatting dialect stays behind this interface; Sender
// only needs to deliver the text built by FormatMessage.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// TelegramSender implements Sender over the Telegram Bot API, the
// concrete channel behind the bot_token/channel_id configuration.
type TelegramSender struct {
	bot       *bot.Bot
	channelID string
}

// NewTelegramSender creates a TelegramSender from a bot token and the
// destination channel/chat ID.
func NewTelegramSender(token, channelID string) (*TelegramSender, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return &TelegramSender{bot: b, channelID: channelID}, nil
}

// Send posts text as a Markdown-formatted message to the configured
// channel.
func (t *TelegramSender) Send(ctx context.Context, text string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.channelID,
		Text:      text,
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("notify: send message: %w", err)
	}
	return nil
}
