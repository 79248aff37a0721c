package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of the Telegram bot API used to deliver messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts Markdown messages to a single chat or channel
type Telegram struct {
	sender  Sender
	channel string
}

// NewTelegram creates a notifier for channelID, either a numeric chat id or an @channel name
func NewTelegram(sender Sender, channelID string) *Telegram {
	return &Telegram{sender: sender, channel: strings.TrimSpace(channelID)}
}

// Notify sends text to the configured channel
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.sender.Send(MarkdownMessage(t.channel, text)); err != nil {
		return fmt.Errorf("telegram send to %s: %w", t.channel, err)
	}
	return nil
}

// MarkdownMessage builds a Markdown message addressed to a chat id or channel name
func MarkdownMessage(chat, text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(chat, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}
