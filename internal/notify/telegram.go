package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	appLog "orarsync/internal/log"
)

// Sender delivers a message to the user. Delivery failures are reported
// but must never escalate into aborting a sync, which the caller enforces
// by logging and moving on.
type Sender interface {
	Send(text string) error
}

// Telegram sends messages to a fixed chat through a Telegram bot.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot token. chatID is the destination for
// unsolicited notifications (monitor alerts).
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("notify: telegram token is empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram auth: %w", err)
	}
	appLog.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Telegram{api: api, chatID: chatID}, nil
}

// API exposes the underlying bot connection for the command loop.
func (t *Telegram) API() *tgbotapi.BotAPI { return t.api }

// Send implements Sender against the configured chat.
func (t *Telegram) Send(text string) error {
	if t.chatID == 0 {
		return fmt.Errorf("notify: telegram chat id not configured")
	}
	return t.SendTo(t.chatID, text)
}

// SendTo delivers text to an arbitrary chat.
func (t *Telegram) SendTo(chatID int64, text string) error {
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	return nil
}
