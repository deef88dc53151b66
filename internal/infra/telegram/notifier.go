package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes sale announcements to a configured Telegram chat. Sellers
// subscribe to the chat out of band; delivery here is best effort and never
// blocks settlement.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Notifier{api: api, chatID: chatID}, nil
}

func (n *Notifier) Push(ctx context.Context, text string) error {
	if n == nil || n.api == nil {
		return fmt.Errorf("telegram notifier is not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("telegram message is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}
