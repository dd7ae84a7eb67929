// Package telegram содержит адаптеры доставки сообщений через Bot API.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier реализует domain.Notifier поверх Bot API. Длинные тексты режутся
// по лимиту сообщения.
type Notifier struct {
	bot sender
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier создаёт адаптер уведомлений.
func NewNotifier(bot sender) *Notifier {
	return &Notifier{bot: bot}
}

// Send реализует domain.Notifier.
func (n *Notifier) Send(_ context.Context, userID int64, text string) error {
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(userID, part)
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_message", "user", start, err)
		if err != nil {
			return fmt.Errorf("отправка сообщения: %w", err)
		}
	}
	return nil
}
