package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// ChannelPublisher публикует черновики в телеграм-канал подключения.
type ChannelPublisher struct {
	bot sender
}

var _ domain.Publisher = (*ChannelPublisher)(nil)

// NewChannelPublisher создаёт публикатор каналов.
func NewChannelPublisher(bot sender) *ChannelPublisher {
	return &ChannelPublisher{bot: bot}
}

// Publish реализует domain.Publisher. Ссылкой результата служит ссылка на
// первое отправленное сообщение.
func (p *ChannelPublisher) Publish(ctx context.Context, conn domain.Connection, draft domain.Draft) (string, error) {
	if conn.ChannelID == 0 {
		return "", fmt.Errorf("подключение %d без канала", conn.ID)
	}
	text := draft.Body
	if draft.Title != "" {
		text = draft.Title + "\n\n" + draft.Body
	}

	var firstURL string
	for _, part := range SplitMessage(text) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		msg := tgbotapi.NewMessage(conn.ChannelID, part)
		start := time.Now()
		sent, err := p.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_message", "channel", start, err)
		if err != nil {
			return "", fmt.Errorf("публикация в канал %d: %w", conn.ChannelID, err)
		}
		if firstURL == "" {
			firstURL = messageURL(conn.ChannelID, sent.MessageID)
		}
	}
	return firstURL, nil
}

// messageURL строит t.me-ссылку на сообщение приватного канала.
func messageURL(channelID int64, messageID int) string {
	id := strings.TrimPrefix(fmt.Sprintf("%d", channelID), "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, messageID)
}
