package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

type stubSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *stubSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	msg := c.(tgbotapi.MessageConfig)
	s.sent = append(s.sent, msg)
	return tgbotapi.Message{MessageID: len(s.sent)}, nil
}

func TestPublishSendsToChannelAndBuildsLink(t *testing.T) {
	bot := &stubSender{}
	pub := NewChannelPublisher(bot)
	conn := domain.Connection{ID: 1, ChannelID: -1001234567890}
	draft := domain.Draft{Title: "Заголовок", Body: "Текст"}

	url, err := pub.Publish(context.Background(), conn, draft)
	if err != nil {
		t.Fatalf("публикация: %v", err)
	}
	if url != "https://t.me/c/1234567890/1" {
		t.Fatalf("неожиданная ссылка: %s", url)
	}
	if len(bot.sent) != 1 || !strings.HasPrefix(bot.sent[0].Text, "Заголовок") {
		t.Fatalf("сообщение собрано неверно: %+v", bot.sent)
	}
}

func TestPublishLongBodySplits(t *testing.T) {
	bot := &stubSender{}
	pub := NewChannelPublisher(bot)
	conn := domain.Connection{ID: 1, ChannelID: -1001}
	draft := domain.Draft{Body: strings.Repeat("строка текста\n", 1000)}

	if _, err := pub.Publish(context.Background(), conn, draft); err != nil {
		t.Fatalf("публикация: %v", err)
	}
	if len(bot.sent) < 2 {
		t.Fatalf("длинный текст должен уйти несколькими сообщениями, ушло %d", len(bot.sent))
	}
}

func TestPublishWithoutChannelFails(t *testing.T) {
	pub := NewChannelPublisher(&stubSender{})
	if _, err := pub.Publish(context.Background(), domain.Connection{ID: 1}, domain.Draft{Body: "т"}); err == nil {
		t.Fatal("подключение без канала должно быть ошибкой")
	}
}

func TestNotifierPropagatesSendError(t *testing.T) {
	bot := &stubSender{err: errors.New("bot was blocked by the user")}
	notifier := NewNotifier(bot)
	if err := notifier.Send(context.Background(), 7, "привет"); err == nil {
		t.Fatal("ошибка доставки должна подниматься вызывающему")
	}
}
