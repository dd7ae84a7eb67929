package bot

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

func TestParseReferrer(t *testing.T) {
	if ref := parseReferrer("ref42", 7); ref == nil || *ref != 42 {
		t.Fatalf("ожидали реферера 42, получили %v", ref)
	}
	if ref := parseReferrer("42", 7); ref == nil || *ref != 42 {
		t.Fatalf("числовая нагрузка тоже валидна, получили %v", ref)
	}
	if ref := parseReferrer("ref7", 7); ref != nil {
		t.Fatalf("самоприглашение должно игнорироваться, получили %v", ref)
	}
	if ref := parseReferrer("abc", 7); ref != nil {
		t.Fatalf("мусорная нагрузка должна игнорироваться, получили %v", ref)
	}
	if ref := parseReferrer("", 7); ref != nil {
		t.Fatalf("пустая нагрузка должна игнорироваться, получили %v", ref)
	}
}

func TestParseConnectionInput(t *testing.T) {
	conn, err := parseConnectionInput("wordpress https://site.ru admin app-pass")
	if err != nil {
		t.Fatalf("ожидали успешный разбор, получили %v", err)
	}
	if conn.Platform != domain.PlatformWordPress || conn.SiteURL != "https://site.ru" || conn.Login != "admin" || conn.Secret != "app-pass" {
		t.Fatalf("неожиданное подключение: %+v", conn)
	}

	conn, err = parseConnectionInput("telegram -1001234567890")
	if err != nil {
		t.Fatalf("ожидали успешный разбор, получили %v", err)
	}
	if conn.Platform != domain.PlatformTelegram || conn.ChannelID != -1001234567890 {
		t.Fatalf("неожиданное подключение: %+v", conn)
	}

	if _, err := parseConnectionInput("wordpress https://site.ru"); err == nil {
		t.Fatal("неполный ввод wordpress должен отклоняться")
	}
	if _, err := parseConnectionInput("telegram abc"); err == nil {
		t.Fatal("нечисловой канал должен отклоняться")
	}
	if _, err := parseConnectionInput("myspace x"); err == nil {
		t.Fatal("неизвестная площадка должна отклоняться")
	}
}

func TestSplitPartsAndKeywords(t *testing.T) {
	name, rest := splitParts("Блог | seo, продвижение")
	if name != "Блог" || rest != "seo, продвижение" {
		t.Fatalf("ожидали Блог/seo, продвижение, получили %q/%q", name, rest)
	}
	name, rest = splitParts("Без разделителя")
	if name != "Без разделителя" || rest != "" {
		t.Fatalf("ожидали имя без хвоста, получили %q/%q", name, rest)
	}
	keywords := parseKeywords("seo, продвижение;  сайты\n ,")
	if len(keywords) != 3 {
		t.Fatalf("ожидали 3 ключа, получили %v", keywords)
	}
}

type stubAPI struct {
	sent []string
}

func (s *stubAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (s *stubAPI) Request(_ tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type stubUsers struct {
	domain.UserRepo
	ensured  []int64
	referrer *int64
}

func (s *stubUsers) EnsureUser(_ context.Context, id int64, referrerID *int64) (domain.User, error) {
	s.ensured = append(s.ensured, id)
	s.referrer = referrerID
	return domain.User{ID: id, Balance: 500, Role: domain.UserRoleStart}, nil
}

func (s *stubUsers) TouchActivity(_ context.Context, _ int64) error { return nil }

func TestStartEnsuresUserWithReferrer(t *testing.T) {
	api := &stubAPI{}
	users := &stubUsers{}
	h := NewHandler(api, zerolog.Nop(), users, nil, nil)

	msg := &tgbotapi.Message{
		Text: "/start ref42",
		From: &tgbotapi.User{ID: 7},
		Chat: &tgbotapi.Chat{ID: 7},
	}
	h.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	if len(users.ensured) != 1 || users.ensured[0] != 7 {
		t.Fatalf("ожидали регистрацию пользователя 7, получили %v", users.ensured)
	}
	if users.referrer == nil || *users.referrer != 42 {
		t.Fatalf("ожидали реферера 42, получили %v", users.referrer)
	}
	if len(api.sent) == 0 || !strings.Contains(api.sent[0], "Баланс: 500") {
		t.Fatalf("приветствие должно содержать баланс, получили %v", api.sent)
	}
}
