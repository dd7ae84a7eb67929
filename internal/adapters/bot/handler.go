package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/adapters/telegram"
	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/pipeline"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/readiness"
)

// api — минимальная поверхность tgbotapi.BotAPI, нужная обработчику.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot        api
	log        zerolog.Logger
	users      domain.UserRepo
	pipelineUC *pipeline.Service
	sessions   *pipeline.Store
	mu         sync.Mutex
	// pendingInput помнит, какой свободный ввод ждём от пользователя
	// после нажатия inline-кнопки: "keywords" или "description".
	pendingInput map[int64]string
}

// NewHandler создаёт обработчик.
func NewHandler(bot api, log zerolog.Logger, users domain.UserRepo, pipelineUC *pipeline.Service, sessions *pipeline.Store) *Handler {
	return &Handler{
		bot:          bot,
		log:          log,
		users:        users,
		pipelineUC:   pipelineUC,
		sessions:     sessions,
		pendingInput: make(map[int64]string),
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		h.touch(ctx, msg.From.ID)
		h.handleFreeText(ctx, msg.Chat.ID, msg.From.ID, text)
		return
	}
	switch {
	case strings.HasPrefix(text, "/start"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/start"))
		h.handleStart(ctx, msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/new"):
		h.touch(ctx, msg.From.ID)
		h.startPipeline(ctx, msg.Chat.ID, msg.From.ID, domain.PipelineArticle)
	case strings.HasPrefix(text, "/social"):
		h.touch(ctx, msg.From.ID)
		h.startPipeline(ctx, msg.Chat.ID, msg.From.ID, domain.PipelineSocial)
	case strings.HasPrefix(text, "/resume"):
		h.touch(ctx, msg.From.ID)
		h.handleResume(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/balance"):
		h.touch(ctx, msg.From.ID)
		h.handleBalance(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/cancel"):
		h.touch(ctx, msg.From.ID)
		h.handleCancel(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.buildHelpMessage(), h.mainKeyboard())
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	}
}

func (h *Handler) handleStart(ctx context.Context, chatID, userID int64, payload string) {
	referrer := parseReferrer(payload, userID)
	user, err := h.users.EnsureUser(ctx, userID, referrer)
	if err != nil {
		h.log.Error().Err(err).Int64("user", userID).Msg("не удалось сохранить профиль")
		h.reply(chatID, "Ошибка сохранения профиля, попробуйте позже", nil)
		return
	}
	h.reply(chatID, h.buildStartMessage(user), h.mainKeyboard())
}

// parseReferrer извлекает id пригласившего из deep-link полезной нагрузки.
// Самоприглашение игнорируется.
func parseReferrer(payload string, userID int64) *int64 {
	raw := strings.TrimPrefix(payload, "ref")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 || id == userID {
		return nil
	}
	return &id
}

func (h *Handler) startPipeline(ctx context.Context, chatID, userID int64, pt domain.PipelineType) {
	view, err := h.pipelineUC.Start(ctx, userID, pt)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.renderView(chatID, view)
}

func (h *Handler) handleResume(ctx context.Context, chatID, userID int64) {
	view, err := h.pipelineUC.Resume(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		h.reply(chatID, "Нет незавершённого конвейера. Начните новый: /new или /social", nil)
		return
	}
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.reply(chatID, "Продолжаем с места остановки.", nil)
	h.renderView(chatID, view)
}

func (h *Handler) handleBalance(ctx context.Context, chatID, userID int64) {
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	plan := user.Plan()
	lines := []string{
		fmt.Sprintf("Баланс: %d токенов.", user.Balance),
		fmt.Sprintf("Тариф: %s.", plan.Name),
	}
	if plan.LowBalanceAt > 0 && user.Balance < plan.LowBalanceAt {
		lines = append(lines, "Баланс на исходе, пополните его, чтобы не прерывать публикации.")
	}
	h.reply(chatID, strings.Join(lines, "\n"), nil)
}

func (h *Handler) handleCancel(ctx context.Context, chatID, userID int64) {
	needConfirm, err := h.pipelineUC.RequestExit(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		h.reply(chatID, "Активного конвейера нет.", nil)
		return
	}
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if !needConfirm {
		h.clearPending(userID)
		h.reply(chatID, "Конвейер завершён. Начать заново: /new", nil)
		return
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Выйти", "exit_confirm"),
			tgbotapi.NewInlineKeyboardButtonData("Остаться", "exit_stay"),
		),
	)
	h.reply(chatID, "Вы уже прошли часть конвейера. Точно выйти? Черновик и прогресс можно вернуть через /resume.", &markup)
}

// handleFreeText маршрутизирует свободный ввод по текущему шагу конвейера.
func (h *Handler) handleFreeText(ctx context.Context, chatID, userID int64, text string) {
	if text == "" {
		h.reply(chatID, "Отправьте текст или используйте /help", nil)
		return
	}
	if kind, ok := h.takePending(userID); ok {
		h.applyPendingInput(ctx, chatID, userID, kind, text)
		return
	}
	sess, err := h.sessions.LoadSession(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		h.reply(chatID, "Нет активного конвейера. Начните: /new или /social", nil)
		return
	}
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	switch sess.Step {
	case pipeline.StepCreateProject, pipeline.StepSelectProject:
		h.createProject(ctx, chatID, userID, text)
	case pipeline.StepCreateConnection, pipeline.StepSelectConnection:
		h.createConnection(ctx, chatID, userID, text)
	case pipeline.StepCreateCategory, pipeline.StepSelectCategory:
		h.createCategory(ctx, chatID, userID, text)
	case pipeline.StepReadiness:
		// На шаге готовности свободный ввод считаем ключевыми словами:
		// это единственный блокер.
		h.setKeywords(ctx, chatID, userID, text)
	default:
		h.reply(chatID, "Сейчас ввод текста не требуется. Используйте кнопки под сообщением.", nil)
	}
}

func (h *Handler) applyPendingInput(ctx context.Context, chatID, userID int64, kind, text string) {
	switch kind {
	case "keywords":
		h.setKeywords(ctx, chatID, userID, text)
	case "description":
		view, err := h.pipelineUC.SetDescription(ctx, userID, text)
		if err != nil {
			h.replyError(chatID, err)
			return
		}
		h.reply(chatID, "Описание сохранено.", nil)
		h.renderView(chatID, view)
	}
}

func (h *Handler) createProject(ctx context.Context, chatID, userID int64, text string) {
	name, rest := splitParts(text)
	if name == "" {
		h.reply(chatID, "Формат: Название | https://site.ru", nil)
		return
	}
	view, err := h.pipelineUC.CreateProject(ctx, userID, name, rest)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.renderView(chatID, view)
}

func (h *Handler) createConnection(ctx context.Context, chatID, userID int64, text string) {
	conn, err := parseConnectionInput(text)
	if err != nil {
		h.reply(chatID, err.Error(), nil)
		return
	}
	view, err := h.pipelineUC.CreateConnection(ctx, userID, conn)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.renderView(chatID, view)
}

// parseConnectionInput разбирает строку подключения. Форматы:
//
//	wordpress https://site.ru логин пароль_приложения
//	telegram -1001234567890
func parseConnectionInput(text string) (domain.Connection, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return domain.Connection{}, errors.New("Укажите площадку: wordpress или telegram")
	}
	switch domain.PlatformType(strings.ToLower(fields[0])) {
	case domain.PlatformWordPress:
		if len(fields) < 4 {
			return domain.Connection{}, errors.New("Формат: wordpress https://site.ru логин пароль_приложения")
		}
		return domain.Connection{
			Platform: domain.PlatformWordPress,
			SiteURL:  fields[1],
			Login:    fields[2],
			Secret:   fields[3],
		}, nil
	case domain.PlatformTelegram:
		if len(fields) < 2 {
			return domain.Connection{}, errors.New("Формат: telegram -1001234567890")
		}
		channelID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return domain.Connection{}, errors.New("Идентификатор канала должен быть числом, например -1001234567890")
		}
		return domain.Connection{Platform: domain.PlatformTelegram, ChannelID: channelID}, nil
	default:
		return domain.Connection{}, errors.New("Поддерживаются площадки wordpress и telegram")
	}
}

func (h *Handler) createCategory(ctx context.Context, chatID, userID int64, text string) {
	name, rest := splitParts(text)
	if name == "" {
		h.reply(chatID, "Формат: Название рубрики | ключ1, ключ2", nil)
		return
	}
	view, err := h.pipelineUC.CreateCategory(ctx, userID, name, parseKeywords(rest))
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.renderView(chatID, view)
}

func (h *Handler) setKeywords(ctx context.Context, chatID, userID int64, text string) {
	keywords := parseKeywords(text)
	if len(keywords) == 0 {
		h.reply(chatID, "Отправьте ключевые слова через запятую", nil)
		return
	}
	view, err := h.pipelineUC.SetKeywords(ctx, userID, keywords)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.reply(chatID, fmt.Sprintf("Сохранено ключевых слов: %d.", len(keywords)), nil)
	h.renderView(chatID, view)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID
	data := cb.Data
	h.touch(ctx, userID)
	switch {
	case data == "new_article":
		h.startPipeline(ctx, chatID, userID, domain.PipelineArticle)
	case data == "new_social":
		h.startPipeline(ctx, chatID, userID, domain.PipelineSocial)
	case data == "resume":
		h.handleResume(ctx, chatID, userID)
	case data == "balance":
		h.handleBalance(ctx, chatID, userID)
	case data == "help_menu":
		h.reply(chatID, h.buildHelpMessage(), h.mainKeyboard())
	case strings.HasPrefix(data, "proj:"):
		h.stepCall(chatID, func() (pipeline.View, error) {
			return h.pipelineUC.ChooseProject(ctx, userID, parseID(data))
		})
	case strings.HasPrefix(data, "conn:"):
		h.stepCall(chatID, func() (pipeline.View, error) {
			return h.pipelineUC.ChooseConnection(ctx, userID, parseID(data))
		})
	case strings.HasPrefix(data, "cat:"):
		h.stepCall(chatID, func() (pipeline.View, error) {
			return h.pipelineUC.ChooseCategory(ctx, userID, parseID(data))
		})
	case data == "enter_keywords":
		h.setPending(userID, "keywords")
		h.reply(chatID, "Отправьте ключевые слова через запятую", nil)
	case data == "enter_description":
		h.setPending(userID, "description")
		h.reply(chatID, "Отправьте описание рубрики одним сообщением", nil)
	case data == "confirm_generate":
		h.confirmGenerate(ctx, chatID, userID)
	case strings.HasPrefix(data, "regen:"):
		h.regenerate(ctx, chatID, userID, strings.TrimPrefix(data, "regen:"))
	case strings.HasPrefix(data, "publish:"):
		h.publish(ctx, chatID, userID, strings.TrimPrefix(data, "publish:"))
	case strings.HasPrefix(data, "cancel_draft:"):
		h.cancelDraft(ctx, chatID, userID, strings.TrimPrefix(data, "cancel_draft:"))
	case data == "exit_confirm":
		if err := h.pipelineUC.ConfirmExit(ctx, userID); err != nil {
			h.replyError(chatID, err)
			break
		}
		h.clearPending(userID)
		h.reply(chatID, "Конвейер приостановлен. Вернуться: /resume, начать заново: /new", nil)
	case data == "exit_stay":
		h.handleResume(ctx, chatID, userID)
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(userID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) stepCall(chatID int64, call func() (pipeline.View, error)) {
	view, err := call()
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.renderView(chatID, view)
}

func (h *Handler) confirmGenerate(ctx context.Context, chatID, userID int64) {
	h.reply(chatID, "Генерируем контент, это займёт до минуты...", nil)
	outcome, err := h.pipelineUC.ConfirmGenerate(ctx, userID)
	if err != nil {
		h.replyGenerateError(chatID, err, outcome.Refunded)
		return
	}
	lines := []string{fmt.Sprintf("Готово. Списано %d токенов.", outcome.Charged-outcome.Refunded)}
	if outcome.Refunded > 0 {
		lines = append(lines, fmt.Sprintf("Часть изображений не получилась, токены возвращены: %d.", outcome.Refunded))
	}
	h.reply(chatID, strings.Join(lines, "\n"), nil)
	h.renderView(chatID, outcome.View)
}

func (h *Handler) regenerate(ctx context.Context, chatID, userID int64, draftID string) {
	outcome, err := h.pipelineUC.Regenerate(ctx, userID, draftID)
	if errors.Is(err, domain.ErrDuplicate) {
		h.reply(chatID, "Регенерация уже выполняется, подождите.", nil)
		return
	}
	if err != nil {
		h.replyGenerateError(chatID, err, outcome.Refunded)
		return
	}
	if outcome.Charged > 0 {
		h.reply(chatID, fmt.Sprintf("Платная регенерация, списано %d токенов.", outcome.Charged), nil)
	} else {
		h.reply(chatID, "Бесплатная регенерация выполнена.", nil)
	}
	h.renderView(chatID, outcome.View)
}

func (h *Handler) replyGenerateError(chatID int64, err error, refunded int64) {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		h.reply(chatID, "Недостаточно токенов. Пополните баланс и повторите.", nil)
	case errors.Is(err, domain.ErrBusy):
		h.reply(chatID, "Все слоты генерации заняты, попробуйте через минуту. Токены возвращены.", nil)
	default:
		text := "Генерация не удалась, токены возвращены."
		if refunded > 0 {
			text = fmt.Sprintf("Генерация не удалась, токены возвращены: %d.", refunded)
		}
		h.reply(chatID, text, nil)
	}
}

func (h *Handler) publish(ctx context.Context, chatID, userID int64, draftID string) {
	result, err := h.pipelineUC.Publish(ctx, userID, draftID)
	if errors.Is(err, domain.ErrDuplicate) {
		h.reply(chatID, "Публикация уже выполняется, подождите.", nil)
		return
	}
	if errors.Is(err, domain.ErrDraftConflict) {
		h.reply(chatID, "Черновик уже обработан, публикация не требуется.", nil)
		return
	}
	if err != nil {
		h.reply(chatID, "Не удалось опубликовать, черновик сохранён. Попробуйте ещё раз.", nil)
		return
	}
	h.clearPending(userID)
	h.reply(chatID, fmt.Sprintf("Опубликовано: %s", result.URL), h.mainKeyboard())
}

func (h *Handler) cancelDraft(ctx context.Context, chatID, userID int64, draftID string) {
	refunded, err := h.pipelineUC.CancelDraft(ctx, userID, draftID)
	if errors.Is(err, domain.ErrDuplicate) {
		h.reply(chatID, "Отмена уже выполняется, подождите.", nil)
		return
	}
	if errors.Is(err, domain.ErrDraftConflict) {
		h.reply(chatID, "Черновик уже обработан.", nil)
		return
	}
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.clearPending(userID)
	h.reply(chatID, fmt.Sprintf("Черновик отменён, токены возвращены: %d.", refunded), h.mainKeyboard())
}

// renderView превращает View конвейера в сообщение с клавиатурой.
func (h *Handler) renderView(chatID int64, view pipeline.View) {
	switch view.Step {
	case pipeline.StepSelectProject:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(view.Projects))
		for _, p := range view.Projects {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(p.Name, fmt.Sprintf("proj:%d", p.ID)),
			))
		}
		markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
		h.reply(chatID, "Выберите проект или создайте новый: Название | https://site.ru", &markup)
	case pipeline.StepCreateProject:
		h.reply(chatID, "Проектов пока нет. Создайте первый: Название | https://site.ru", nil)
	case pipeline.StepSelectConnection:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(view.Connections))
		for _, c := range view.Connections {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(connectionLabel(c), fmt.Sprintf("conn:%d", c.ID)),
			))
		}
		markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
		h.reply(chatID, "Выберите подключение или добавьте новое:\nwordpress https://site.ru логин пароль_приложения\ntelegram -1001234567890", &markup)
	case pipeline.StepCreateConnection:
		h.reply(chatID, "Подключений пока нет. Добавьте:\nwordpress https://site.ru логин пароль_приложения\ntelegram -1001234567890", nil)
	case pipeline.StepSelectCategory:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(view.Categories))
		for _, c := range view.Categories {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(c.Name, fmt.Sprintf("cat:%d", c.ID)),
			))
		}
		markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
		h.reply(chatID, "Выберите рубрику или создайте новую: Название | ключ1, ключ2", &markup)
	case pipeline.StepCreateCategory:
		h.reply(chatID, "Рубрик пока нет. Создайте первую: Название | ключ1, ключ2", nil)
	case pipeline.StepReadiness:
		h.reply(chatID, renderReadiness(view.Report), readinessKeyboard())
	case pipeline.StepConfirmCost:
		markup := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Сгенерировать", "confirm_generate"),
			),
		)
		h.reply(chatID, fmt.Sprintf("Стоимость генерации: %d токенов. Списание произойдёт до запуска, при сбое токены вернутся.", view.EstimatedCost), &markup)
	case pipeline.StepPreview, pipeline.StepResult:
		h.renderPreview(chatID, view.Draft)
	default:
		h.reply(chatID, "Продолжайте по кнопкам под сообщением.", nil)
	}
}

func (h *Handler) renderPreview(chatID int64, draft *domain.Draft) {
	if draft == nil {
		h.reply(chatID, "Черновик не найден. Начните заново: /new", nil)
		return
	}
	var b strings.Builder
	b.WriteString(draft.Title)
	b.WriteString("\n\n")
	b.WriteString(clip(draft.Body, 2000))
	if draft.ImagesRequested > 0 {
		b.WriteString(fmt.Sprintf("\n\nИзображений: %d из %d.", draft.ImagesProduced, draft.ImagesRequested))
	}
	if draft.PreviewURL != "" {
		b.WriteString(fmt.Sprintf("\nПревью: %s", draft.PreviewURL))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Опубликовать", "publish:"+draft.ID),
			tgbotapi.NewInlineKeyboardButtonData("🔁 Ещё вариант", "regen:"+draft.ID),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Отменить и вернуть токены", "cancel_draft:"+draft.ID),
		),
	)
	h.reply(chatID, b.String(), &markup)
}

func renderReadiness(report *readiness.Report) string {
	if report == nil {
		return "Проверяем готовность рубрики..."
	}
	var b strings.Builder
	b.WriteString("Готовность рубрики:\n")
	for _, item := range report.Items {
		mark := "✅"
		if !item.Filled {
			mark = "▫️"
			if item.Blocker {
				mark = "⛔"
			}
		}
		b.WriteString(fmt.Sprintf("%s %s\n", mark, itemLabel(item.Name)))
	}
	if report.HasBlockers {
		b.WriteString("\nБез ключевых слов генерация невозможна. Отправьте их через запятую.")
	} else {
		b.WriteString(fmt.Sprintf("\nОценка стоимости: %d токенов.", report.EstimatedCost))
	}
	return b.String()
}

func itemLabel(name string) string {
	switch name {
	case readiness.ItemKeywords:
		return "Ключевые слова"
	case readiness.ItemDescription:
		return "Описание"
	case readiness.ItemPrices:
		return "Цены"
	case readiness.ItemImages:
		return "Изображения"
	default:
		return name
	}
}

func readinessKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔑 Ключевые слова", "enter_keywords"),
			tgbotapi.NewInlineKeyboardButtonData("📝 Описание", "enter_description"),
		),
	)
	return &markup
}

func connectionLabel(c domain.Connection) string {
	switch c.Platform {
	case domain.PlatformTelegram:
		return fmt.Sprintf("Telegram %d", c.ChannelID)
	default:
		if c.SiteURL != "" {
			return fmt.Sprintf("%s (%s)", c.Platform, c.SiteURL)
		}
		return string(c.Platform)
	}
}

func (h *Handler) replyError(chatID int64, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		h.reply(chatID, "Недостаточно токенов. Пополните баланс и повторите.", nil)
	case errors.Is(err, domain.ErrNotFound):
		h.reply(chatID, "Ничего не найдено. Проверьте выбор или начните заново: /new", nil)
	case errors.Is(err, domain.ErrDraftConflict):
		h.reply(chatID, "Действие уже неактуально, обновите превью.", nil)
	default:
		h.log.Error().Err(err).Msg("ошибка конвейера")
		h.reply(chatID, "Что-то пошло не так, попробуйте позже.", nil)
	}
}

func (h *Handler) touch(ctx context.Context, userID int64) {
	if err := h.users.TouchActivity(ctx, userID); err != nil {
		h.log.Warn().Err(err).Int64("user", userID).Msg("не удалось обновить активность")
	}
}

func (h *Handler) setPending(userID int64, kind string) {
	h.mu.Lock()
	h.pendingInput[userID] = kind
	h.mu.Unlock()
}

func (h *Handler) takePending(userID int64) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kind, ok := h.pendingInput[userID]
	if ok {
		delete(h.pendingInput, userID)
	}
	return kind, ok
}

func (h *Handler) clearPending(userID int64) {
	h.mu.Lock()
	delete(h.pendingInput, userID)
	h.mu.Unlock()
}

// splitParts делит ввод вида "Название | остальное" на две части.
func splitParts(text string) (string, string) {
	parts := strings.SplitN(text, "|", 2)
	name := strings.TrimSpace(parts[0])
	rest := ""
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return name, rest
}

func parseKeywords(input string) []string {
	parts := strings.FieldsFunc(input, func(r rune) bool {
		switch r {
		case ',', ';', '\n':
			return true
		default:
			return false
		}
	})
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		kw := strings.TrimSpace(part)
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
	}
	return keywords
}

func parseID(data string) int64 {
	parts := strings.Split(data, ":")
	if len(parts) != 2 {
		return 0
	}
	id, _ := strconv.ParseInt(parts[1], 10, 64)
	return id
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📝 Новая статья", "new_article"),
			tgbotapi.NewInlineKeyboardButtonData("📣 Пост для соцсетей", "new_social"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("▶️ Продолжить", "resume"),
			tgbotapi.NewInlineKeyboardButtonData("💰 Баланс", "balance"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Помощь", "help_menu"),
		),
	)
	return &buttons
}

func (h *Handler) buildStartMessage(user domain.User) string {
	plan := user.Plan()
	lines := []string{
		"👋 Добро пожаловать в SEO Master!",
		"",
		fmt.Sprintf("Ваш тариф: %s. Баланс: %d токенов.", plan.Name, user.Balance),
		"",
		"Как это работает:",
		"1. 📝 /new — статья для сайта, 📣 /social — пост для соцсетей.",
		"2. Выберите проект, подключение и рубрику, подтверждайте шаги кнопками.",
		"3. Бот покажет стоимость до генерации; при сбое токены возвращаются.",
		"4. Превью можно перегенерировать, опубликовать или отменить с возвратом токенов.",
		"",
		"Прерванный конвейер возвращается командой /resume в течение суток.",
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) buildHelpMessage() string {
	sections := []string{
		"📖 Команды:",
		"",
		"• /new — запустить конвейер статьи.",
		"• /social — запустить конвейер поста для соцсетей.",
		"• /resume — вернуться к незавершённому конвейеру.",
		"• /balance — баланс токенов и тариф.",
		"• /cancel — выйти из конвейера (с подтверждением, если есть прогресс).",
		"",
		"Форматы ввода:",
		"• Проект: Название | https://site.ru",
		"• Подключение: wordpress https://site.ru логин пароль_приложения",
		"• Подключение: telegram -1001234567890",
		"• Рубрика: Название | ключ1, ключ2",
		"",
		"Списание токенов всегда видно заранее, а при любом сбое они возвращаются.",
	}
	return strings.Join(sections, "\n")
}
