// Package hooks реализует вход для внешне инициируемых, повторно доставляемых
// действий: автопубликация по расписанию, суточная уборка, пакетные рассылки,
// продление подписки.
//
// Протокол общий для всех эндпоинтов: планировщик повторяет доставку на любой
// не-2xx ответ, поэтому все исходы, включая ошибочные, отвечают статусом 200
// и различаются только полем status в теле. Исключения два: 401 при неверной
// подписи и 503 с Retry-After при остановке или занятом исполнителе.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/adapters/qstash"
	"github.com/GVMBT/seo-master-sub004/internal/domain"
	infrahttp "github.com/GVMBT/seo-master-sub004/internal/infra/http"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/autopublish"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/cleanup"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/idem"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/notify"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/renew"
)

// Заголовки доставки планировщика.
const (
	HeaderSignature = "Upstash-Signature"
	HeaderMessageID = "Upstash-Message-Id"
)

const retryAfterSeconds = "60"

// Статусы и причины success-shaped ответов.
const (
	statusOK             = "ok"
	statusDuplicate      = "duplicate"
	reasonInvalidPayload = "invalid_payload"
	reasonInternalError  = "internal_error"
)

// Handler обслуживает вебхуки планировщика.
type Handler struct {
	verifier    *qstash.Verifier
	locks       *idem.Locker
	autopublish *autopublish.Service
	cleanup     *cleanup.Service
	notify      *notify.Service
	renew       *renew.Service
	notifier    domain.Notifier
	lockTTL     time.Duration
	shutdown    context.Context
	log         zerolog.Logger
}

// NewHandler создаёт обработчик вебхуков. shutdown отменяется при начале
// остановки процесса: с этого момента новые доставки получают 503.
func NewHandler(
	verifier *qstash.Verifier,
	locks *idem.Locker,
	autopublishSvc *autopublish.Service,
	cleanupSvc *cleanup.Service,
	notifySvc *notify.Service,
	renewSvc *renew.Service,
	notifier domain.Notifier,
	lockTTL time.Duration,
	shutdown context.Context,
	logger zerolog.Logger,
) *Handler {
	if lockTTL <= 0 {
		lockTTL = time.Hour
	}
	return &Handler{
		verifier:    verifier,
		locks:       locks,
		autopublish: autopublishSvc,
		cleanup:     cleanupSvc,
		notify:      notifySvc,
		renew:       renewSvc,
		notifier:    notifier,
		lockTTL:     lockTTL,
		shutdown:    shutdown,
		log:         logger,
	}
}

// Register вешает маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Post("/publish", h.handlePublish)
	r.Post("/cleanup", h.handleCleanup)
	r.Post("/notify", h.handleNotify)
	r.Post("/renew", h.handleRenew)
}

// admit выполняет общую часть протокола: чтение тела, проверка подписи,
// отказ на остановке, идемпотентный замок по message id. Возвращает тело и
// признак, можно ли продолжать.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, endpoint string, withLock bool) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Error().Err(err).Str("endpoint", endpoint).Msg("webhook: тело не прочитано")
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInvalidPayload})
		return nil, false
	}
	if !h.verifier.Verify(r.Header.Get(HeaderSignature), body) {
		metrics.WebhookRequests.WithLabelValues(endpoint, "401").Inc()
		infrahttp.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return nil, false
	}
	if h.shutdown.Err() != nil {
		h.retryLater(w, endpoint)
		return nil, false
	}
	if withLock {
		messageID := r.Header.Get(HeaderMessageID)
		if messageID == "" {
			h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInvalidPayload})
			return nil, false
		}
		claimed, err := h.locks.TryClaim(r.Context(), idem.WebhookKey(endpoint, messageID), h.lockTTL)
		if err != nil {
			h.log.Error().Err(err).Str("endpoint", endpoint).Msg("webhook: замок недоступен")
			h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInternalError})
			return nil, false
		}
		if !claimed {
			metrics.WebhookDuplicates.WithLabelValues(endpoint).Inc()
			h.respond(w, endpoint, map[string]string{"status": statusDuplicate})
			return nil, false
		}
	}
	return body, true
}

func (h *Handler) respond(w http.ResponseWriter, endpoint string, payload any) {
	metrics.WebhookRequests.WithLabelValues(endpoint, "200").Inc()
	infrahttp.WriteJSON(w, http.StatusOK, payload)
}

// retryLater отвечает 503 с Retry-After: единственный случай, когда повтор
// планировщика желателен.
func (h *Handler) retryLater(w http.ResponseWriter, endpoint string) {
	metrics.WebhookRequests.WithLabelValues(endpoint, "503").Inc()
	w.Header().Set("Retry-After", retryAfterSeconds)
	infrahttp.WriteError(w, http.StatusServiceUnavailable, "shutting down or busy")
}

type publishPayload struct {
	ScheduleID     int64               `json:"schedule_id"`
	CategoryID     int64               `json:"category_id"`
	ConnectionID   int64               `json:"connection_id"`
	PlatformType   domain.PlatformType `json:"platform_type"`
	UserID         int64               `json:"user_id"`
	ProjectID      int64               `json:"project_id"`
	IdempotencyKey string              `json:"idempotency_key"`
}

func (p publishPayload) valid() bool {
	switch p.PlatformType {
	case domain.PlatformWordPress, domain.PlatformTelegram, domain.PlatformVK, domain.PlatformPinterest:
	default:
		return false
	}
	return p.CategoryID > 0 && p.ConnectionID > 0 && p.UserID > 0
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	const endpoint = "publish"
	body, ok := h.admit(w, r, endpoint, true)
	if !ok {
		return
	}
	var payload publishPayload
	if err := json.Unmarshal(body, &payload); err != nil || !payload.valid() {
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInvalidPayload})
		return
	}

	outcome, err := h.autopublish.Run(r.Context(), autopublish.Request{
		ScheduleID:   payload.ScheduleID,
		CategoryID:   payload.CategoryID,
		ConnectionID: payload.ConnectionID,
		Platform:     payload.PlatformType,
		UserID:       payload.UserID,
		ProjectID:    payload.ProjectID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrBusy) || errors.Is(err, domain.ErrShuttingDown) {
			// Исполнитель занят: замок снимается, чтобы повтор планировщика
			// не был поглощён как дубликат.
			if rerr := h.locks.Release(r.Context(), idem.WebhookKey(endpoint, r.Header.Get(HeaderMessageID))); rerr != nil {
				h.log.Warn().Err(rerr).Msg("webhook: замок не снят перед ретраем")
			}
			h.retryLater(w, endpoint)
			return
		}
		// Замок намеренно не снимается: следующая доставка поглотится им
		// до истечения TTL вместо повторного побочного эффекта.
		h.log.Error().Err(err).Int64("user_id", payload.UserID).Msg("webhook: автопубликация упала")
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInternalError})
		return
	}

	if outcome.Notify {
		if err := h.notifier.Send(r.Context(), outcome.UserID, publishNotice(outcome)); err != nil {
			h.log.Warn().Err(err).Int64("user_id", outcome.UserID).Msg("webhook: уведомление не доставлено")
		}
	}
	resp := map[string]any{"status": string(outcome.Status)}
	if outcome.Reason != "" {
		resp["reason"] = outcome.Reason
	}
	h.respond(w, endpoint, resp)
}

// publishNotice строит текст уведомления об итоге автопубликации. Про токены
// говорится явно: пользователь не должен гадать, списали ли его.
func publishNotice(outcome domain.PublishOutcome) string {
	switch {
	case outcome.Status == domain.OutcomeOK:
		return fmt.Sprintf("Публикация по расписанию выполнена, списано %d токенов.", outcome.SpentTokens)
	case outcome.Reason == autopublish.ReasonInsufficient:
		return "Публикация по расписанию пропущена: недостаточно токенов. Пополните баланс."
	default:
		return "Публикация по расписанию не удалась, токены возвращены."
	}
}

type cleanupPayload struct {
	Action string `json:"action"`
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	const endpoint = "cleanup"
	body, ok := h.admit(w, r, endpoint, true)
	if !ok {
		return
	}
	var payload cleanupPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Action != "cleanup" {
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInvalidPayload})
		return
	}

	report, err := h.cleanup.Run(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("webhook: уборка упала")
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInternalError})
		return
	}
	h.respond(w, endpoint, map[string]any{
		"status":       statusOK,
		"expired":      report.Expired,
		"refunds":      report.Refunds,
		"logs_deleted": report.LogsDeleted,
	})
}

type notifyPayload struct {
	Action string            `json:"action"`
	Type   domain.NotifyKind `json:"type"`
}

func (p notifyPayload) valid() bool {
	if p.Action != "notify" {
		return false
	}
	switch p.Type {
	case domain.NotifyLowBalanceKind, domain.NotifyWeeklyDigest, domain.NotifyReactivation:
		return true
	default:
		return false
	}
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	const endpoint = "notify"
	body, ok := h.admit(w, r, endpoint, true)
	if !ok {
		return
	}
	var payload notifyPayload
	if err := json.Unmarshal(body, &payload); err != nil || !payload.valid() {
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInvalidPayload})
		return
	}

	report, err := h.notify.RunBatch(r.Context(), payload.Type)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(payload.Type)).Msg("webhook: рассылка упала")
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInternalError})
		return
	}
	h.respond(w, endpoint, map[string]any{
		"status": statusOK,
		"type":   string(payload.Type),
		"sent":   report.Sent,
		"failed": report.Failed,
	})
}

type renewPayload struct {
	UserID          int64  `json:"user_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Package         string `json:"package"`
}

// handleRenew не берёт замок по message id: продление идемпотентно по
// пользователю и часу, окно держит сам сервис.
func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	const endpoint = "renew"
	body, ok := h.admit(w, r, endpoint, false)
	if !ok {
		return
	}
	var payload renewPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.UserID <= 0 || payload.PaymentMethodID == "" {
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInvalidPayload})
		return
	}

	result, err := h.renew.Run(r.Context(), payload.UserID, payload.PaymentMethodID, payload.Package)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", payload.UserID).Msg("webhook: продление упало")
		h.respond(w, endpoint, map[string]string{"status": "error", "reason": reasonInternalError})
		return
	}
	resp := map[string]any{"status": result.Status}
	if result.Reason != "" {
		resp["reason"] = result.Reason
	}
	if result.Tokens > 0 {
		resp["tokens"] = strconv.FormatInt(result.Tokens, 10)
	}
	h.respond(w, endpoint, resp)
}
