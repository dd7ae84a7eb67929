// Package notify строит пакетные рассылки: низкий баланс, недельная сводка,
// реактивация давно неактивных пользователей. Сообщения ставятся в очередь,
// доставкой занимается отдельный воркер.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Options настраивают рассылки.
type Options struct {
	// ReactivationAfter — срок неактивности, после которого пользователь
	// попадает в реактивационную рассылку.
	ReactivationAfter time.Duration
}

// Service строит пакеты уведомлений по типу рассылки.
type Service struct {
	users domain.UserRepo
	queue domain.NotifyQueue
	opts  Options
	log   zerolog.Logger
	now   func() time.Time
}

// NewService создаёт сервис рассылок.
func NewService(users domain.UserRepo, queue domain.NotifyQueue, opts Options, logger zerolog.Logger) *Service {
	if opts.ReactivationAfter <= 0 {
		opts.ReactivationAfter = 14 * 24 * time.Hour
	}
	return &Service{
		users: users,
		queue: queue,
		opts:  opts,
		log:   logger,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RunBatch строит и ставит в очередь рассылку указанного типа.
func (s *Service) RunBatch(ctx context.Context, kind domain.NotifyKind) (domain.NotifyReport, error) {
	var (
		recipients []domain.User
		err        error
	)
	switch kind {
	case domain.NotifyLowBalanceKind:
		recipients, err = s.users.ListLowBalance(ctx)
	case domain.NotifyWeeklyDigest:
		recipients, err = s.users.ListWeeklyStats(ctx)
	case domain.NotifyReactivation:
		recipients, err = s.users.ListInactiveSince(ctx, s.now().Add(-s.opts.ReactivationAfter))
	default:
		return domain.NotifyReport{}, fmt.Errorf("неизвестный тип рассылки: %s", kind)
	}
	if err != nil {
		return domain.NotifyReport{}, fmt.Errorf("выборка получателей %s: %w", kind, err)
	}

	var report domain.NotifyReport
	for _, user := range recipients {
		if skip(user, kind) {
			continue
		}
		job := domain.NotifyJob{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Kind:      kind,
			Text:      textFor(user, kind),
			CreatedAt: s.now(),
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			metrics.NotifySendErrors.Inc()
			s.log.Error().Err(err).Int64("user_id", user.ID).Str("kind", string(kind)).
				Msg("рассылка: сообщение не поставлено в очередь")
			report.Failed++
			continue
		}
		report.Sent++
	}
	return report, nil
}

// skip применяет пользовательские настройки уведомлений.
func skip(user domain.User, kind domain.NotifyKind) bool {
	switch kind {
	case domain.NotifyLowBalanceKind:
		return !user.NotifyLowBalance || user.Balance >= user.Plan().LowBalanceAt
	case domain.NotifyWeeklyDigest:
		return !user.NotifyWeeklyStats
	default:
		return false
	}
}

func textFor(user domain.User, kind domain.NotifyKind) string {
	switch kind {
	case domain.NotifyLowBalanceKind:
		return fmt.Sprintf("На балансе осталось %d токенов. Пополните счёт, чтобы публикации по расписанию не остановились.", user.Balance)
	case domain.NotifyWeeklyDigest:
		return fmt.Sprintf("Итоги недели: баланс %d токенов. Продолжайте публиковать!", user.Balance)
	case domain.NotifyReactivation:
		return "Давно не виделись! Запустите новую статью командой /new."
	default:
		return ""
	}
}
