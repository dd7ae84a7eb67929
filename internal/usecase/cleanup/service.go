// Package cleanup выполняет ежедневную уборку: просроченные черновики
// переводятся в expired с возвратом токенов, старый журнал баланса удаляется.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

const staleBatchSize = 200

// Ledger — операции баланса, нужные уборке.
type Ledger interface {
	Refund(ctx context.Context, userID, amount int64, reason string) (int64, error)
}

// Options настраивают уборку.
type Options struct {
	// DraftExpiryAge — возраст черновика, после которого он считается брошенным.
	DraftExpiryAge time.Duration
	// LedgerRetention — срок хранения журнала баланса.
	LedgerRetention time.Duration
}

// Service — сервис уборки. Запускается вебхуком /cleanup раз в сутки;
// повторный запуск безопасен: право на возврат даёт CAS-переход статуса.
type Service struct {
	drafts   domain.DraftRepo
	ledger   Ledger
	entries  domain.LedgerRepo
	previews domain.PreviewStore
	notifier domain.Notifier
	opts     Options
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис уборки.
func NewService(
	drafts domain.DraftRepo,
	ledger Ledger,
	entries domain.LedgerRepo,
	previews domain.PreviewStore,
	notifier domain.Notifier,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.DraftExpiryAge <= 0 {
		opts.DraftExpiryAge = 24 * time.Hour
	}
	if opts.LedgerRetention <= 0 {
		opts.LedgerRetention = 90 * 24 * time.Hour
	}
	return &Service{
		drafts:   drafts,
		ledger:   ledger,
		entries:  entries,
		previews: previews,
		notifier: notifier,
		opts:     opts,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run выполняет один проход уборки и возвращает отчёт.
func (s *Service) Run(ctx context.Context) (domain.CleanupReport, error) {
	var report domain.CleanupReport

	cutoff := s.now().Add(-s.opts.DraftExpiryAge)
	for {
		stale, err := s.drafts.ListStale(ctx, cutoff, staleBatchSize)
		if err != nil {
			return report, fmt.Errorf("выборка просроченных черновиков: %w", err)
		}
		if len(stale) == 0 {
			break
		}
		for _, draft := range stale {
			if err := s.expire(ctx, draft, &report); err != nil {
				s.log.Error().Err(err).Str("draft_id", draft.ID).Msg("уборка: черновик не истёк")
			}
		}
		if len(stale) < staleBatchSize {
			break
		}
	}

	deleted, err := s.entries.DeleteEntriesBefore(ctx, s.now().Add(-s.opts.LedgerRetention))
	if err != nil {
		s.log.Error().Err(err).Msg("уборка: журнал баланса не очищен")
	} else {
		report.LogsDeleted = deleted
	}
	return report, nil
}

// expire переводит черновик в expired. Проигранный CAS означает, что черновик
// успели опубликовать или отменить; возврат в этом случае не выполняется.
func (s *Service) expire(ctx context.Context, draft domain.Draft, report *domain.CleanupReport) error {
	won, err := s.drafts.TransitionStatus(ctx, draft.ID, domain.DraftStatusDraft, domain.DraftStatusExpired)
	if err != nil {
		return fmt.Errorf("переход статуса: %w", err)
	}
	if !won {
		metrics.DraftTransitionLost.WithLabelValues(string(domain.DraftStatusExpired)).Inc()
		return nil
	}
	report.Expired++

	if err := s.previews.DeletePreview(ctx, draft); err != nil {
		s.log.Warn().Err(err).Str("draft_id", draft.ID).Msg("уборка: превью не удалено")
	}
	if draft.TokensCharged > 0 {
		if _, err := s.ledger.Refund(ctx, draft.UserID, draft.TokensCharged, fmt.Sprintf("expire:draft:%s", draft.ID)); err != nil {
			return fmt.Errorf("возврат токенов: %w", err)
		}
		report.Refunds += draft.TokensCharged
		text := fmt.Sprintf("Черновик истёк, токены возвращены: %d.", draft.TokensCharged)
		if err := s.notifier.Send(ctx, draft.UserID, text); err != nil {
			s.log.Warn().Err(err).Int64("user_id", draft.UserID).Msg("уборка: уведомление не доставлено")
		}
	}
	return nil
}
