package pipeline

import (
	"context"
	"fmt"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/idem"
)

// PublishResult — итог публикации для слоя бота.
type PublishResult struct {
	URL      string
	Platform domain.PlatformType
}

// Publish публикует черновик на площадку его подключения. Переход статуса
// draft → published выполняется до внешнего вызова: проигравший CAS получает
// ErrDraftConflict и не трогает площадку.
func (s *Service) Publish(ctx context.Context, userID int64, draftID string) (PublishResult, error) {
	key := idem.ActionKey("publish", draftID)
	ok, err := s.locks.TryClaim(ctx, key, s.opts.ActionTTL)
	if err != nil {
		return PublishResult{}, fmt.Errorf("блокировка публикации: %w", err)
	}
	if !ok {
		return PublishResult{}, fmt.Errorf("публикация %s уже выполняется: %w", draftID, domain.ErrDuplicate)
	}
	defer s.release(ctx, key)

	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return PublishResult{}, err
	}
	if draft.UserID != userID {
		return PublishResult{}, fmt.Errorf("черновик %s: %w", draftID, domain.ErrNotFound)
	}
	if draft.ConnectionID == nil {
		return PublishResult{}, fmt.Errorf("черновик %s без подключения: %w", draftID, domain.ErrDraftConflict)
	}
	conn, err := s.conns.Get(ctx, *draft.ConnectionID)
	if err != nil {
		return PublishResult{}, err
	}
	publisher, ok := s.publishers[conn.Platform]
	if !ok {
		return PublishResult{}, fmt.Errorf("площадка %s не поддерживается", conn.Platform)
	}

	won, err := s.drafts.TransitionStatus(ctx, draftID, domain.DraftStatusDraft, domain.DraftStatusPublished)
	if err != nil {
		return PublishResult{}, fmt.Errorf("переход статуса: %w", err)
	}
	if !won {
		metrics.DraftTransitionLost.WithLabelValues(string(domain.DraftStatusPublished)).Inc()
		return PublishResult{}, fmt.Errorf("черновик %s уже обработан: %w", draftID, domain.ErrDraftConflict)
	}

	url, err := publisher.Publish(ctx, conn, draft)
	if err != nil {
		// Откат даёт пользователю повторить. Если и он проиграл, черновик уже
		// забрал другой процесс и возвращать нечего.
		if reverted, rerr := s.drafts.TransitionStatus(ctx, draftID, domain.DraftStatusPublished, domain.DraftStatusDraft); rerr != nil || !reverted {
			s.log.Error().Err(rerr).Str("draft_id", draftID).Msg("публикация: откат статуса не прошёл")
		}
		metrics.PublishResults.WithLabelValues(string(conn.Platform), "error").Inc()
		return PublishResult{}, fmt.Errorf("публикация на %s: %w", conn.Platform, err)
	}
	metrics.PublishResults.WithLabelValues(string(conn.Platform), "ok").Inc()

	if err := s.categories.IncrementPublished(ctx, draft.CategoryID); err != nil {
		s.log.Error().Err(err).Int64("category_id", draft.CategoryID).Msg("публикация: счётчик рубрики не увеличен")
	}
	if err := s.store.Clear(ctx, userID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("публикация: сессия не очищена")
	}
	return PublishResult{URL: url, Platform: conn.Platform}, nil
}

// CancelDraft отменяет черновик с возвратом токенов. Возврат выполняется
// ровно один раз: право на него даёт выигранный CAS-переход draft → cancelled.
// Превью удаляется до возврата, его сбой возврат не блокирует.
func (s *Service) CancelDraft(ctx context.Context, userID int64, draftID string) (int64, error) {
	key := idem.ActionKey("cancel", draftID)
	ok, err := s.locks.TryClaim(ctx, key, s.opts.ActionTTL)
	if err != nil {
		return 0, fmt.Errorf("блокировка отмены: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("отмена %s уже выполняется: %w", draftID, domain.ErrDuplicate)
	}
	defer s.release(ctx, key)

	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return 0, err
	}
	if draft.UserID != userID {
		return 0, fmt.Errorf("черновик %s: %w", draftID, domain.ErrNotFound)
	}

	won, err := s.drafts.TransitionStatus(ctx, draftID, domain.DraftStatusDraft, domain.DraftStatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("переход статуса: %w", err)
	}
	if !won {
		metrics.DraftTransitionLost.WithLabelValues(string(domain.DraftStatusCancelled)).Inc()
		return 0, fmt.Errorf("черновик %s уже обработан: %w", draftID, domain.ErrDraftConflict)
	}

	if err := s.previews.DeletePreview(ctx, draft); err != nil {
		s.log.Warn().Err(err).Str("draft_id", draftID).Msg("отмена: превью не удалено")
	}

	var refunded int64
	if draft.TokensCharged > 0 {
		if _, err := s.ledger.Refund(ctx, userID, draft.TokensCharged, fmt.Sprintf("cancel:draft:%s", draftID)); err != nil {
			s.log.Error().Err(err).Str("draft_id", draftID).Int64("amount", draft.TokensCharged).
				Msg("отмена: возврат не прошёл")
			return 0, fmt.Errorf("возврат токенов: %w", err)
		}
		refunded = draft.TokensCharged
	}
	if err := s.store.Clear(ctx, userID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("отмена: сессия не очищена")
	}
	return refunded, nil
}
