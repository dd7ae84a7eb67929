package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/idem"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/readiness"
)

// GenerateOutcome — итог генерации для слоя бота.
type GenerateOutcome struct {
	Draft    domain.Draft
	Charged  int64
	Refunded int64
	View     View
}

// ConfirmGenerate списывает оценку стоимости и запускает генерацию.
// Списание идёт до вызова генератора: при любом сбое токены возвращаются
// полностью, при недопоставке изображений — разница по прайсу.
func (s *Service) ConfirmGenerate(ctx context.Context, userID int64) (GenerateOutcome, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return GenerateOutcome{}, err
	}
	if sess.Step != StepConfirmCost {
		return GenerateOutcome{}, fmt.Errorf("подтверждение на шаге %s: %w", sess.Step, domain.ErrDraftConflict)
	}

	cost := sess.EstimatedCost
	reason := fmt.Sprintf("generation:%s:category:%d", sess.Pipeline, sess.CategoryID)
	if _, err := s.ledger.Charge(ctx, userID, cost, reason); err != nil {
		return GenerateOutcome{}, err
	}

	sess.Step = StepGenerating
	if err := s.store.SaveSession(ctx, sess); err != nil {
		// Токены уже списаны, бросать операцию нельзя: продолжаем без сессии.
		s.log.Error().Err(err).Int64("user_id", userID).Msg("генерация: сессия не сохранена")
	}

	category, err := s.categories.Get(ctx, sess.CategoryID)
	if err != nil {
		return s.refundAndRewind(ctx, sess, cost, reason, err)
	}
	content, err := s.exec.Generate(ctx, domain.GenerationRequest{
		Pipeline:        sess.Pipeline,
		Category:        category,
		ImagesRequested: sess.ImagesRequested,
		WithDescription: sess.NeedDescription,
	})
	if err != nil {
		return s.refundAndRewind(ctx, sess, cost, reason, err)
	}

	charged := cost
	var refunded int64
	if sess.Pipeline == domain.PipelineArticle && content.ImagesProduced < sess.ImagesRequested {
		shortfall := int64(sess.ImagesRequested-content.ImagesProduced) * readiness.PricePerImage
		if _, err := s.ledger.Refund(ctx, userID, shortfall, reason+":image_shortfall"); err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Msg("генерация: возврат за недопоставку не прошёл")
		} else {
			refunded = shortfall
			charged -= shortfall
		}
	}

	draft := domain.Draft{
		ID:              s.newID(),
		UserID:          userID,
		ProjectID:       sess.ProjectID,
		CategoryID:      sess.CategoryID,
		Pipeline:        sess.Pipeline,
		Title:           content.Title,
		Body:            content.Body,
		ImagesRequested: sess.ImagesRequested,
		ImagesProduced:  content.ImagesProduced,
		TokensCharged:   charged,
		Status:          domain.DraftStatusDraft,
	}
	if sess.ConnectionID != 0 {
		connID := sess.ConnectionID
		draft.ConnectionID = &connID
	}
	if err := s.drafts.Create(ctx, draft); err != nil {
		return s.refundAndRewind(ctx, sess, charged, reason, err)
	}

	sess.DraftID = draft.ID
	sess.Step = StepPreview
	view, err := s.save(ctx, sess, View{Step: StepPreview, Pipeline: sess.Pipeline, Draft: &draft})
	if err != nil {
		return GenerateOutcome{}, err
	}
	return GenerateOutcome{Draft: draft, Charged: charged, Refunded: refunded, View: view}, nil
}

// refundAndRewind возвращает полную сумму и откатывает сессию к шагу
// подтверждения, чтобы пользователь мог повторить без нового прохода.
func (s *Service) refundAndRewind(ctx context.Context, sess Session, amount int64, reason string, cause error) (GenerateOutcome, error) {
	var refunded int64
	if _, err := s.ledger.Refund(ctx, sess.UserID, amount, reason+":failure"); err != nil {
		s.log.Error().Err(err).Int64("user_id", sess.UserID).Int64("amount", amount).
			Msg("генерация: возврат после сбоя не прошёл")
	} else {
		refunded = amount
	}
	sess.Step = StepConfirmCost
	sess.DraftID = ""
	if err := s.store.SaveSession(ctx, sess); err != nil {
		s.log.Error().Err(err).Int64("user_id", sess.UserID).Msg("генерация: откат сессии не сохранён")
	}
	return GenerateOutcome{Refunded: refunded}, fmt.Errorf("генерация контента: %w", cause)
}

// Regenerate перегенерирует черновик. Первые перегенерации бесплатны,
// дальше списывается исходная стоимость черновика. Счётчик увеличивается
// только после успешной генерации.
func (s *Service) Regenerate(ctx context.Context, userID int64, draftID string) (GenerateOutcome, error) {
	key := idem.ActionKey("regen", draftID)
	ok, err := s.locks.TryClaim(ctx, key, s.opts.ActionTTL)
	if err != nil {
		return GenerateOutcome{}, fmt.Errorf("блокировка перегенерации: %w", err)
	}
	if !ok {
		return GenerateOutcome{}, fmt.Errorf("перегенерация %s уже выполняется: %w", draftID, domain.ErrDuplicate)
	}
	defer s.release(ctx, key)

	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return GenerateOutcome{}, err
	}
	if draft.UserID != userID {
		return GenerateOutcome{}, fmt.Errorf("черновик %s: %w", draftID, domain.ErrNotFound)
	}
	if draft.Status != domain.DraftStatusDraft {
		return GenerateOutcome{}, fmt.Errorf("черновик %s в статусе %s: %w", draftID, draft.Status, domain.ErrDraftConflict)
	}

	var charged int64
	reason := fmt.Sprintf("regeneration:draft:%s", draftID)
	if draft.RegenCount >= s.opts.FreeRegens {
		if _, err := s.ledger.Charge(ctx, userID, draft.TokensCharged, reason); err != nil {
			return GenerateOutcome{}, err
		}
		charged = draft.TokensCharged
	}

	category, err := s.categories.Get(ctx, draft.CategoryID)
	if err == nil {
		var content domain.GeneratedContent
		content, err = s.exec.Generate(ctx, domain.GenerationRequest{
			Pipeline:        draft.Pipeline,
			Category:        category,
			ImagesRequested: draft.ImagesRequested,
		})
		if err == nil {
			if _, incErr := s.drafts.IncrementRegen(ctx, draftID); incErr != nil {
				s.log.Error().Err(incErr).Str("draft_id", draftID).Msg("перегенерация: счётчик не увеличен")
			}
			if upErr := s.drafts.UpdateContent(ctx, draftID, content.Title, content.Body, content.ImagesProduced, draft.TokensCharged); upErr != nil {
				err = fmt.Errorf("сохранение контента: %w", upErr)
			} else {
				draft, err = s.drafts.Get(ctx, draftID)
			}
		}
	}
	if err != nil {
		var refunded int64
		if charged > 0 {
			if _, rErr := s.ledger.Refund(ctx, userID, charged, reason+":failure"); rErr != nil {
				s.log.Error().Err(rErr).Str("draft_id", draftID).Msg("перегенерация: возврат не прошёл")
			} else {
				refunded = charged
			}
		}
		return GenerateOutcome{Refunded: refunded}, fmt.Errorf("перегенерация: %w", err)
	}
	return GenerateOutcome{Draft: draft, Charged: charged}, nil
}

func (s *Service) release(ctx context.Context, key string) {
	if err := s.locks.Release(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Str("key", key).Msg("блокировка не снята, истечёт по TTL")
	}
}
