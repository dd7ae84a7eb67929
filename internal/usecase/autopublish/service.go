// Package autopublish выполняет публикацию по расписанию, запускаемую
// вебхуком. Итог каждой попытки — domain.PublishOutcome; он не персистится
// и потребляется обработчиком вебхука.
package autopublish

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/readiness"
)

// Причины итогов автопубликации.
const (
	ReasonNotReady      = "category_not_ready"
	ReasonInsufficient  = "insufficient_balance"
	ReasonGeneration    = "generation_failed"
	ReasonPublish       = "publish_failed"
	ReasonUnknownTarget = "unknown_platform"
	ReasonMissingEntity = "missing_entity"
)

// Ledger — операции баланса, нужные автопубликации.
type Ledger interface {
	Charge(ctx context.Context, userID, amount int64, reason string) (int64, error)
	Refund(ctx context.Context, userID, amount int64, reason string) (int64, error)
}

// Request — распакованное тело вебхука /publish.
type Request struct {
	ScheduleID   int64
	CategoryID   int64
	ConnectionID int64
	Platform     domain.PlatformType
	UserID       int64
	ProjectID    int64
}

// Service публикует контент рубрики без участия пользователя.
type Service struct {
	categories domain.CategoryRepo
	conns      domain.ConnectionRepo
	drafts     domain.DraftRepo
	ledger     Ledger
	exec       domain.Generator
	publishers map[domain.PlatformType]domain.Publisher
	log        zerolog.Logger
	newID      func() string
}

// NewService создаёт сервис автопубликации.
func NewService(
	categories domain.CategoryRepo,
	conns domain.ConnectionRepo,
	drafts domain.DraftRepo,
	ledger Ledger,
	exec domain.Generator,
	publishers map[domain.PlatformType]domain.Publisher,
	logger zerolog.Logger,
	newID func() string,
) *Service {
	return &Service{
		categories: categories,
		conns:      conns,
		drafts:     drafts,
		ledger:     ledger,
		exec:       exec,
		publishers: publishers,
		log:        logger,
		newID:      newID,
	}
}

// Run выполняет одну автопубликацию. Ошибка возвращается только для
// ретраябельных состояний исполнителя (занят, остановка); всё остальное
// укладывается в PublishOutcome.
func (s *Service) Run(ctx context.Context, req Request) (domain.PublishOutcome, error) {
	pipeline := pipelineFor(req.Platform)
	outcome := domain.PublishOutcome{UserID: req.UserID}

	publisher, ok := s.publishers[req.Platform]
	if !ok {
		outcome.Status = domain.OutcomeSkipped
		outcome.Reason = ReasonUnknownTarget
		return outcome, nil
	}
	category, err := s.categories.Get(ctx, req.CategoryID)
	if err != nil {
		return s.missing(outcome, "рубрика", req.CategoryID, err)
	}
	conn, err := s.conns.Get(ctx, req.ConnectionID)
	if err != nil {
		return s.missing(outcome, "подключение", req.ConnectionID, err)
	}

	report := readiness.Evaluate(category, pipeline, category.PublishedCount)
	if report.HasBlockers {
		outcome.Status = domain.OutcomeSkipped
		outcome.Reason = ReasonNotReady
		return outcome, nil
	}

	imagesRequested := 0
	if pipeline == domain.PipelineArticle {
		imagesRequested = category.ImageCount
	}
	cost := report.EstimatedCost
	reason := fmt.Sprintf("autopublish:schedule:%d", req.ScheduleID)
	if _, err := s.ledger.Charge(ctx, req.UserID, cost, reason); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			outcome.Status = domain.OutcomeError
			outcome.Reason = ReasonInsufficient
			outcome.Notify = true
			return outcome, nil
		}
		return outcome, fmt.Errorf("списание токенов: %w", err)
	}

	content, err := s.exec.Generate(ctx, domain.GenerationRequest{
		Pipeline:        pipeline,
		Category:        category,
		ImagesRequested: imagesRequested,
		WithDescription: category.Description == "",
	})
	if err != nil {
		s.refund(ctx, req.UserID, cost, reason+":failure")
		// Занятость и остановка поднимаются до обработчика: это сигналы 503,
		// планировщик должен повторить доставку.
		if errors.Is(err, domain.ErrBusy) || errors.Is(err, domain.ErrShuttingDown) {
			return outcome, err
		}
		outcome.Status = domain.OutcomeError
		outcome.Reason = ReasonGeneration
		outcome.Notify = true
		return outcome, nil
	}

	charged := cost
	if imagesRequested > 0 && content.ImagesProduced < imagesRequested {
		shortfall := int64(imagesRequested-content.ImagesProduced) * readiness.PricePerImage
		s.refund(ctx, req.UserID, shortfall, reason+":image_shortfall")
		charged -= shortfall
	}

	connID := conn.ID
	draft := domain.Draft{
		ID:              s.newID(),
		UserID:          req.UserID,
		ProjectID:       req.ProjectID,
		CategoryID:      req.CategoryID,
		ConnectionID:    &connID,
		Pipeline:        pipeline,
		Title:           content.Title,
		Body:            content.Body,
		ImagesRequested: imagesRequested,
		ImagesProduced:  content.ImagesProduced,
		TokensCharged:   charged,
		Status:          domain.DraftStatusPublished,
	}
	if err := s.drafts.Create(ctx, draft); err != nil {
		s.log.Error().Err(err).Str("draft_id", draft.ID).Msg("автопубликация: черновик не сохранён")
	}

	if _, err := publisher.Publish(ctx, conn, draft); err != nil {
		s.refund(ctx, req.UserID, charged, reason+":publish_failure")
		if reverted, rerr := s.drafts.TransitionStatus(ctx, draft.ID, domain.DraftStatusPublished, domain.DraftStatusCancelled); rerr != nil || !reverted {
			s.log.Error().Err(rerr).Str("draft_id", draft.ID).Msg("автопубликация: откат статуса не прошёл")
		}
		metrics.PublishResults.WithLabelValues(string(req.Platform), "error").Inc()
		outcome.Status = domain.OutcomeError
		outcome.Reason = ReasonPublish
		outcome.Notify = true
		return outcome, nil
	}
	metrics.PublishResults.WithLabelValues(string(req.Platform), "ok").Inc()

	if err := s.categories.IncrementPublished(ctx, req.CategoryID); err != nil {
		s.log.Error().Err(err).Int64("category_id", req.CategoryID).Msg("автопубликация: счётчик рубрики не увеличен")
	}
	outcome.Status = domain.OutcomeOK
	outcome.SpentTokens = charged
	outcome.Notify = true
	return outcome, nil
}

func (s *Service) missing(outcome domain.PublishOutcome, what string, id int64, err error) (domain.PublishOutcome, error) {
	if !errors.Is(err, domain.ErrNotFound) {
		return outcome, fmt.Errorf("%s %d: %w", what, id, err)
	}
	outcome.Status = domain.OutcomeSkipped
	outcome.Reason = ReasonMissingEntity
	return outcome, nil
}

func (s *Service) refund(ctx context.Context, userID, amount int64, reason string) {
	if amount <= 0 {
		return
	}
	if _, err := s.ledger.Refund(ctx, userID, amount, reason); err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Int64("amount", amount).
			Msg("автопубликация: возврат не прошёл")
	}
}

// pipelineFor выбирает конвейер по площадке: wordpress получает статьи,
// остальные площадки — короткие посты.
func pipelineFor(platform domain.PlatformType) domain.PipelineType {
	if platform == domain.PlatformWordPress {
		return domain.PipelineArticle
	}
	return domain.PipelineSocial
}
