package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/idem"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/readiness"
)

// Ledger — операции баланса, нужные конвейеру.
type Ledger interface {
	Charge(ctx context.Context, userID, amount int64, reason string) (int64, error)
	Refund(ctx context.Context, userID, amount int64, reason string) (int64, error)
}

// Options настраивают конвейер.
type Options struct {
	FreeRegens int
	ActionTTL  time.Duration
}

// Service реализует пошаговый конвейер создания контента: проект →
// подключение → рубрика → готовность → подтверждение → генерация → превью →
// публикация → результат.
type Service struct {
	projects   domain.ProjectRepo
	conns      domain.ConnectionRepo
	categories domain.CategoryRepo
	drafts     domain.DraftRepo
	ledger     Ledger
	exec       domain.Generator
	locks      *idem.Locker
	previews   domain.PreviewStore
	publishers map[domain.PlatformType]domain.Publisher
	store      *Store
	opts       Options
	log        zerolog.Logger
	newID      func() string
	now        func() time.Time
}

// NewService создаёт конвейер.
func NewService(
	projects domain.ProjectRepo,
	conns domain.ConnectionRepo,
	categories domain.CategoryRepo,
	drafts domain.DraftRepo,
	ledger Ledger,
	exec domain.Generator,
	locks *idem.Locker,
	previews domain.PreviewStore,
	publishers map[domain.PlatformType]domain.Publisher,
	store *Store,
	opts Options,
	logger zerolog.Logger,
	newID func() string,
) *Service {
	if opts.FreeRegens <= 0 {
		opts.FreeRegens = 2
	}
	if opts.ActionTTL <= 0 {
		opts.ActionTTL = time.Minute
	}
	return &Service{
		projects:   projects,
		conns:      conns,
		categories: categories,
		drafts:     drafts,
		ledger:     ledger,
		exec:       exec,
		locks:      locks,
		previews:   previews,
		publishers: publishers,
		store:      store,
		opts:       opts,
		log:        logger,
		newID:      newID,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// View описывает, что показать пользователю на текущем шаге.
type View struct {
	Step          Step
	Pipeline      domain.PipelineType
	Projects      []domain.Project
	Connections   []domain.Connection
	Categories    []domain.Category
	Report        *readiness.Report
	Draft         *domain.Draft
	EstimatedCost int64
}

// Start запускает новый конвейер. Существующий чекпоинт перезаписывается.
func (s *Service) Start(ctx context.Context, userID int64, pipeline domain.PipelineType) (View, error) {
	sess := Session{UserID: userID, Pipeline: pipeline, Step: StepSelectProject}
	return s.advance(ctx, sess)
}

// Resume восстанавливает конвейер: сперва из живой сессии, иначе из
// durable-чекпоинта.
func (s *Service) Resume(ctx context.Context, userID int64) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err == nil {
		sess.ExitRequested = false
		return s.advance(ctx, sess)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return View{}, err
	}
	cp, err := s.store.LoadCheckpoint(ctx, userID)
	if err != nil {
		return View{}, err
	}
	sess = Session{
		UserID:       cp.UserID,
		Pipeline:     cp.Pipeline,
		Step:         Step(cp.Step),
		ProjectID:    cp.ProjectID,
		ConnectionID: cp.ConnectionID,
		CategoryID:   cp.CategoryID,
		DraftID:      cp.DraftID,
	}
	// Чекпоинт не хранит оценку стоимости, поэтому шаги вокруг оплаты
	// проходят проверку готовности заново; publishing откатывается к превью.
	switch sess.Step {
	case StepReadiness, StepConfirmCost, StepGenerating:
		sess.Step = StepReadiness
	case StepPublishing:
		sess.Step = StepPreview
	}
	return s.advance(ctx, sess)
}

// ChooseProject фиксирует выбор проекта и продвигает конвейер.
func (s *Service) ChooseProject(ctx context.Context, userID, projectID int64) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return View{}, err
	}
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return View{}, err
	}
	if project.UserID != userID {
		return View{}, fmt.Errorf("проект %d: %w", projectID, domain.ErrNotFound)
	}
	sess.ProjectID = projectID
	sess.Step = StepSelectConnection
	return s.advance(ctx, sess)
}

// CreateProject создаёт проект и продвигает конвейер.
func (s *Service) CreateProject(ctx context.Context, userID int64, name, siteURL string) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return View{}, err
	}
	project, err := s.projects.Create(ctx, domain.Project{UserID: userID, Name: name, SiteURL: siteURL})
	if err != nil {
		return View{}, fmt.Errorf("создание проекта: %w", err)
	}
	sess.ProjectID = project.ID
	sess.Step = StepSelectConnection
	return s.advance(ctx, sess)
}

// ChooseConnection фиксирует выбор подключения.
func (s *Service) ChooseConnection(ctx context.Context, userID, connectionID int64) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return View{}, err
	}
	conn, err := s.conns.Get(ctx, connectionID)
	if err != nil {
		return View{}, err
	}
	if conn.ProjectID != sess.ProjectID {
		return View{}, fmt.Errorf("подключение %d: %w", connectionID, domain.ErrNotFound)
	}
	sess.ConnectionID = connectionID
	sess.Step = StepSelectCategory
	return s.advance(ctx, sess)
}

// CreateConnection сохраняет новое подключение площадки.
func (s *Service) CreateConnection(ctx context.Context, userID int64, conn domain.Connection) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return View{}, err
	}
	conn.ProjectID = sess.ProjectID
	created, err := s.conns.Create(ctx, conn)
	if err != nil {
		return View{}, fmt.Errorf("создание подключения: %w", err)
	}
	sess.ConnectionID = created.ID
	sess.Step = StepSelectCategory
	return s.advance(ctx, sess)
}

// ChooseCategory фиксирует выбор рубрики.
func (s *Service) ChooseCategory(ctx context.Context, userID, categoryID int64) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return View{}, err
	}
	category, err := s.categories.Get(ctx, categoryID)
	if err != nil {
		return View{}, err
	}
	if category.ProjectID != sess.ProjectID {
		return View{}, fmt.Errorf("рубрика %d: %w", categoryID, domain.ErrNotFound)
	}
	sess.CategoryID = categoryID
	sess.Step = StepReadiness
	return s.advance(ctx, sess)
}

// CreateCategory создаёт рубрику и продвигает конвейер.
func (s *Service) CreateCategory(ctx context.Context, userID int64, name string, keywords []string) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return View{}, err
	}
	category, err := s.categories.Create(ctx, domain.Category{ProjectID: sess.ProjectID, Name: name, Keywords: keywords})
	if err != nil {
		return View{}, fmt.Errorf("создание рубрики: %w", err)
	}
	sess.CategoryID = category.ID
	sess.Step = StepReadiness
	return s.advance(ctx, sess)
}

// SetKeywords обновляет ключевые фразы рубрики из под-потока готовности.
func (s *Service) SetKeywords(ctx context.Context, userID int64, keywords []string) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.categories.UpdateKeywords(ctx, sess.CategoryID, keywords); err != nil {
		return View{}, fmt.Errorf("сохранение ключевых фраз: %w", err)
	}
	sess.Step = StepReadiness
	return s.advance(ctx, sess)
}

// SetDescription обновляет описание рубрики из под-потока готовности.
func (s *Service) SetDescription(ctx context.Context, userID int64, description string) (View, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.categories.UpdateDescription(ctx, sess.CategoryID, description); err != nil {
		return View{}, fmt.Errorf("сохранение описания: %w", err)
	}
	sess.Step = StepReadiness
	return s.advance(ctx, sess)
}

// RequestExit обрабатывает попытку выйти из конвейера. На дорогих шагах
// возвращает true — боту нужно спросить подтверждение; на остальных сразу
// убирает и сессию, и чекпоинт.
func (s *Service) RequestExit(ctx context.Context, userID int64) (bool, error) {
	sess, err := s.store.LoadSession(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if IsProtected(sess.Step) {
		sess.ExitRequested = true
		if err := s.store.SaveSession(ctx, sess); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, s.store.Clear(ctx, userID)
}

// ConfirmExit завершает подтверждённый выход: сессия очищается, чекпоинт
// намеренно сохраняется — пользователь может вернуться через /resume.
func (s *Service) ConfirmExit(ctx context.Context, userID int64) error {
	return s.store.ClearSession(ctx, userID)
}

// advance выполняет автопереходы: шаг с ровно одним допустимым выбором
// пропускает экран выбора.
func (s *Service) advance(ctx context.Context, sess Session) (View, error) {
	for {
		switch sess.Step {
		case StepSelectProject:
			projects, err := s.projects.ListByUser(ctx, sess.UserID)
			if err != nil {
				return View{}, err
			}
			switch len(projects) {
			case 0:
				sess.Step = StepCreateProject
				return s.viewFor(ctx, sess)
			case 1:
				sess.ProjectID = projects[0].ID
				sess.Step = StepSelectConnection
			default:
				return s.save(ctx, sess, View{Step: sess.Step, Pipeline: sess.Pipeline, Projects: projects})
			}
		case StepSelectConnection:
			conns, err := s.conns.ListByProject(ctx, sess.ProjectID)
			if err != nil {
				return View{}, err
			}
			switch len(conns) {
			case 0:
				sess.Step = StepCreateConnection
				return s.viewFor(ctx, sess)
			case 1:
				sess.ConnectionID = conns[0].ID
				sess.Step = StepSelectCategory
			default:
				return s.save(ctx, sess, View{Step: sess.Step, Pipeline: sess.Pipeline, Connections: conns})
			}
		case StepSelectCategory:
			categories, err := s.categories.ListByProject(ctx, sess.ProjectID)
			if err != nil {
				return View{}, err
			}
			switch len(categories) {
			case 0:
				sess.Step = StepCreateCategory
				return s.viewFor(ctx, sess)
			case 1:
				sess.CategoryID = categories[0].ID
				sess.Step = StepReadiness
			default:
				return s.save(ctx, sess, View{Step: sess.Step, Pipeline: sess.Pipeline, Categories: categories})
			}
		case StepReadiness:
			category, err := s.categories.Get(ctx, sess.CategoryID)
			if err != nil {
				return View{}, err
			}
			report := readiness.Evaluate(category, sess.Pipeline, category.PublishedCount)
			sess.EstimatedCost = report.EstimatedCost
			sess.NeedDescription = category.Description == ""
			if sess.Pipeline == domain.PipelineArticle {
				sess.ImagesRequested = category.ImageCount
			} else {
				sess.ImagesRequested = 0
			}
			if report.HasBlockers {
				return s.save(ctx, sess, View{Step: StepReadiness, Pipeline: sess.Pipeline, Report: &report})
			}
			sess.Step = StepConfirmCost
			return s.save(ctx, sess, View{Step: StepConfirmCost, Pipeline: sess.Pipeline, Report: &report, EstimatedCost: report.EstimatedCost})
		default:
			return s.viewFor(ctx, sess)
		}
	}
}

// viewFor сохраняет сессию и строит представление текущего шага без
// дополнительных переходов.
func (s *Service) viewFor(ctx context.Context, sess Session) (View, error) {
	view := View{Step: sess.Step, Pipeline: sess.Pipeline, EstimatedCost: sess.EstimatedCost}
	if sess.DraftID != "" && (sess.Step == StepPreview || sess.Step == StepResult) {
		draft, err := s.drafts.Get(ctx, sess.DraftID)
		if err == nil {
			view.Draft = &draft
		}
	}
	return s.save(ctx, sess, view)
}

func (s *Service) save(ctx context.Context, sess Session, view View) (View, error) {
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return View{}, err
	}
	return view, nil
}
