package pipeline

import "github.com/GVMBT/seo-master-sub004/internal/domain"

// Step — шаг конвейера создания контента.
type Step string

const (
	StepSelectProject    Step = "select_project"
	StepCreateProject    Step = "create_project"
	StepSelectConnection Step = "select_connection"
	StepCreateConnection Step = "create_connection"
	StepSelectCategory   Step = "select_category"
	StepCreateCategory   Step = "create_category"
	StepReadiness        Step = "readiness_check"
	StepConfirmCost      Step = "confirm_cost"
	StepGenerating       Step = "generating"
	StepPreview          Step = "preview"
	StepPublishing       Step = "publishing"
	StepResult           Step = "result"
)

// protectedSteps — шаги, на которых выход из конвейера требует явного
// подтверждения: пользователь уже вложил работу или токены.
var protectedSteps = map[Step]bool{
	StepReadiness:   true,
	StepConfirmCost: true,
	StepGenerating:  true,
	StepPreview:     true,
	StepPublishing:  true,
}

// IsProtected сообщает, нужен ли диалог подтверждения при выходе с шага.
func IsProtected(step Step) bool {
	return protectedSteps[step]
}

// Session — эфемерное рабочее состояние конвейера одного пользователя.
// Живёт в KV с коротким TTL; durable-часть — чекпоинт (domain.PipelineCheckpoint).
type Session struct {
	UserID          int64               `json:"user_id"`
	Pipeline        domain.PipelineType `json:"pipeline"`
	Step            Step                `json:"step"`
	ProjectID       int64               `json:"project_id,omitempty"`
	ConnectionID    int64               `json:"connection_id,omitempty"`
	CategoryID      int64               `json:"category_id,omitempty"`
	DraftID         string              `json:"draft_id,omitempty"`
	EstimatedCost   int64               `json:"estimated_cost,omitempty"`
	ImagesRequested int                 `json:"images_requested,omitempty"`
	NeedDescription bool                `json:"need_description,omitempty"`
	ExitRequested   bool                `json:"exit_requested,omitempty"`
}

// Checkpoint строит durable-указатель из сессии.
func (s Session) Checkpoint() domain.PipelineCheckpoint {
	return domain.PipelineCheckpoint{
		UserID:       s.UserID,
		Pipeline:     s.Pipeline,
		Step:         string(s.Step),
		ProjectID:    s.ProjectID,
		ConnectionID: s.ConnectionID,
		CategoryID:   s.CategoryID,
		DraftID:      s.DraftID,
	}
}
