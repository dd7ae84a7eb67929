package domain

import "time"

// User описывает пользователя Telegram в системе.
type User struct {
	ID                int64
	Balance           int64
	Role              UserRole
	ReferrerID        *int64
	NotifyLowBalance  bool
	NotifyWeeklyStats bool
	LastActiveAt      time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Project группирует контент пользователя по одному бизнесу.
type Project struct {
	ID        int64
	UserID    int64
	Name      string
	SiteURL   string
	CreatedAt time.Time
}

// PlatformType определяет площадку публикации.
type PlatformType string

const (
	PlatformWordPress PlatformType = "wordpress"
	PlatformTelegram  PlatformType = "telegram"
	PlatformVK        PlatformType = "vk"
	PlatformPinterest PlatformType = "pinterest"
)

// Connection хранит привязку проекта к площадке публикации.
type Connection struct {
	ID        int64
	ProjectID int64
	Platform  PlatformType
	SiteURL   string
	Login     string
	// Secret хранит application password или токен площадки.
	Secret    string
	ChannelID int64
	CreatedAt time.Time
}

// Category описывает тематическую рубрику проекта.
type Category struct {
	ID             int64
	ProjectID      int64
	Name           string
	Keywords       []string
	Description    string
	PricesJSON     []byte
	ImageCount     int
	PublishedCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PipelineType различает статейный и социальный конвейер.
type PipelineType string

const (
	PipelineArticle PipelineType = "article"
	PipelineSocial  PipelineType = "social"
)

// DraftStatus — статус черновика. Переходы из draft выполняются только через CAS.
type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusPublished DraftStatus = "published"
	DraftStatusCancelled DraftStatus = "cancelled"
	DraftStatusExpired   DraftStatus = "expired"
)

// Draft — сгенерированный артефакт, ожидающий публикации, отмены или истечения.
type Draft struct {
	ID              string
	UserID          int64
	ProjectID       int64
	CategoryID      int64
	ConnectionID    *int64
	Pipeline        PipelineType
	Title           string
	Body            string
	ImagesRequested int
	ImagesProduced  int
	TokensCharged   int64
	RegenCount      int
	Status          DraftStatus
	PreviewURL      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LedgerOp — тип операции над балансом.
type LedgerOp string

const (
	LedgerOpCharge     LedgerOp = "charge"
	LedgerOpRefund     LedgerOp = "refund"
	LedgerOpCredit     LedgerOp = "credit"
	LedgerOpForceDebit LedgerOp = "force_debit"
)

// LedgerEntry — строка журнала расходов и начислений. Журнал только дописывается.
type LedgerEntry struct {
	ID           int64
	UserID       int64
	Op           LedgerOp
	Amount       int64
	BalanceAfter int64
	Reason       string
	CreatedAt    time.Time
}

// PipelineCheckpoint — durable-указатель для возобновления конвейера.
// На пользователя существует не более одной записи; новый запуск перезаписывает.
type PipelineCheckpoint struct {
	UserID       int64        `json:"user_id"`
	Pipeline     PipelineType `json:"pipeline"`
	Step         string       `json:"step"`
	ProjectID    int64        `json:"project_id,omitempty"`
	ConnectionID int64        `json:"connection_id,omitempty"`
	CategoryID   int64        `json:"category_id,omitempty"`
	DraftID      string       `json:"draft_id,omitempty"`
	SavedAt      time.Time    `json:"saved_at"`
}

// OutcomeStatus — статус результата автопубликации.
type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeError   OutcomeStatus = "error"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// PublishOutcome — результат одного запуска автопубликации. Не персистится.
type PublishOutcome struct {
	Status      OutcomeStatus
	Reason      string
	SpentTokens int64
	Notify      bool
	UserID      int64
}

// GeneratedContent — результат вызова генерации. Картинок может быть
// произведено меньше, чем запрошено.
type GeneratedContent struct {
	Title          string
	Body           string
	ImagesProduced int
}

// CleanupReport — итог ежедневной уборки.
type CleanupReport struct {
	Expired     int   `json:"expired"`
	Refunds     int64 `json:"refunds"`
	LogsDeleted int   `json:"logs_deleted"`
}

// NotifyReport — итог рассылки уведомлений.
type NotifyReport struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}
