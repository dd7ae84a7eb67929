package domain

import (
	"context"
	"time"
)

// UserRepo управляет пользователями.
type UserRepo interface {
	// EnsureUser создаёт пользователя при первом контакте. ReferrerID
	// записывается один раз и никогда не перезаписывается.
	EnsureUser(ctx context.Context, id int64, referrerID *int64) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	TouchActivity(ctx context.Context, id int64) error
	ListLowBalance(ctx context.Context) ([]User, error)
	ListWeeklyStats(ctx context.Context) ([]User, error)
	ListInactiveSince(ctx context.Context, cutoff time.Time) ([]User, error)
}

// LedgerRepo — низкоуровневые операции над балансом. Само поле balance
// меняется только отсюда; вызывающий код обязан идти через usecase/ledger.
type LedgerRepo interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	// CallChargeProc вызывает атомарную процедуру charge_balance.
	CallChargeProc(ctx context.Context, userID, amount int64) (int64, error)
	// CallCreditProc вызывает атомарную процедуру credit_balance.
	CallCreditProc(ctx context.Context, userID, amount int64) (int64, error)
	// UpdateBalanceCAS выполняет условную запись: баланс меняется, только если
	// он всё ещё равен observed. Возвращает false при промахе.
	UpdateBalanceCAS(ctx context.Context, userID, observed, next int64) (bool, error)
	// HasBalanceProcs проверяет доступность хранимых процедур.
	HasBalanceProcs(ctx context.Context) (bool, error)
	// AppendEntry дописывает строку журнала. Ошибки журнала не должны
	// откатывать уже выполненную операцию над балансом.
	AppendEntry(ctx context.Context, entry LedgerEntry) error
	DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ProjectRepo управляет проектами.
type ProjectRepo interface {
	Create(ctx context.Context, project Project) (Project, error)
	Get(ctx context.Context, id int64) (Project, error)
	ListByUser(ctx context.Context, userID int64) ([]Project, error)
}

// ConnectionRepo управляет подключениями к площадкам.
type ConnectionRepo interface {
	Create(ctx context.Context, conn Connection) (Connection, error)
	Get(ctx context.Context, id int64) (Connection, error)
	ListByProject(ctx context.Context, projectID int64) ([]Connection, error)
}

// CategoryRepo управляет рубриками.
type CategoryRepo interface {
	Create(ctx context.Context, category Category) (Category, error)
	Get(ctx context.Context, id int64) (Category, error)
	ListByProject(ctx context.Context, projectID int64) ([]Category, error)
	UpdateKeywords(ctx context.Context, id int64, keywords []string) error
	UpdateDescription(ctx context.Context, id int64, description string) error
	IncrementPublished(ctx context.Context, id int64) error
}

// DraftRepo управляет черновиками.
type DraftRepo interface {
	Create(ctx context.Context, draft Draft) error
	Get(ctx context.Context, id string) (Draft, error)
	UpdateContent(ctx context.Context, id, title, body string, imagesProduced int, tokensCharged int64) error
	// IncrementRegen увеличивает счётчик регенераций и возвращает новое
	// значение. Счётчик — единственный источник истины о режиме оплаты.
	IncrementRegen(ctx context.Context, id string) (int, error)
	// TransitionStatus выполняет CAS-переход статуса. Возвращает false, если
	// статус уже не from.
	TransitionStatus(ctx context.Context, id string, from, to DraftStatus) (bool, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Draft, error)
}

// KV описывает key-value хранилище с TTL.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX задаёт значение, только если ключ отсутствует.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// Notifier отправляет пользователю сообщение. Сбой доставки не фатален.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// GenerationRequest описывает входные данные генерации контента.
type GenerationRequest struct {
	Pipeline        PipelineType
	Category        Category
	Keyword         string
	ImagesRequested int
	WithDescription bool
}

// Generator — бэкенд генерации контента. Вызов долгий и тарифицируемый.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GeneratedContent, error)
}

// Publisher публикует черновик на внешнюю площадку и возвращает URL.
type Publisher interface {
	Publish(ctx context.Context, conn Connection, draft Draft) (string, error)
}

// PreviewStore управляет внешне размещёнными превью черновиков.
type PreviewStore interface {
	DeletePreview(ctx context.Context, draft Draft) error
}

// PaymentCharge описывает автосписание по сохранённому способу оплаты.
type PaymentCharge struct {
	UserID          int64
	PaymentMethodID string
	AmountMinor     int64
	Currency        string
	Description     string
	IdempotenceKey  string
}

// PaymentResult — результат автосписания.
type PaymentResult struct {
	PaymentID string
	Status    string
}

// PaymentProvider выполняет автосписание у платёжного провайдера.
type PaymentProvider interface {
	ChargeSaved(ctx context.Context, charge PaymentCharge) (PaymentResult, error)
}
