package domain

import (
	"context"
	"time"
)

// NotifyKind описывает тип пакетного уведомления.
type NotifyKind string

// Пакетные рассылки; адресные уведомления (итог публикации, возвраты)
// уходят напрямую через Notifier и в очередь не попадают.
const (
	NotifyLowBalanceKind NotifyKind = "low_balance"
	NotifyWeeklyDigest   NotifyKind = "weekly_digest"
	NotifyReactivation   NotifyKind = "reactivation"
)

// NotifyJob содержит одно сообщение для доставки пользователю.
type NotifyJob struct {
	ID        string     `json:"job_id,omitempty"`
	UserID    int64      `json:"user_id"`
	Kind      NotifyKind `json:"kind"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
}

// NotifyAckFunc подтверждает успешную доставку или запрашивает повтор.
type NotifyAckFunc func(success bool) error

// NotifyQueue описывает очередь уведомлений.
type NotifyQueue interface {
	Enqueue(ctx context.Context, job NotifyJob) error
	Receive(ctx context.Context) (NotifyJob, NotifyAckFunc, error)
}
