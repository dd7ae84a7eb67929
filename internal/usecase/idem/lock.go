package idem

import (
	"context"
	"fmt"
	"time"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

// Locker выдаёт claim-once замки поверх KV-хранилища. Любой триггер, который
// может быть доставлен повторно, обязан пройти через TryClaim.
type Locker struct {
	kv domain.KV
}

// NewLocker создаёт замок.
func NewLocker(kv domain.KV) *Locker {
	return &Locker{kv: kv}
}

// TryClaim атомарно заявляет ключ. true — вызывающий первый, можно работать;
// false — дубликат, вызывающий обязан ответить как при успехе.
func (l *Locker) TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.kv.SetNX(ctx, key, []byte("1"), ttl)
}

// Release досрочно снимает замок. Применяется только к коротким замкам
// действий; замки вебхуков по message id никогда не снимаются досрочно —
// они должны дожить до TTL и поглотить повторную доставку.
func (l *Locker) Release(ctx context.Context, key string) error {
	return l.kv.Del(ctx, key)
}

// ActionKey строит ключ короткого замка пользовательского действия.
func ActionKey(action, subject string) string {
	return fmt.Sprintf("lock:action:%s:%s", action, subject)
}

// WebhookKey строит ключ замка доставки вебхука.
func WebhookKey(endpoint, messageID string) string {
	return fmt.Sprintf("lock:webhook:%s:%s", endpoint, messageID)
}

// RenewalKey строит ключ окна продления подписки: одна попытка на
// пользователя в час.
func RenewalKey(userID int64, now time.Time) string {
	return fmt.Sprintf("lock:renewal:%d:%s", userID, now.UTC().Format("2006010215"))
}
