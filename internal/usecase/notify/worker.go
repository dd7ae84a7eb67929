package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Worker доставляет сообщения из очереди уведомлений. Сбой отправки
// подтверждается как неуспех, и очередь решает судьбу сообщения сама.
type Worker struct {
	queue    domain.NotifyQueue
	notifier domain.Notifier
	log      zerolog.Logger
}

// NewWorker создаёт воркер доставки.
func NewWorker(queue domain.NotifyQueue, notifier domain.Notifier, logger zerolog.Logger) *Worker {
	return &Worker{queue: queue, notifier: notifier, log: logger}
}

// Run крутит цикл доставки до отмены контекста.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.log.Error().Err(err).Msg("доставка: очередь недоступна")
			continue
		}
		sendErr := w.notifier.Send(ctx, job.UserID, job.Text)
		if sendErr != nil {
			metrics.NotifySendErrors.Inc()
			w.log.Warn().Err(sendErr).Int64("user_id", job.UserID).Str("kind", string(job.Kind)).
				Msg("доставка: сообщение не отправлено")
		}
		if err := ack(sendErr == nil); err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("доставка: подтверждение не прошло")
		}
	}
}
