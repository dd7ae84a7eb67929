package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

// RedisNotifyQueue реализует очередь уведомлений на базе Redis lists.
type RedisNotifyQueue struct {
	client *redis.Client
	key    string
}

// NewRedisNotifyQueue создаёт очередь по указанному ключу.
func NewRedisNotifyQueue(client *redis.Client, key string) *RedisNotifyQueue {
	return &RedisNotifyQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisNotifyQueue) Enqueue(ctx context.Context, job domain.NotifyJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Redis list не поддерживает
// подтверждения, поэтому при success=false задача возвращается в хвост.
func (q *RedisNotifyQueue) Receive(ctx context.Context) (domain.NotifyJob, domain.NotifyAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.NotifyJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.NotifyJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.NotifyJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.NotifyJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := []byte(res[1])
		var job domain.NotifyJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return domain.NotifyJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}

var _ domain.NotifyQueue = (*RedisNotifyQueue)(nil)
