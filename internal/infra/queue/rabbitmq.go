package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// AMQPNotifyQueue реализует очередь уведомлений поверх RabbitMQ.
type AMQPNotifyQueue struct {
	url   string
	queue string

	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// NewAMQPNotifyQueue создаёт очередь. Подключение устанавливается лениво и
// восстанавливается после обрыва.
func NewAMQPNotifyQueue(url, queue string) (*AMQPNotifyQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	return &AMQPNotifyQueue{url: url, queue: queue}, nil
}

func (q *AMQPNotifyQueue) ensureChannel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel != nil && !q.channel.IsClosed() {
		return q.channel, nil
	}
	if q.conn == nil || q.conn.IsClosed() {
		conn, err := amqp.Dial(q.url)
		if err != nil {
			return nil, fmt.Errorf("dial amqp: %w", err)
		}
		q.conn = conn
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	q.channel = ch
	q.deliveries = nil
	return ch, nil
}

// Enqueue публикует задачу в очередь.
func (q *AMQPNotifyQueue) Enqueue(ctx context.Context, job domain.NotifyJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ch, err := q.ensureChannel()
	if err != nil {
		return err
	}
	start := time.Now()
	err = ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *AMQPNotifyQueue) Receive(ctx context.Context) (domain.NotifyJob, domain.NotifyAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.NotifyJob{}, nil, err
		}
		deliveries, err := q.ensureDeliveries()
		if err != nil {
			select {
			case <-ctx.Done():
				return domain.NotifyJob{}, nil, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return domain.NotifyJob{}, nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				q.resetDeliveries()
				continue
			}
			var job domain.NotifyJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				_ = d.Nack(false, false)
				return domain.NotifyJob{}, nil, fmt.Errorf("decode job: %w", err)
			}
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				return d.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

func (q *AMQPNotifyQueue) ensureDeliveries() (<-chan amqp.Delivery, error) {
	ch, err := q.ensureChannel()
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

func (q *AMQPNotifyQueue) resetDeliveries() {
	q.mu.Lock()
	q.deliveries = nil
	q.mu.Unlock()
}

// Close закрывает подключение.
func (q *AMQPNotifyQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel != nil {
		_ = q.channel.Close()
		q.channel = nil
	}
	if q.conn != nil {
		err := q.conn.Close()
		q.conn = nil
		return err
	}
	return nil
}

var _ domain.NotifyQueue = (*AMQPNotifyQueue)(nil)
