package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// RedisKV реализует domain.KV через Redis.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV создаёт хранилище.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Get возвращает значение. Отсутствующий ключ — domain.ErrNotFound.
func (c *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := c.client.Get(ctx, key).Bytes()
	metrics.ObserveNetworkRequest("redis", "get", "kv", start, err)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Set задаёт значение с TTL.
func (c *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set", "kv", start, err)
	return err
}

// SetNX задаёт значение, только если ключ отсутствует.
func (c *RedisKV) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "kv", start, err)
	return ok, err
}

// Del удаляет ключ.
func (c *RedisKV) Del(ctx context.Context, key string) error {
	start := time.Now()
	err := c.client.Del(ctx, key).Err()
	metrics.ObserveNetworkRequest("redis", "del", "kv", start, err)
	return err
}

var _ domain.KV = (*RedisKV)(nil)
