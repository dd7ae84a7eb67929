package idem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

// memKV — KV-хранилище в памяти для тестов.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return value, nil
}

func (m *memKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestTryClaimExactlyOnce(t *testing.T) {
	locker := NewLocker(newMemKV())
	key := WebhookKey("publish", "msg-123")

	winners := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := locker.TryClaim(context.Background(), key, time.Hour)
			if err != nil {
				t.Errorf("не ожидали ошибку: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("ровно один вызов должен выиграть, выиграло %d", winners)
	}
}

func TestReleaseAllowsReclaim(t *testing.T) {
	locker := NewLocker(newMemKV())
	key := ActionKey("publish_draft", "d-1")

	ok, err := locker.TryClaim(context.Background(), key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("первый claim должен пройти: ok=%v err=%v", ok, err)
	}
	if err := locker.Release(context.Background(), key); err != nil {
		t.Fatalf("не ожидали ошибку release: %v", err)
	}
	ok, err = locker.TryClaim(context.Background(), key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("после release claim должен пройти: ok=%v err=%v", ok, err)
	}
}

func TestRenewalKeyHourWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC)
	later := now.Add(30 * time.Minute)
	nextHour := now.Add(time.Hour)

	if RenewalKey(9, now) != RenewalKey(9, later) {
		t.Fatal("внутри часа ключ должен совпадать")
	}
	if RenewalKey(9, now) == RenewalKey(9, nextHour) {
		t.Fatal("в следующем часе ключ должен отличаться")
	}
}
