package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

// Store — двухуровневое хранилище состояния конвейера: эфемерная сессия с
// коротким TTL и durable-чекпоинт с суточным TTL. Чекпоинт пишется на каждом
// переходе и переживает рестарт процесса.
type Store struct {
	kv            domain.KV
	sessionTTL    time.Duration
	checkpointTTL time.Duration
}

// NewStore создаёт хранилище.
func NewStore(kv domain.KV, sessionTTL, checkpointTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	if checkpointTTL <= 0 {
		checkpointTTL = 24 * time.Hour
	}
	return &Store{kv: kv, sessionTTL: sessionTTL, checkpointTTL: checkpointTTL}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("pipeline:session:%d", userID)
}

func checkpointKey(userID int64) string {
	return fmt.Sprintf("pipeline:checkpoint:%d", userID)
}

// SaveSession сохраняет сессию и одновременно обновляет чекпоинт.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.kv.Set(ctx, sessionKey(sess.UserID), payload, s.sessionTTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	cp := sess.Checkpoint()
	cp.SavedAt = time.Now().UTC()
	cpPayload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.kv.Set(ctx, checkpointKey(sess.UserID), cpPayload, s.checkpointTTL); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadSession возвращает сессию пользователя или domain.ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, userID int64) (Session, error) {
	payload, err := s.kv.Get(ctx, sessionKey(userID))
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// ClearSession удаляет только эфемерную сессию; чекпоинт остаётся —
// пользователь может возобновить конвейер в пределах TTL чекпоинта.
func (s *Store) ClearSession(ctx context.Context, userID int64) error {
	return s.kv.Del(ctx, sessionKey(userID))
}

// LoadCheckpoint возвращает чекпоинт пользователя или domain.ErrNotFound.
func (s *Store) LoadCheckpoint(ctx context.Context, userID int64) (domain.PipelineCheckpoint, error) {
	payload, err := s.kv.Get(ctx, checkpointKey(userID))
	if err != nil {
		return domain.PipelineCheckpoint{}, err
	}
	var cp domain.PipelineCheckpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return domain.PipelineCheckpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

// Clear удаляет и сессию, и чекпоинт. Вызывается на терминальных шагах.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := s.kv.Del(ctx, sessionKey(userID)); err != nil {
		return err
	}
	return s.kv.Del(ctx, checkpointKey(userID))
}
