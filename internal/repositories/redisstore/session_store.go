package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/altius-academy/activity-service/internal/cache"
	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
)

// SessionStore snapshots live sessions in redis
type SessionStore struct {
	cache *cache.CacheHelper
	ttl   time.Duration
}

func NewSessionStore(redisClient *redis.Client, ttl time.Duration) repositories.SessionRepository {
	return newSessionStore(cache.NewCacheManager(redisClient).Session, ttl)
}

func newSessionStore(helper *cache.CacheHelper, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = cache.SessionCacheConfig.TTL
	}
	return &SessionStore{cache: helper, ttl: ttl}
}

func stateKey(id uuid.UUID) string {
	return "state:" + id.String()
}

func activeKey(studentID string, taskID uint) string {
	return fmt.Sprintf("active:%s:%d", studentID, taskID)
}

func (s *SessionStore) Save(ctx context.Context, state *models.SessionState) error {
	if err := s.cache.Set(ctx, stateKey(state.ID), state, s.ttl); err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.ID, err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	var state models.SessionState
	if err := s.cache.Get(ctx, stateKey(id), &state); err != nil {
		if errors.Is(err, cache.ErrCacheNotFound) || errors.Is(err, cache.ErrCacheNotAvailable) {
			return nil, fmt.Errorf("session %s: %w", id, repositories.ErrNotFound)
		}
		return nil, err
	}
	return &state, nil
}

func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.cache.Delete(ctx, stateKey(id))
}

func (s *SessionStore) ClaimActive(ctx context.Context, studentID string, taskID uint, id uuid.UUID) (uuid.UUID, bool, error) {
	key := activeKey(studentID, taskID)

	ok, err := s.cache.SetIfAbsent(ctx, key, id.String(), s.ttl)
	if err != nil {
		return uuid.Nil, false, err
	}
	if ok {
		return id, true, nil
	}

	var holder string
	if err := s.cache.Get(ctx, key, &holder); err != nil {
		if errors.Is(err, cache.ErrCacheNotFound) {
			// claim expired between the two calls
			return s.ClaimActive(ctx, studentID, taskID, id)
		}
		return uuid.Nil, false, err
	}

	existing, err := uuid.Parse(holder)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt session claim for %s: %w", key, err)
	}
	return existing, existing == id, nil
}

func (s *SessionStore) ReleaseActive(ctx context.Context, studentID string, taskID uint) error {
	return s.cache.Delete(ctx, activeKey(studentID, taskID))
}
