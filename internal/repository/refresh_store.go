package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dareto-Dream/robotics.backend/internal/observability"
)

var (
	ErrNoSession     = errors.New("no refresh session")
	ErrReuseDetected = errors.New("refresh token reuse detected")
)

// RefreshStore holds at most one valid refresh token per user. It is the
// sole source of truth for refresh validity: a signed, unexpired token that
// no longer matches the stored value is dead.
type RefreshStore interface {
	Set(ctx context.Context, userID, token string, ttl time.Duration) error
	Get(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
	Rotate(ctx context.Context, userID, presented, next string, ttl time.Duration) error
}

// rotateScript makes check-and-replace a single atomic step so two racing
// refresh calls for the same user cannot both win the rotation. A mismatch
// deletes the session outright: replay of a stale token burns the
// legitimate one too, forcing re-authentication.
var rotateScript = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
  return -1
end
if stored ~= ARGV[1] then
  redis.call('DEL', KEYS[1])
  return -2
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type RedisRefreshStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRefreshStore(client redis.UniversalClient, prefix string) *RedisRefreshStore {
	if prefix == "" {
		prefix = "refresh"
	}
	return &RedisRefreshStore{client: client, prefix: prefix}
}

func (s *RedisRefreshStore) key(userID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, userID)
}

func (s *RedisRefreshStore) Set(ctx context.Context, userID, token string, ttl time.Duration) error {
	err := s.client.Set(ctx, s.key(userID), token, ttl).Err()
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_session", "set", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_session", "set", "success")
	return nil
}

func (s *RedisRefreshStore) Get(ctx context.Context, userID string) (string, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		observability.RecordRepositoryOperation(ctx, "refresh_session", "get", "not_found")
		return "", ErrNoSession
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_session", "get", "error")
		return "", err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_session", "get", "success")
	return val, nil
}

func (s *RedisRefreshStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_session", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_session", "delete", "success")
	return nil
}

// Rotate replaces the stored token with next only when the stored token
// equals presented. Returns ErrNoSession when there is nothing stored and
// ErrReuseDetected (after revoking the session) on mismatch.
func (s *RedisRefreshStore) Rotate(ctx context.Context, userID, presented, next string, ttl time.Duration) error {
	res, err := rotateScript.Run(ctx, s.client,
		[]string{s.key(userID)},
		presented, next, ttl.Milliseconds(),
	).Int()
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_session", "rotate", "error")
		return err
	}
	switch res {
	case 1:
		observability.RecordRepositoryOperation(ctx, "refresh_session", "rotate", "success")
		return nil
	case -1:
		observability.RecordRepositoryOperation(ctx, "refresh_session", "rotate", "not_found")
		return ErrNoSession
	case -2:
		observability.RecordRepositoryOperation(ctx, "refresh_session", "rotate", "reuse_detected")
		return ErrReuseDetected
	default:
		observability.RecordRepositoryOperation(ctx, "refresh_session", "rotate", "error")
		return fmt.Errorf("unexpected rotate script result %d", res)
	}
}
