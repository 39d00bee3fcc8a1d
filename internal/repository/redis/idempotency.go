package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
)

var _ repository.IdempotencyStore = (*redisIdempotency)(nil)

const lockKeyPrefix = "quill:lock:"

type redisIdempotency struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store. The TTL
// bounds how long a crashed worker can block redelivery of its job; live
// holders keep the lock with RefreshLock.
func NewRedisIdempotencyStore(client *goredis.Client, ttl time.Duration) repository.IdempotencyStore {
	return &redisIdempotency{client: client, ttl: ttl}
}

// AcquireLock uses Redis SETNX to atomically acquire a processing lock.
func (r *redisIdempotency) AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(jobID), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire lock: %w", err)
	}
	return ok, nil
}

// RefreshLock resets the TTL of an existing lock with SET XX.
func (r *redisIdempotency) RefreshLock(ctx context.Context, jobID uuid.UUID) (bool, error) {
	ok, err := r.client.SetXX(ctx, lockKey(jobID), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: refresh lock: %w", err)
	}
	return ok, nil
}

func (r *redisIdempotency) IsLocked(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := r.client.Exists(ctx, lockKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check lock: %w", err)
	}
	return n == 1, nil
}

// ReleaseLock deletes the lock key.
func (r *redisIdempotency) ReleaseLock(ctx context.Context, jobID uuid.UUID) error {
	if err := r.client.Del(ctx, lockKey(jobID)).Err(); err != nil {
		return fmt.Errorf("redis: release lock: %w", err)
	}
	return nil
}

func lockKey(jobID uuid.UUID) string {
	return lockKeyPrefix + jobID.String()
}
