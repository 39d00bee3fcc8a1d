package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
)

var _ repository.RateCounter = (*redisRateCounter)(nil)

const rateKeyPrefix = "quill:rate:"

type redisRateCounter struct {
	client *goredis.Client
}

// NewRedisRateCounter creates a fixed-window counter shared by all API instances.
func NewRedisRateCounter(client *goredis.Client) repository.RateCounter {
	return &redisRateCounter{client: client}
}

// Incr increments the counter and starts its window on the first hit.
func (r *redisRateCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := rateKeyPrefix + key
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: incr rate counter: %w", err)
	}
	return incr.Val(), nil
}
