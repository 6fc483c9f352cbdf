package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/statusflowhq/statusflow/pkg/models"
)

const DefaultCounterTTL = 24 * time.Hour

// Redis caches counters in per-org hashes so every engine and API instance
// sees the same numbers.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultCounterTTL
	}

	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) RefreshStatusCounts(ctx context.Context, orgID string, entityType models.EntityType, counts map[models.Status]int64) error {
	key := redisCounterKey(orgID, entityType)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)

	if len(counts) > 0 {
		fields := make(map[string]any, len(counts))
		for status, count := range counts {
			fields[string(status)] = count
		}

		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to refresh status counters for %s/%s: %w", orgID, entityType, err)
	}

	return nil
}

func (r *Redis) StatusCounts(ctx context.Context, orgID string, entityType models.EntityType) (map[models.Status]int64, error) {
	fields, err := r.client.HGetAll(ctx, redisCounterKey(orgID, entityType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status counters for %s/%s: %w", orgID, entityType, err)
	}

	counts := make(map[models.Status]int64, len(fields))

	for status, raw := range fields {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed counter value %q for %s/%s: %w", raw, orgID, entityType, err)
		}

		counts[models.Status(status)] = count
	}

	return counts, nil
}

func redisCounterKey(orgID string, entityType models.EntityType) string {
	return "statusflow:counters:" + orgID + ":" + string(entityType)
}
