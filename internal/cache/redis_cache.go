package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"salesync/backend/internal/domain"
)

const redisKeyPrefix = "salesync:summary"

// RedisSummaryCache namespaces entries under a generation counter. Invalidate bumps
// the counter so older entries are never read again and expire on their own TTL.
type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, redisKeyPrefix+":gen").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func redisKey(gen int64, filter domain.DateFilter) string {
	return fmt.Sprintf("%s:%d:%s", redisKeyPrefix, gen, filter.CacheKey())
}

func (c *RedisSummaryCache) Get(ctx context.Context, gen int64, filter domain.DateFilter) (*domain.Summary, bool, error) {
	val, err := c.client.Get(ctx, redisKey(gen, filter)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.Summary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

// Set writes under the caller's generation. A value computed before an Invalidate
// lands under the old generation, which is never read again.
func (c *RedisSummaryCache) Set(ctx context.Context, gen int64, filter domain.DateFilter, value *domain.Summary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(gen, filter), payload, ttl).Err()
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, redisKeyPrefix+":gen").Err()
}
