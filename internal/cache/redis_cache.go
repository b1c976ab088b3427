package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stationerypos/internal/domain"
)

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

// NewRedisReportCacheFromClient wraps an existing client, e.g. one pointed
// at a test server.
func NewRedisReportCacheFromClient(client *redis.Client) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) Get(ctx context.Context, key string) ([]domain.DailySummary, bool, error) {
	val, err := c.client.Get(ctx, ReportKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summaries []domain.DailySummary
	if err := json.Unmarshal(val, &summaries); err != nil {
		return nil, false, err
	}
	return summaries, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value []domain.DailySummary, ttl time.Duration) error {
	if value == nil {
		value = []domain.DailySummary{}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ReportKeyPrefix+key, payload, ttl).Err()
}

// Invalidate deletes every key under ReportKeyPrefix.
func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, ReportKeyPrefix+"*", 100).Iterator()
	keys := make([]string, 0, 8)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
