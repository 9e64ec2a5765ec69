package repository

import (
	"context"
	"fmt"
	"time"

	"lanread/internal/config"

	"github.com/redis/go-redis/v9"
)

const mappingKeyPrefix = "page_mapping:"

type RedisMappingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	return redis.NewClient(options)
}

func NewRedisMappingCache(client *redis.Client, ttl time.Duration) *RedisMappingCache {
	return &RedisMappingCache{client: client, ttl: ttl}
}

func (c *RedisMappingCache) Get(ctx context.Context, bookID string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	val, err := c.client.Get(ctx, mappingKeyPrefix+bookID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get mapping from redis: %w", err)
	}
	return val, nil
}

func (c *RedisMappingCache) Set(ctx context.Context, bookID, pageID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := c.client.Set(ctx, mappingKeyPrefix+bookID, pageID, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set mapping in redis: %w", err)
	}
	return nil
}

func (c *RedisMappingCache) Clear(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, mappingKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan mapping keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete mapping keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
