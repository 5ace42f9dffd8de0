package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Cache is a thin JSON cache on top of Redis. It is used for time-boxed
// values like reorder suggestions where staleness past the TTL is wrong,
// not just slow.
type Cache struct {
	client *redis.Client
	logger *logger.Logger
}

// New creates a new cache backed by Redis
func New(cfg *config.RedisConfig, log *logger.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: log,
	}, nil
}

// GetJSON reads a cached value into v. Returns false on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		// A corrupt entry is treated as a miss and dropped
		c.logger.Warn().Err(err).Str("key", key).Msg("dropping corrupt cache entry")
		c.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON stores v under key with the given TTL
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys from the cache
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Health returns the health status of the cache
func (c *Cache) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"status": "up",
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

// Close closes the underlying Redis client
func (c *Cache) Close() error {
	return c.client.Close()
}
