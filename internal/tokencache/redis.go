package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/config"
)

// RedisCache is a Cache backed by redis. Expiry is delegated to redis key
// TTLs, so entries are shared by every process pointing at the same server.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to the redis server described by cfg and verifies the
// connection with a PING.
func NewRedis(cfg config.RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("tokencache: redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tokencache: redis ping failed: %w", err)
	}

	return &RedisCache{client: client, prefix: cfg.Prefix}, nil
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("tokencache: redis get: %w", err)
	}
	return json.RawMessage(raw), true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return fmt.Errorf("tokencache: ttl must be positive, got %s", ttl)
	}
	if err := c.client.Set(ctx, c.key(key), []byte(value), ttl).Err(); err != nil {
		return fmt.Errorf("tokencache: redis set: %w", err)
	}
	return nil
}

// Close closes the underlying redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
