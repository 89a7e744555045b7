// Package tokencache provides the key/value store the GraphQL client keeps
// API tokens in. Entries carry a TTL that the store itself enforces: once it
// elapses, Get reports the entry as absent.
package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/config"
)

// Driver identifiers accepted by New.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// ErrEmptyKey is returned when Get or Set is called with an empty key.
var ErrEmptyKey = errors.New("tokencache: key must not be empty")

// Cache is a TTL-aware key/value store with opaque JSON values. Individual
// Get and Set calls are atomic; nothing coordinates a Get followed by a Set.
type Cache interface {
	// Get returns the value stored under key. found is false when the key
	// was never written or its TTL has elapsed.
	Get(ctx context.Context, key string) (value json.RawMessage, found bool, err error)
	// Set stores value under key, replacing any previous value. The entry
	// expires after ttl.
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	// Close releases the resources held by the store.
	Close() error
}

// New creates a cache for the driver named in cfg. An empty driver selects
// the in-memory store.
func New(cfg config.CacheConfig) (Cache, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg)
	case DriverRedis:
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("tokencache: unsupported driver: %s", driver)
	}
}
