package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/config"
)

const (
	defaultNumCounters = 100_000
	defaultMaxCost     = 10_000
)

// MemoryCache is a process-local Cache backed by ristretto. Every entry has
// cost 1, so MaxCost bounds the number of tokens held. Expired entries are
// hidden from Get and reclaimed by ristretto.
type MemoryCache struct {
	cache *ristretto.Cache[string, []byte]
}

// NewMemory returns a MemoryCache sized by cfg. Zero sizes select the
// defaults.
func NewMemory(cfg config.CacheConfig) (*MemoryCache, error) {
	numCounters := cfg.NumCounters
	if numCounters <= 0 {
		numCounters = defaultNumCounters
	}
	maxCost := cfg.MaxCost
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        numCounters,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tokencache: create memory cache: %w", err)
	}
	return &MemoryCache{cache: cache}, nil
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements Cache. The write is visible to Get once Set returns.
func (c *MemoryCache) Set(_ context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return fmt.Errorf("tokencache: ttl must be positive, got %s", ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	if !c.cache.SetWithTTL(key, stored, 1, ttl) {
		return fmt.Errorf("tokencache: entry %q was dropped", key)
	}
	// Ristretto applies writes asynchronously.
	c.cache.Wait()
	return nil
}

// Close releases the cache. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.cache.Close()
	return nil
}
