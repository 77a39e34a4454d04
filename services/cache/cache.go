// Package cache is the response cache in front of read endpoints. Values are
// opaque bytes; entries carry their own expiry and are checked on access.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mozaika228/hephaestus/config"
	"go.uber.org/zap"
)

// Cache is implemented by MemoryCache and RedisCache
type Cache interface {
	// Get returns the value for key and whether it was present and fresh
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value under key for ttl. A non-positive ttl uses the default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// InvalidatePrefix removes every key starting with prefix
	InvalidatePrefix(ctx context.Context, prefix string)

	// Ping checks the backend
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Observer is told about every lookup. hit is false on a miss.
type Observer func(hit bool)

// New builds the configured backend: redis when RedisURL is set, the
// in-process LRU otherwise
func New(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (Cache, error) {
	if cfg.RedisURL != "" {
		c, err := NewRedisCache(ctx, cfg.RedisURL, cfg.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		return c, nil
	}
	return NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil
}

// Instrument wraps c so every Get is reported to observe
func Instrument(c Cache, observe Observer) Cache {
	if observe == nil {
		return c
	}
	return &instrumented{Cache: c, observe: observe}
}

type instrumented struct {
	Cache
	observe Observer
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok := i.Cache.Get(ctx, key)
	i.observe(ok)
	return value, ok
}

// GetJSON decodes a cached value into dest. A value that fails to decode
// counts as a miss.
func GetJSON(ctx context.Context, c Cache, key string, dest interface{}) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

// SetJSON encodes value and stores it
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	c.Set(ctx, key, data, ttl)
	return nil
}
