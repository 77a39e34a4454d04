package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mozaika228/hephaestus/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := NewRedisCache(context.Background(), "redis://"+mr.Addr(), time.Minute, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return mr, c
}

func TestRedisCache_GetSet(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "files:1")
	assert.False(t, ok)

	c.Set(ctx, "files:1", []byte(`{"id":"1"}`), 0)
	value, ok := c.Get(ctx, "files:1")
	require.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, string(value))
	assert.Equal(t, time.Minute, mr.TTL("files:1"))
}

func TestRedisCache_Expiry(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "short", []byte("a"), 2*time.Second)
	mr.FastForward(3 * time.Second)

	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
}

func TestRedisCache_InvalidatePrefix(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		c.Set(ctx, fmt.Sprintf("planner:tasks:%d", i), []byte("x"), 0)
	}
	c.Set(ctx, "files:1", []byte("{}"), 0)

	c.InvalidatePrefix(ctx, "planner:")

	assert.Equal(t, []string{"files:1"}, mr.Keys())
}

func TestRedisCache_BackendFailureIsMiss(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	mr.Close()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, c.Ping(ctx))
}

func TestNewRedisCache_Errors(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not a url", time.Second, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRedisCache(context.Background(), "redis://127.0.0.1:1", time.Second, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRedisCacheFromClient_Defaults(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0, nil)
	defer c.Close()

	assert.Equal(t, DefaultTTL, c.defaultTTL)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	mem, err := New(ctx, config.CacheConfig{TTL: time.Second, MaxEntries: 4}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, mem)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rc, err := New(ctx, config.CacheConfig{TTL: time.Second, RedisURL: "redis://" + mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	defer rc.Close()
	assert.IsType(t, &RedisCache{}, rc)

	_, err = New(ctx, config.CacheConfig{RedisURL: "redis://127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}
