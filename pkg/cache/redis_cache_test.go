package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, DefaultOptions())
}

func TestRedisCacheSetGet(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "order:1", map[string]any{"toid": 1}, time.Minute))

	var got map[string]any
	require.NoError(t, c.Get(ctx, "order:1", &got))
	require.EqualValues(t, 1, got["toid"])
}

func TestRedisCacheGetMiss(t *testing.T) {
	c := newTestRedisCache(t)
	var dest map[string]any
	err := c.Get(context.Background(), "missing", &dest)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheDeleteInvalidatesOrderKey(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "order:1", "snapshot", time.Minute))
	exists, err := c.Exists(ctx, "order:1")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, c.Delete(ctx, "order:1"))

	exists, err = c.Exists(ctx, "order:1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRedisCacheExpire(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "order:2", "snapshot", time.Hour))
	require.NoError(t, c.Expire(ctx, "order:2", time.Minute))

	ttl, err := c.TTL(ctx, "order:2")
	require.NoError(t, err)
	require.True(t, ttl > 0 && ttl <= time.Minute)
}
