package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/job-tracker/pkg/logger"
)

func TestRedisWorkspaceCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisWorkspaceCache(ctx, &redis.Options{Addr: mr.Addr()}, time.Minute, logger.Nop())
	require.NoError(t, err)
	defer cache.Close()

	data, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, cache.Set(ctx, "u1", []byte(`{"profile":null}`)))
	data, err = cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, `{"profile":null}`, string(data))
	assert.Equal(t, time.Minute, mr.TTL("workspace:u1"))

	require.NoError(t, cache.Invalidate(ctx, "u1"))
	assert.False(t, mr.Exists("workspace:u1"))
}

func TestRedisWorkspaceCacheExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisWorkspaceCache(ctx, &redis.Options{Addr: mr.Addr()}, 0, logger.Nop())
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Set(ctx, "u1", []byte(`{}`)))
	mr.FastForward(defaultCacheTTL + time.Second)

	data, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestNewRedisWorkspaceCacheFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisWorkspaceCache(context.Background(), &redis.Options{Addr: addr}, time.Minute, logger.Nop())
	require.Error(t, err)
}
