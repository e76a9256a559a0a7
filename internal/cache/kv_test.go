package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, kv.Ping(ctx))

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "a", "1", 0))
	require.NoError(t, kv.Delete(ctx, "a", "never-set"))
	assert.False(t, mr.Exists("a"))
	require.NoError(t, kv.Delete(ctx))

	n, err := kv.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = kv.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	got, err = kv.Get(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestMemoryKV(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "forever", "x", 0))
	now = now.Add(24 * time.Hour)
	_, err = kv.Get(ctx, "forever")
	require.NoError(t, err)

	require.NoError(t, kv.Delete(ctx, "forever"))
	_, err = kv.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrMiss)

	n, err := kv.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = kv.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, kv.Set(ctx, "word", "abc", 0))
	_, err = kv.Incr(ctx, "word")
	assert.Error(t, err)
}
