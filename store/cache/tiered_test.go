package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisCacheFromClient(client, "test:", time.Hour)
}

func TestTieredCacheL1Only(t *testing.T) {
	ctx := context.Background()
	tc := NewTieredCache(nil)
	defer tc.Close()

	_, ok := tc.Get(ctx, "hash")
	assert.False(t, ok)

	tc.Set(ctx, "hash", []byte("mp3"))
	data, ok := tc.Get(ctx, "hash")
	require.True(t, ok)
	assert.Equal(t, []byte("mp3"), data)

	stats := tc.Stats()
	assert.False(t, stats.L2Enabled)
	assert.Equal(t, int64(1), stats.L1Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestTieredCachePromotesL2Hit(t *testing.T) {
	ctx := context.Background()
	mr, l2 := newTestRedis(t)
	require.NoError(t, mr.Set("test:hash", "from-redis"))

	tc := NewTieredCache(&TieredCacheConfig{L1MaxItems: 10, L1TTL: time.Minute, L2TTL: time.Hour, L2: l2})
	defer tc.Close()

	data, ok := tc.Get(ctx, "hash")
	require.True(t, ok)
	assert.Equal(t, []byte("from-redis"), data)

	mr.FlushAll()
	data, ok = tc.Get(ctx, "hash")
	require.True(t, ok, "second read should come from L1")
	assert.Equal(t, []byte("from-redis"), data)

	stats := tc.Stats()
	assert.Equal(t, int64(1), stats.L2Hits)
	assert.Equal(t, int64(1), stats.L1Hits)
}

func TestTieredCacheWritesThroughWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, l2 := newTestRedis(t)

	tc := NewTieredCache(&TieredCacheConfig{L1MaxItems: 10, L1TTL: time.Minute, L2TTL: 2 * time.Hour, L2: l2})
	defer tc.Close()

	tc.Set(ctx, "hash", []byte{0xff, 0xfb, 0x90})
	got, err := mr.Get("test:hash")
	require.NoError(t, err)
	assert.Equal(t, string([]byte{0xff, 0xfb, 0x90}), got)
	assert.Equal(t, 2*time.Hour, mr.TTL("test:hash"))

	tc.Delete(ctx, "hash")
	assert.False(t, mr.Exists("test:hash"))
}

func TestRedisCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, l2 := newTestRedis(t)
	mr.Close()

	_, ok := l2.Get(ctx, "hash")
	assert.False(t, ok)
	assert.Equal(t, int64(-1), l2.Size())

	// An unreachable L2 degrades to L1 only.
	tc := NewTieredCache(&TieredCacheConfig{L1MaxItems: 10, L1TTL: time.Minute, L2: l2})
	tc.Set(ctx, "hash", []byte("mp3"))
	data, ok := tc.Get(ctx, "hash")
	require.True(t, ok)
	assert.Equal(t, []byte("mp3"), data)
}

func TestRedisCacheClearAndSize(t *testing.T) {
	ctx := context.Background()
	mr, l2 := newTestRedis(t)
	require.NoError(t, mr.Set("other:key", "keep"))

	l2.Set(ctx, "a", []byte("1"))
	l2.Set(ctx, "b", map[string]int{"n": 2})
	assert.Equal(t, int64(2), l2.Size())

	raw, err := mr.Get("test:b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, raw)

	l2.Clear(ctx)
	assert.Equal(t, int64(0), l2.Size())
	assert.True(t, mr.Exists("other:key"))
}

func TestNewRedisCacheConnectFailure(t *testing.T) {
	_, err := NewRedisCache(context.Background(), &RedisCacheConfig{Addr: "127.0.0.1:1", KeyPrefix: "x:"})
	assert.Error(t, err)
}
