package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client, DefaultKeyPrefix)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "key1", []byte("value1"), time.Minute))

		val, err := cache.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, "value1", string(val))
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)
		require.NoError(t, cache.Delete(ctx, "key2"))

		val, _ := cache.Get(ctx, "key2")
		assert.Nil(t, val)
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, "key3", []byte("old"), time.Minute)
		_ = cache.Set(ctx, "key3", []byte("new"), time.Minute)

		val, _ := cache.Get(ctx, "key3")
		assert.Equal(t, "new", string(val))
	})
}

func TestLRUCache_TTLExpiration(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_ = cache.Set(ctx, "expiring", []byte("temp"), time.Second)
	_ = cache.Set(ctx, "forever", []byte("kept"), 0)

	val, _ := cache.Get(ctx, "expiring")
	assert.Equal(t, "temp", string(val))

	now = now.Add(2 * time.Second)

	val, _ = cache.Get(ctx, "expiring")
	assert.Nil(t, val)
	val, _ = cache.Get(ctx, "forever")
	assert.Equal(t, "kept", string(val))
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()

	_ = cache.Set(ctx, "a", []byte("1"), time.Minute)
	_ = cache.Set(ctx, "b", []byte("2"), time.Minute)
	_ = cache.Set(ctx, "c", []byte("3"), time.Minute)

	// touch "a" so "b" becomes least recently used
	_, _ = cache.Get(ctx, "a")
	_ = cache.Set(ctx, "d", []byte("4"), time.Minute)

	val, _ := cache.Get(ctx, "b")
	assert.Nil(t, val, "b should be evicted")

	for _, k := range []string{"a", "c", "d"} {
		val, _ := cache.Get(ctx, k)
		assert.NotNil(t, val, k)
	}

	stats := cache.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 3, stats.Capacity)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRedisCache(t *testing.T) {
	cache, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Ping(ctx))

	val, err := cache.Get(ctx, "config:dbr-settings")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, cache.Set(ctx, "config:dbr-settings", []byte(`{"maximumDBRPercentage":65}`), time.Minute))
	assert.True(t, mr.Exists("kestrel:config:dbr-settings"))

	val, err = cache.Get(ctx, "config:dbr-settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"maximumDBRPercentage":65}`, string(val))

	mr.FastForward(2 * time.Minute)
	val, err = cache.Get(ctx, "config:dbr-settings")
	require.NoError(t, err)
	assert.Nil(t, val)

	_ = cache.Set(ctx, "k", []byte("v"), 0)
	require.NoError(t, cache.Delete(ctx, "k"))
	assert.False(t, mr.Exists("kestrel:k"))
}

func TestRedisCache_ServerDown(t *testing.T) {
	cache, mr := newTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, cache.Ping(context.Background()))
}

func TestTwoPhaseCache(t *testing.T) {
	remote, mr := newTestRedis(t)
	local := NewLRUCache(10)
	cache := NewTwoPhaseCache(local, remote, time.Minute)
	ctx := context.Background()

	t.Run("SetWritesBothLayers", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "k1", []byte("v1"), time.Hour))

		l1, _ := local.Get(ctx, "k1")
		assert.Equal(t, "v1", string(l1))
		assert.True(t, mr.Exists("kestrel:k1"))
	})

	t.Run("L2HitPopulatesL1", func(t *testing.T) {
		require.NoError(t, remote.Set(ctx, "k2", []byte("v2"), time.Hour))

		val, err := cache.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(val))

		l1, _ := local.Get(ctx, "k2")
		assert.Equal(t, "v2", string(l1))
	})

	t.Run("DeleteClearsBothLayers", func(t *testing.T) {
		_ = cache.Set(ctx, "k3", []byte("v3"), time.Hour)
		require.NoError(t, cache.Delete(ctx, "k3"))

		val, _ := cache.Get(ctx, "k3")
		assert.Nil(t, val)
		assert.False(t, mr.Exists("kestrel:k3"))
	})

	t.Run("L1ServesWhenRemoteDown", func(t *testing.T) {
		_ = cache.Set(ctx, "k4", []byte("v4"), time.Hour)
		mr.Close()

		val, err := cache.Get(ctx, "k4")
		require.NoError(t, err)
		assert.Equal(t, "v4", string(val))
		assert.Error(t, cache.Ping(ctx))
	})
}

func TestTwoPhaseCache_BackfillBoundedByRemoteTTL(t *testing.T) {
	remote, mr := newTestRedis(t)
	local := NewLRUCache(10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	local.now = func() time.Time { return now }
	cache := NewTwoPhaseCache(local, remote, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "short", []byte("v"), 2*time.Second))
	require.NoError(t, remote.Set(ctx, "forever", []byte("v"), 0))

	for _, key := range []string{"short", "forever"} {
		val, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v", string(val))
	}

	left, ok, err := remote.TTL(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, left)

	now = now.Add(3 * time.Second)
	mr.FastForward(3 * time.Second)

	l1, _ := local.Get(ctx, "short")
	assert.Nil(t, l1)
	l1, _ = local.Get(ctx, "forever")
	assert.Equal(t, "v", string(l1))

	_, ok, err = remote.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	require.NoError(t, err)
	_, ok := c.(*LRUCache)
	assert.True(t, ok)

	mr := miniredis.RunT(t)
	c, err = New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr(), EnableTwoPhase: true})
	require.NoError(t, err)
	_, ok = c.(*TwoPhaseCache)
	assert.True(t, ok)
	c.Close()

	_, err = New(domain.CacheConfig{Type: "memcached"})
	assert.Error(t, err)
}

func BenchmarkLRUCache_Get(b *testing.B) {
	cache := NewLRUCache(10000)
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		_ = cache.Set(ctx, fmt.Sprintf("key-%d", i), []byte("value"), time.Hour)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cache.Get(ctx, fmt.Sprintf("key-%d", i%1000))
	}
}
