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

func newTestRedisStore(t *testing.T, maxAge time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, "test", maxAge), mr
}

func TestRedisStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t, 0)

	_, err := s.Get(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Set(ctx, "k", []byte("value")))
	assert.True(t, mr.Exists("test:k"))

	got, err := s.Get(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k", NoExpiry)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStoreReadTTL(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t, 0)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	_, err := s.Get(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrCacheMiss)

	got, err := s.Get(ctx, "k", NoExpiry)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestRedisStoreMaxAge(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t, time.Minute)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, "k", NoExpiry)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStoreBacksTTLCache(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t, 0)
	c := NewTTLCache(s, nil)

	require.NoError(t, c.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute))
	var got map[string]int
	ok, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, got["a"])
}
