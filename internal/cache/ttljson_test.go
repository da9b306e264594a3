package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestTTLCache(t *testing.T) (*TTLCache, *DiskCache, *time.Time) {
	t.Helper()
	disk, err := NewDiskCache(t.TempDir(), 0)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	c := NewTTLCache(disk, nil)
	c.now = func() time.Time { return now }
	return c, disk, &now
}

func TestTTLCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestTTLCache(t)

	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "alice", Count: 2}, time.Minute))

	var got payload
	ok, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Name: "alice", Count: 2}, got)
}

func TestTTLCacheExpiredEntryIsDeleted(t *testing.T) {
	ctx := context.Background()
	c, disk, now := newTestTTLCache(t)

	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "x"}, 10*time.Second))

	*now = now.Add(10 * time.Second)
	var got payload
	ok, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = disk.Get(ctx, "k", NoExpiry)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestTTLCacheCorruptEntryIsDeleted(t *testing.T) {
	ctx := context.Background()
	c, disk, _ := newTestTTLCache(t)

	for _, raw := range []string{`not json`, `{"_exp": 9999999999}`, `{"_exp": 9999999999, "data": "str"}`} {
		require.NoError(t, disk.Set(ctx, "k", []byte(raw)))

		var got payload
		ok, err := c.GetJSON(ctx, "k", &got)
		require.NoError(t, err)
		assert.False(t, ok, raw)

		_, err = disk.Get(ctx, "k", NoExpiry)
		assert.ErrorIs(t, err, ErrCacheMiss, raw)
	}
}

func TestTTLCacheEnvelopeFormat(t *testing.T) {
	ctx := context.Background()
	c, disk, _ := newTestTTLCache(t)

	require.NoError(t, c.SetJSON(ctx, "k", []int{1, 2}, 30*time.Second))

	raw, err := disk.Get(ctx, "k", NoExpiry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_exp": 1700000030, "data": [1,2]}`, string(raw))
}

func TestTTLCacheMemoryTier(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDiskCache(t.TempDir(), 0)
	require.NoError(t, err)
	mem := NewMemoryCache(0)
	defer mem.Close()

	c := NewTTLCache(disk, mem)
	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "m"}, time.Minute))

	// served from memory after the disk entry is gone
	require.NoError(t, disk.Delete(ctx, "k"))
	var got payload
	ok, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "m", got.Name)

	require.NoError(t, c.Delete(ctx, "k"))
	ok, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLCacheMemoryTierFilledFromStore(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDiskCache(t.TempDir(), 0)
	require.NoError(t, err)

	require.NoError(t, NewTTLCache(disk, nil).SetJSON(ctx, "k", payload{Count: 7}, time.Minute))

	mem := NewMemoryCache(0)
	defer mem.Close()
	c := NewTTLCache(disk, mem)

	var got payload
	ok, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, mem.Len())
}

func TestKeyLockSerialisesSameKey(t *testing.T) {
	l := NewKeyLock()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.Len())
}

func TestKeyLockDifferentKeysIndependent(t *testing.T) {
	l := NewKeyLock()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx2, "b")
	require.NoError(t, err)
	unlockB()
	unlockB()
}

func TestKeyLockCancelledWaiterReleases(t *testing.T) {
	l := NewKeyLock()

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, l.Len())
}
