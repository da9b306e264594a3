package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbx-valuation-api/internal/cache"
)

func TestCleanupRunNowPrunesStaleEntries(t *testing.T) {
	ctx := context.Background()
	disk, err := cache.NewDiskCache(t.TempDir(), 0)
	require.NoError(t, err)

	require.NoError(t, disk.Set(ctx, "old", []byte("a")))
	files, err := os.ReadDir(disk.Dir())
	require.NoError(t, err)
	past := time.Now().Add(-3 * time.Hour)
	for _, f := range files {
		require.NoError(t, os.Chtimes(filepath.Join(disk.Dir(), f.Name()), past, past))
	}
	require.NoError(t, disk.Set(ctx, "fresh", []byte("b")))

	s := NewCleanupScheduler(disk, CleanupConfig{MaxAge: time.Hour}, nil)
	removed, err := s.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = disk.Get(ctx, "old", cache.NoExpiry)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	got, err := disk.Get(ctx, "fresh", cache.NoExpiry)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestCleanupStartStop(t *testing.T) {
	disk, err := cache.NewDiskCache(t.TempDir(), 0)
	require.NoError(t, err)

	s := NewCleanupScheduler(disk, CleanupConfig{CleanupInterval: 5 * time.Millisecond}, nil)
	s.Start()
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop()
}
