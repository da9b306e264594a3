package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const tempPrefix = ".tmp-"

// DiskCache is a content-addressed byte store. Each key lives in a file named
// sha1(key) hex; the file mtime is the write time. After every write the total
// directory size is brought back under maxBytes by deleting the oldest files.
type DiskCache struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewDiskCache creates the cache directory if needed. maxBytes <= 0 disables eviction.
func NewDiskCache(dir string, maxBytes int64) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &DiskCache{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string {
	return c.dir
}

func (c *DiskCache) path(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}

// Get returns the file contents iff now - mtime <= ttl.
func (c *DiskCache) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	p := c.path(key)

	info, err := os.Stat(p)
	if err != nil {
		return nil, ErrCacheMiss
	}
	if ttl != NoExpiry && c.now().Sub(info.ModTime()) > ttl {
		return nil, ErrCacheMiss
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, ErrCacheMiss
	}
	return data, nil
}

// Set writes atomically (temp file + rename) and then evicts if over the cap.
func (c *DiskCache) Set(ctx context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry: %w", err)
	}
	target := c.path(key)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}

	c.evict(target)
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (c *DiskCache) Delete(ctx context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Size returns the total size of committed entries in bytes.
func (c *DiskCache) Size() int64 {
	var total int64
	for _, e := range c.entries() {
		total += e.size
	}
	return total
}

type diskEntry struct {
	path  string
	size  int64
	mtime time.Time
}

// entries lists committed files. Stat failures are skipped.
func (c *DiskCache) entries() []diskEntry {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}

	out := make([]diskEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), tempPrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, diskEntry{
			path:  filepath.Join(c.dir, de.Name()),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
	}
	return out
}

// evict deletes files in ascending mtime order until the total is <= maxBytes.
// The entry just written (keep) is never evicted by its own write.
// Errors are swallowed.
func (c *DiskCache) evict(keep string) {
	if c.maxBytes <= 0 {
		return
	}

	entries := c.entries()
	var total int64
	for _, e := range entries {
		total += e.size
	}
	if total <= c.maxBytes {
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].mtime.Before(entries[j].mtime)
	})
	for _, e := range entries {
		if total <= c.maxBytes {
			break
		}
		if e.path == keep {
			continue
		}
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		total -= e.size
	}
}

var _ Store = (*DiskCache)(nil)

// Prune deletes entries written more than olderThan ago and returns how many
// were removed.
func (c *DiskCache) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := c.now().Add(-olderThan)
	removed := 0
	for _, e := range c.entries() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.mtime.After(cutoff) {
			continue
		}
		if err := os.Remove(e.path); err == nil {
			removed++
		}
	}
	return removed, nil
}
