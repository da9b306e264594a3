package cache

import (
	"context"
	"time"
)

// NoExpiry passed as a read TTL skips the age check.
const NoExpiry time.Duration = -1

// Store is a byte store whose freshness is decided at read time.
// DiskCache is the default implementation; RedisStore serves CACHE_TYPE=redis.
type Store interface {
	// Get returns the value iff it was written no longer than ttl ago.
	// Returns ErrCacheMiss if not found or too old.
	Get(ctx context.Context, key string, ttl time.Duration) ([]byte, error)

	// Set stores a value, replacing any previous one.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)
