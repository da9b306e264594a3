package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// Entry is one stored key/value pair.
type Entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// KV is a small bucketed key/value table.
type KV interface {
	// Put inserts or replaces a value.
	Put(ctx context.Context, bucket, key string, value []byte) error

	// Get returns the value of key, or ErrNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// List returns the entries of bucket whose key starts with prefix, ordered by key.
	List(ctx context.Context, bucket, prefix string) ([]Entry, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Driver returns the backend name (sqlite, mysql, postgres).
	Driver() string

	// Close closes the underlying connection.
	Close() error
}
