package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// dialect holds the backend-specific statements of the kv_store table.
type dialect struct {
	name   string
	upsert string
	get    string
	delete string
	list   string
}

// sqlKV implements KV over database/sql.
type sqlKV struct {
	db      *sql.DB
	dialect dialect
	// writeMu serialises writers for sqlite; nil for server databases.
	writeMu *sync.Mutex
}

func (r *sqlKV) lockWrite() func() {
	if r.writeMu == nil {
		return func() {}
	}
	r.writeMu.Lock()
	return r.writeMu.Unlock
}

// Put inserts or replaces a value.
func (r *sqlKV) Put(ctx context.Context, bucket, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	defer r.lockWrite()()

	_, err := r.db.ExecContext(ctx, r.dialect.upsert, bucket, key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get returns the value of key, or ErrNotFound.
func (r *sqlKV) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, r.dialect.get, bucket, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

// Delete removes a key.
func (r *sqlKV) Delete(ctx context.Context, bucket, key string) error {
	defer r.lockWrite()()

	if _, err := r.db.ExecContext(ctx, r.dialect.delete, bucket, key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// List returns the entries of bucket whose key starts with prefix.
func (r *sqlKV) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.list, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			nanos int64
		)
		if err := rows.Scan(&e.Key, &e.Value, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", bucket, err)
		}
		if !strings.HasPrefix(e.Key, prefix) {
			continue
		}
		e.UpdatedAt = time.Unix(0, nanos)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	return out, nil
}

// Ping checks the database connection.
func (r *sqlKV) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Driver returns the backend name.
func (r *sqlKV) Driver() string {
	return r.dialect.name
}

// Close closes the database connection.
func (r *sqlKV) Close() error {
	return r.db.Close()
}

var _ KV = (*sqlKV)(nil)
