package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// MaxAge bounds how long Redis keeps an entry. Zero keeps entries until deleted.
	MaxAge time.Duration
}

// RedisStore keeps each entry in a hash {v: value, t: write time in unix nanos}.
// Freshness is decided at read time against t, like DiskCache uses mtime.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	maxAge    time.Duration
	now       func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.MaxAge), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, maxAge time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "rbxval:cache"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + ":" + k
}

// Get returns the value iff it was written no longer than ttl ago.
func (s *RedisStore) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "v", "t").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, ErrCacheMiss
	}

	value, ok := vals[0].(string)
	if !ok {
		return nil, ErrCacheMiss
	}
	if ttl != NoExpiry {
		stamp, ok := vals[1].(string)
		if !ok {
			return nil, ErrCacheMiss
		}
		nanos, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			return nil, ErrCacheMiss
		}
		if s.now().Sub(time.Unix(0, nanos)) > ttl {
			return nil, ErrCacheMiss
		}
	}
	return []byte(value), nil
}

// Set stores a value and stamps the write time.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	k := s.key(key)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, "v", value, "t", strconv.FormatInt(s.now().UnixNano(), 10))
	if s.maxAge > 0 {
		pipe.Expire(ctx, k, s.maxAge)
	} else {
		pipe.Persist(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes a value by key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
