package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// envelope is the on-store format: {"_exp": unix seconds, "data": payload}.
type envelope struct {
	Exp  float64         `json:"_exp"`
	Data json.RawMessage `json:"data"`
}

// TTLCache stores JSON values with a logical expiry inside the value itself,
// independent of the backing store's write time. An optional MemoryCache
// fronts the store for the current process.
type TTLCache struct {
	store Store
	mem   *MemoryCache
	now   func() time.Time
}

// NewTTLCache creates a TTL-JSON cache over store. mem may be nil.
func NewTTLCache(store Store, mem *MemoryCache) *TTLCache {
	return &TTLCache{store: store, mem: mem, now: time.Now}
}

func (c *TTLCache) unixNow() float64 {
	return float64(c.now().UnixNano()) / float64(time.Second)
}

// GetJSON decodes the cached payload for key into dst. It reports false on a
// miss. Expired or corrupt entries are deleted and reported as misses.
func (c *TTLCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c.mem != nil {
		if raw, err := c.mem.Get(ctx, key); err == nil {
			if c.decode(raw, dst) {
				return true, nil
			}
			_ = c.mem.Delete(ctx, key)
		}
	}

	raw, err := c.store.Get(ctx, key, NoExpiry)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return false, nil
		}
		return false, err
	}

	if !c.decode(raw, dst) {
		if err := c.store.Delete(ctx, key); err != nil {
			return false, err
		}
		return false, nil
	}

	if c.mem != nil {
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			remaining := time.Duration((env.Exp - c.unixNow()) * float64(time.Second))
			_ = c.mem.Set(ctx, key, raw, remaining)
		}
	}
	return true, nil
}

// decode reports whether raw holds an unexpired envelope whose payload fits dst.
func (c *TTLCache) decode(raw []byte, dst any) bool {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	if len(env.Data) == 0 || env.Exp <= c.unixNow() {
		return false
	}
	return json.Unmarshal(env.Data, dst) == nil
}

// SetJSON stores v under key until now+ttl.
func (c *TTLCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}
	raw, err := json.Marshal(envelope{
		Exp:  c.unixNow() + ttl.Seconds(),
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache envelope: %w", err)
	}

	if err := c.store.Set(ctx, key, raw); err != nil {
		return err
	}
	if c.mem != nil {
		_ = c.mem.Set(ctx, key, raw, ttl)
	}
	return nil
}

// Delete removes key from both tiers.
func (c *TTLCache) Delete(ctx context.Context, key string) error {
	if c.mem != nil {
		_ = c.mem.Delete(ctx, key)
	}
	return c.store.Delete(ctx, key)
}
