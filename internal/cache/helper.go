package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetJSON fetches a key and unmarshals it into dest.
// Returns false when the cache is unavailable, the key is missing, or the
// payload cannot be decoded.
func GetJSON(ctx context.Context, key string, dest any) bool {
	if client == nil {
		return false
	}
	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Stale or corrupt entry; drop it so the next read repopulates.
		client.Del(ctx, key)
		return false
	}
	return true
}

// SetJSON marshals value and stores it under key with the given TTL.
// Failures are silent; the cache is an optimization, not a store of record.
func SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	client.Set(ctx, key, raw, ttl)
}

// Aside implements the cache-aside pattern: return the cached value when
// present, otherwise load from the source of record and populate the cache.
func Aside[T any](ctx context.Context, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var cached T
	if GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	value, err := load()
	if err != nil {
		return value, err
	}
	SetJSON(ctx, key, value, ttl)
	return value, nil
}

// GetInt64 reads a cached integer counter. The second return is false on
// miss or cache unavailability.
func GetInt64(ctx context.Context, key string) (int64, bool) {
	if client == nil {
		return 0, false
	}
	n, err := client.Get(ctx, key).Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetInt64 stores an integer counter with the given TTL.
func SetInt64(ctx context.Context, key string, n int64, ttl time.Duration) {
	if client == nil {
		return
	}
	client.Set(ctx, key, n, ttl)
}
