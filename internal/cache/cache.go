package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Cache is the key-value contract used for tenant collection caching.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value with ttl; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

var ErrMiss = errors.New("cache: miss")

// CollectionKey is the cache key of one tenant's collection.
func CollectionKey(orgID int64, collection string) string {
	return fmt.Sprintf("org:%d:%s", orgID, collection)
}

// Collections caches whole tenant collections as JSON and drops them on
// mutation.
type Collections struct {
	Cache Cache
	TTL   time.Duration
}

// Load returns the cached collection or calls fetch and caches its
// result. Cache failures fall through to fetch.
func Load[T any](ctx context.Context, c *Collections, orgID int64, collection string, fetch func() ([]T, error)) ([]T, error) {
	if c == nil || c.Cache == nil {
		return fetch()
	}
	key := CollectionKey(orgID, collection)
	if raw, err := c.Cache.Get(ctx, key); err == nil {
		var items []T
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return items, nil
		}
	}
	items, err := fetch()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(items); err == nil {
		_ = c.Cache.Set(ctx, key, string(raw), c.TTL)
	}
	return items, nil
}

// Invalidate drops the cached copies of the named collections.
func (c *Collections) Invalidate(ctx context.Context, orgID int64, collections ...string) error {
	if c == nil || c.Cache == nil || len(collections) == 0 {
		return nil
	}
	keys := make([]string, len(collections))
	for i, name := range collections {
		keys[i] = CollectionKey(orgID, name)
	}
	_, err := c.Cache.Del(ctx, keys...)
	return err
}
