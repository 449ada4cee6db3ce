package cache

import (
	"context"
	"time"
)

// Cache is the storage backend ResponseCache is built on top of: a
// plain TTL key/value store over opaque bytes. ResponseCache
// owns fingerprinting (BuildKey), admission policy, and exclusions;
// a Cache implementation only has to persist and expire raw values.
// MemoryCache and ExactCache are the two backends that satisfy it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
