package sdk

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the in-memory credential cache.
const DefaultCacheSize = 10_000

// CredentialCache stores delegated bearer tokens keyed by principal.
//
// Implementations must be safe for concurrent use. A cache that cannot reach
// its backing store should report a miss rather than fail the request.
type CredentialCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, token string)
	Invalidate(ctx context.Context, key string)
}

// MemoryCache is a process-local LRU credential cache.
type MemoryCache struct {
	entries *lru.Cache[string, string]
}

// NewMemoryCache returns a MemoryCache holding at most size tokens. A
// non-positive size falls back to DefaultCacheSize.
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, string](size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &MemoryCache{entries: entries}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	return c.entries.Get(key)
}

func (c *MemoryCache) Put(_ context.Context, key, token string) {
	c.entries.Add(key, token)
}

func (c *MemoryCache) Invalidate(_ context.Context, key string) {
	c.entries.Remove(key)
}

// Len reports the number of cached tokens.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
