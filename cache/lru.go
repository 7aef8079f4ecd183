package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache defines the common interface for L1 caches.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Purge()
}

type lruCache struct {
	lru *expirable.LRU[string, any]
}

// NewLRU creates an in-process LRU cache with capacity and default TTL.
// Entries share the cache-wide TTL; the per-call ttl of Set is ignored.
func NewLRU(capacity int, ttl time.Duration) Cache {
	if capacity <= 0 {
		capacity = 512
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &lruCache{lru: expirable.NewLRU[string, any](capacity, nil, ttl)}
}

func (c *lruCache) Get(key string) (any, bool) {
	return c.lru.Get(key)
}

func (c *lruCache) Set(key string, value any, _ time.Duration) {
	c.lru.Add(key, value)
}

func (c *lruCache) Purge() {
	c.lru.Purge()
}

// Nop is a cache that never stores anything.
type Nop struct{}

func (Nop) Get(string) (any, bool)         { return nil, false }
func (Nop) Set(string, any, time.Duration) {}
func (Nop) Purge()                         {}
