package httpclient

import (
	"sync"
	"time"
)

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// ttlCache is a small expiring map keyed by string.
type ttlCache[V any] struct {
	mu    sync.RWMutex
	items map[string]cacheItem[V]
	now   func() time.Time
}

func newTTLCache[V any]() *ttlCache[V] {
	return &ttlCache[V]{items: make(map[string]cacheItem[V]), now: time.Now}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *ttlCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem[V]{value: value, expiresAt: c.now().Add(ttl)}
}
