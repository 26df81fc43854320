package binance

import (
	"sync"
	"time"
)

// ttlCache holds short-lived exchange responses keyed by symbol.
type ttlCache[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value     T
	updatedAt time.Time
}

func newTTLCache[T any](ttl time.Duration, now func() time.Time) *ttlCache[T] {
	return &ttlCache[T]{
		ttl:   ttl,
		now:   now,
		items: make(map[string]cacheEntry[T]),
	}
}

// Get returns a value younger than the ttl.
func (c *ttlCache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.ttl <= 0 || c.now().Sub(e.updatedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[T]) Set(key string, v T) {
	c.mu.Lock()
	c.items[key] = cacheEntry[T]{value: v, updatedAt: c.now()}
	c.mu.Unlock()
}

func (c *ttlCache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *ttlCache[T]) Purge() {
	c.mu.Lock()
	c.items = make(map[string]cacheEntry[T])
	c.mu.Unlock()
}

func (c *ttlCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
