// Package localcache is process-local memoization: a namespaced map with no
// TTL and no eviction. Entries live until deleted or flushed, so scope a Cache
// to one unit of work (a request, a job) rather than the process.
package localcache

import "sync"

// Cache is safe for concurrent use. Each New returns an independent instance.
type Cache[V any] struct {
	ns    string
	mu    sync.RWMutex
	items map[string]V
}

func New[V any](namespace string) *Cache[V] {
	return &Cache[V]{ns: namespace, items: make(map[string]V)}
}

func (c *Cache[V]) Namespace() string { return c.ns }

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	v, ok := c.items[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	c.items[key] = v
	c.mu.Unlock()
}

// Delete reports whether key was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

func (c *Cache[V]) Flush() {
	c.mu.Lock()
	c.items = make(map[string]V)
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
