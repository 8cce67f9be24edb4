package cachekit

import (
	"context"

	"github.com/unkn0wn-root/cachekit/localcache"
)

// Memo is a read-through view of a Client backed by a process-local map.
// Repeated reads of the same key hit the backend once. Entries do not expire
// locally; drop them with Flush when the unit of work ends.
type Memo[V any] struct {
	c     *Client[V]
	local *localcache.Cache[V]
}

// Memo returns a new memo view with its own local map.
func (c *Client[V]) Memo() *Memo[V] {
	return &Memo[V]{c: c, local: localcache.New[V](c.name)}
}

func (m *Memo[V]) Get(ctx context.Context, key string) (V, bool, error) {
	k := m.c.key(key)
	if v, ok := m.local.Get(k); ok {
		return v, true, nil
	}
	v, ok, err := m.c.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	m.local.Set(k, v)
	return v, true, nil
}

func (m *Memo[V]) Set(ctx context.Context, key string, v V, opts ...WriteOption) error {
	if err := m.c.Set(ctx, key, v, opts...); err != nil {
		return err
	}
	m.local.Set(m.c.key(key), v)
	return nil
}

func (m *Memo[V]) Delete(ctx context.Context, key string) (bool, error) {
	m.local.Delete(m.c.key(key))
	return m.c.Delete(ctx, key)
}

// Flush drops the local map only.
func (m *Memo[V]) Flush() { m.local.Flush() }

// Len returns the number of locally memoized keys.
func (m *Memo[V]) Len() int { return m.local.Len() }
