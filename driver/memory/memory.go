// Package memory is the in-process driver: a mutex-guarded map with per-entry
// TTLs, version-counter CAS tokens and a tag index. Nothing is persisted or
// shared across processes.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/cachekit/driver"
)

const caps = driver.CapKV | driver.CapCAS | driver.CapTags | driver.CapMulti | driver.CapTx

type entry struct {
	value   []byte
	tags    []string
	expires time.Time // zero => no TTL
	version uint64
}

// Config tunes the memory driver. The zero value is ready to use.
type Config struct {
	// CleanupInterval runs DeleteExpired periodically; 0 disables the loop
	// and expired entries are dropped lazily on access.
	CleanupInterval time.Duration
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Memory is safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	items map[string]entry
	tags  map[string]map[string]struct{}
	seq   uint64
	now   func() time.Time

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var (
	_ driver.Driver      = (*Memory)(nil)
	_ driver.CASer       = (*Memory)(nil)
	_ driver.Tagger      = (*Memory)(nil)
	_ driver.MultiGetter = (*Memory)(nil)
	_ driver.Transactor  = (*Memory)(nil)
)

func New(cfg Config) *Memory {
	m := &Memory{
		items: make(map[string]entry),
		tags:  make(map[string]map[string]struct{}),
		now:   cfg.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if cfg.CleanupInterval > 0 {
		m.ticker = time.NewTicker(cfg.CleanupInterval)
		m.stopCh = make(chan struct{})
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for {
				select {
				case <-m.ticker.C:
					_ = m.DeleteExpired(context.Background())
				case <-m.stopCh:
					return
				}
			}
		}()
	}
	return m
}

func (m *Memory) Kind() driver.Kind                 { return driver.KindLocal }
func (m *Memory) Name() string                      { return "memory" }
func (m *Memory) Capabilities() driver.Capabilities { return caps }

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return clone(e.value), true, nil
}

func (m *Memory) GetWithToken(_ context.Context, key string) ([]byte, driver.Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok {
		return nil, driver.Token{}, false, nil
	}
	return clone(e.value), driver.NewToken(e.version), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	m.mu.Lock()
	m.store(key, value, tags, ttl)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Add(_ context.Context, key string, value []byte, tags []string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.store(key, value, tags, ttl)
	return true, nil
}

func (m *Memory) CAS(_ context.Context, token driver.Token, key string, value []byte, tags []string, ttl time.Duration) (bool, error) {
	want, ok := token.Value().(uint64)
	if !ok {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok || e.version != want {
		return false, nil
	}
	m.store(key, value, tags, ttl)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	if ok {
		m.remove(key)
	}
	return ok, nil
}

func (m *Memory) DeleteAll(context.Context) error {
	m.mu.Lock()
	m.items = make(map[string]entry)
	m.tags = make(map[string]map[string]struct{})
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteExpired(context.Context) error {
	now := m.now()
	m.mu.Lock()
	for k, e := range m.items {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			m.remove(k)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Find(_ context.Context, tag string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.tags[tag]
	out := make([]string, 0, len(members))
	for k := range members {
		if _, ok := m.lookup(k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) DeleteTag(_ context.Context, tag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.tags[tag]
	if !ok {
		return false, nil
	}
	for k := range members {
		m.remove(k)
	}
	delete(m.tags, tag)
	return true, nil
}

func (m *Memory) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	m.mu.Lock()
	for _, k := range keys {
		if e, ok := m.lookup(k); ok {
			out[k] = clone(e.value)
		}
	}
	m.mu.Unlock()
	return out, nil
}

func (m *Memory) SetMulti(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	for k, v := range items {
		m.store(k, v, nil, ttl)
	}
	m.mu.Unlock()
	return nil
}

// Exec applies set/add/delete ops under one lock. Any other op kind fails the
// whole batch before anything is applied.
func (m *Memory) Exec(_ context.Context, ops []driver.Op) ([]driver.Result, error) {
	for _, op := range ops {
		switch op.Kind {
		case driver.OpSet, driver.OpAdd, driver.OpDelete:
		default:
			return nil, fmt.Errorf("memory: exec %s: %w", op.Kind, driver.ErrUnsupported)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]driver.Result, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case driver.OpSet:
			m.store(op.Key, op.Value, nil, op.TTL)
			res[i].OK = true
		case driver.OpAdd:
			if _, ok := m.lookup(op.Key); !ok {
				m.store(op.Key, op.Value, nil, op.TTL)
				res[i].OK = true
			}
		case driver.OpDelete:
			if _, ok := m.lookup(op.Key); ok {
				m.remove(op.Key)
				res[i].OK = true
			}
		}
	}
	return res, nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.items {
		if _, ok := m.lookup(k); ok {
			n++
		}
	}
	return n
}

func (m *Memory) Close(context.Context) error {
	m.closeOnce.Do(func() {
		if m.stopCh != nil {
			close(m.stopCh)
			m.ticker.Stop()
			m.wg.Wait()
		}
	})
	return nil
}

// lookup must be called with mu held. Expired entries are dropped.
func (m *Memory) lookup(key string) (entry, bool) {
	e, ok := m.items[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.remove(key)
		return entry{}, false
	}
	return e, true
}

// store must be called with mu held.
func (m *Memory) store(key string, value []byte, tags []string, ttl time.Duration) {
	if old, ok := m.items[key]; ok {
		m.untag(key, old.tags)
	}
	m.seq++
	e := entry{value: clone(value), version: m.seq}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	if len(tags) > 0 {
		e.tags = append([]string(nil), tags...)
		for _, t := range tags {
			set, ok := m.tags[t]
			if !ok {
				set = make(map[string]struct{})
				m.tags[t] = set
			}
			set[key] = struct{}{}
		}
	}
	m.items[key] = e
}

// remove must be called with mu held.
func (m *Memory) remove(key string) {
	if e, ok := m.items[key]; ok {
		m.untag(key, e.tags)
		delete(m.items, key)
	}
}

func (m *Memory) untag(key string, tags []string) {
	for _, t := range tags {
		if set, ok := m.tags[t]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(m.tags, t)
			}
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
