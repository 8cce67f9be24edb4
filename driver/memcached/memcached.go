// Package memcached is the Memcached-backed driver on bradfitz/gomemcache.
// It supports KV, native CAS ids and multi-get; tags are not supported.
package memcached

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/unkn0wn-root/cachekit/driver"
)

const caps = driver.CapKV | driver.CapCAS | driver.CapMulti

// relativeLimit is the largest expiration memcached treats as relative seconds.
// Anything above is read as an absolute unix timestamp.
const relativeLimit = 30 * 24 * time.Hour

type Memcached struct {
	mc  *memcache.Client
	now func() time.Time
}

var (
	_ driver.Driver      = (*Memcached)(nil)
	_ driver.CASer       = (*Memcached)(nil)
	_ driver.MultiGetter = (*Memcached)(nil)
)

type Config struct {
	// Client takes precedence over Servers.
	Client  *memcache.Client
	Servers []string
	Timeout time.Duration
}

func New(cfg Config) (*Memcached, error) {
	mc := cfg.Client
	if mc == nil {
		if len(cfg.Servers) == 0 {
			return nil, driver.ErrNilClient
		}
		mc = memcache.New(cfg.Servers...)
	}
	if cfg.Timeout > 0 {
		mc.Timeout = cfg.Timeout
	}
	return &Memcached{mc: mc, now: time.Now}, nil
}

func (m *Memcached) Kind() driver.Kind                 { return driver.KindMemcached }
func (m *Memcached) Name() string                      { return "memcached" }
func (m *Memcached) Capabilities() driver.Capabilities { return caps }

func (m *Memcached) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	it, err := m.mc.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return it.Value, true, nil
}

func (m *Memcached) Set(ctx context.Context, key string, value []byte, _ []string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.mc.Set(m.item(key, value, ttl))
}

func (m *Memcached) Add(ctx context.Context, key string, value []byte, _ []string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := m.mc.Add(m.item(key, value, ttl))
	if errors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	return err == nil, err
}

func (m *Memcached) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := m.mc.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	return err == nil, err
}

func (m *Memcached) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.mc.FlushAll()
}

// DeleteExpired is a no-op: memcached expires items itself.
func (m *Memcached) DeleteExpired(context.Context) error { return nil }

// GetWithToken returns the fetched item as token; its CAS id travels with it.
func (m *Memcached) GetWithToken(ctx context.Context, key string) ([]byte, driver.Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, driver.Token{}, false, err
	}
	it, err := m.mc.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, driver.Token{}, false, nil
	}
	if err != nil {
		return nil, driver.Token{}, false, err
	}
	return it.Value, driver.NewToken(it), true, nil
}

func (m *Memcached) CAS(ctx context.Context, token driver.Token, key string, value []byte, _ []string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	it, ok := token.Value().(*memcache.Item)
	if !ok || it == nil || it.Key != key {
		return false, nil
	}
	next := *it
	next.Value = value
	next.Expiration = m.expiration(ttl)
	err := m.mc.CompareAndSwap(&next)
	if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) || errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	return err == nil, err
}

func (m *Memcached) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := m.mc.GetMulti(keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(items))
	for k, it := range items {
		out[k] = it.Value
	}
	return out, nil
}

// SetMulti issues one set per item; memcached has no multi-set.
func (m *Memcached) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for k, v := range items {
		if err := m.Set(ctx, k, v, nil, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks every server.
func (m *Memcached) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.mc.Ping()
}

// Close leaves the client open; gomemcache connections are pooled per server
// and released when idle.
func (m *Memcached) Close(context.Context) error { return nil }

func (m *Memcached) item(key string, value []byte, ttl time.Duration) *memcache.Item {
	return &memcache.Item{Key: key, Value: value, Expiration: m.expiration(ttl)}
}

func (m *Memcached) expiration(ttl time.Duration) int32 {
	return expiration(ttl, m.now())
}

// expiration converts ttl to memcached's exptime: 0 never expires, up to 30
// days is relative seconds, longer is an absolute unix time capped at the
// largest int32.
func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	if ttl > relativeLimit {
		return int32(min(now.Unix()+secs, math.MaxInt32))
	}
	return int32(secs)
}
