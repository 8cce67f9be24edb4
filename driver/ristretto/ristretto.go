// Package ristretto is an in-process shared-memory driver on dgraph-io/ristretto.
// It supports scalar KV only; the store may refuse writes under cost pressure.
package ristretto

import (
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/cachekit/driver"
)

type Driver struct {
	c *rc.Cache
	// addMu serializes Add so that the read-then-write is atomic within the process.
	addMu sync.Mutex
}

var _ driver.Driver = (*Driver)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // total cost budget; each entry costs len(key)+len(value)
	BufferItems int64
	Metrics     bool
}

// DefaultConfig sizes the store for roughly 64 MiB of payload.
func DefaultConfig() Config {
	return Config{NumCounters: 1e6, MaxCost: 64 << 20, BufferItems: 64}
}

func New(cfg Config) (*Driver, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Driver{c: c}, nil
}

func (d *Driver) Kind() driver.Kind                 { return driver.KindLocal }
func (d *Driver) Name() string                      { return "ristretto" }
func (d *Driver) Capabilities() driver.Capabilities { return driver.CapKV }

func (d *Driver) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := d.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		// self-heal: drop unexpected entry shape
		d.c.Del(key)
		return nil, false, nil
	}
	return append([]byte{}, b...), true, nil
}

// Set returns driver.ErrRejected when the admission policy drops the write.
func (d *Driver) Set(_ context.Context, key string, value []byte, _ []string, ttl time.Duration) error {
	return d.set(key, value, ttl)
}

func (d *Driver) Add(_ context.Context, key string, value []byte, _ []string, ttl time.Duration) (bool, error) {
	d.addMu.Lock()
	defer d.addMu.Unlock()
	if _, ok := d.c.Get(key); ok {
		return false, nil
	}
	if err := d.set(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Driver) Delete(_ context.Context, key string) (bool, error) {
	_, ok := d.c.Get(key)
	d.c.Del(key)
	d.c.Wait()
	return ok, nil
}

func (d *Driver) DeleteAll(context.Context) error {
	d.c.Clear()
	return nil
}

// DeleteExpired is a no-op: ristretto expires entries itself.
func (d *Driver) DeleteExpired(context.Context) error { return nil }

// Metrics exposes ristretto counters; nil unless Config.Metrics was set.
func (d *Driver) Metrics() *rc.Metrics { return d.c.Metrics }

func (d *Driver) Close(_ context.Context) error {
	d.c.Wait()
	d.c.Close()
	return nil
}

func (d *Driver) set(key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	b := append([]byte{}, value...)
	if !d.c.SetWithTTL(key, b, int64(len(key)+len(b)), ttl) {
		return driver.ErrRejected
	}
	// buffered writes become visible only after Wait
	d.c.Wait()
	return nil
}
