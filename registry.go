package cachekit

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/cachekit/codec"
	"github.com/unkn0wn-root/cachekit/config"
	"github.com/unkn0wn-root/cachekit/driver"
)

// RegistryOptions are shared by every client a Registry builds.
type RegistryOptions struct {
	Logger  Logger
	Hooks   Hooks
	Breaker *gobreaker.Settings

	// Open overrides driver construction (tests, custom backends). Defaults to OpenDriver.
	Open func(ctx context.Context, g config.Group) (driver.Driver, error)
}

// Registry builds one client per configuration group on first use and reuses it.
type Registry[V any] struct {
	p    config.Provider
	opts RegistryOptions

	sf      singleflight.Group
	mu      sync.Mutex
	clients map[string]*Client[V]
}

func NewRegistry[V any](p config.Provider, opts RegistryOptions) *Registry[V] {
	if opts.Open == nil {
		opts.Open = OpenDriver
	}
	return &Registry[V]{p: p, opts: opts, clients: make(map[string]*Client[V])}
}

// Client returns the client for group name, constructing it once. Config
// problems are *ConfigError; unreachable backends *ConnectionError.
// Concurrent first calls for one group share a single build; other groups are
// not blocked while a backend is dialed.
func (r *Registry[V]) Client(ctx context.Context, name string) (*Client[V], error) {
	if name == "" {
		name = "default"
	}
	if c, ok := r.cached(name); ok {
		return c, nil
	}
	v, err, _ := r.sf.Do(name, func() (any, error) {
		if c, ok := r.cached(name); ok {
			return c, nil
		}
		c, err := r.build(ctx, name)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.clients[name] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client[V]), nil
}

func (r *Registry[V]) cached(name string) (*Client[V], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[name]
	return c, ok
}

func (r *Registry[V]) build(ctx context.Context, name string) (*Client[V], error) {
	g, err := config.LoadGroup(r.p, name)
	if err != nil {
		return nil, &ConfigError{Group: name, Err: err}
	}
	cd, err := codec.ByName[V](g.Serialize)
	if err != nil {
		return nil, &ConfigError{Group: name, Err: err}
	}
	drv, err := r.opts.Open(ctx, g)
	if err != nil {
		return nil, err
	}

	c, err := New(Options[V]{
		Driver:     drv,
		Codec:      cd,
		Name:       name,
		Namespace:  g.Namespace,
		Logger:     r.opts.Logger,
		Hooks:      r.opts.Hooks,
		Lifetime:   g.Lifetime,
		GCRequests: g.Requests,
		LockTTL:    g.LockTTL,
		Grace:      g.Grace,
		Breaker:    r.opts.Breaker,
	})
	if err != nil {
		_ = drv.Close(ctx)
		return nil, &ConfigError{Group: name, Err: err}
	}
	return c, nil
}

// Names returns the groups with a live client, sorted.
func (r *Registry[V]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.clients))
	for n := range r.clients {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close closes and forgets every client. Errors are joined.
func (r *Registry[V]) Close(ctx context.Context) error {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client[V])
	r.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
