package cachekit

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/cachekit/codec"
	"github.com/unkn0wn-root/cachekit/driver"
)

// Options configure a Client. Only Driver and Codec are required; others have
// sensible defaults.
type Options[V any] struct {
	// Required
	Driver driver.Driver
	Codec  codec.Codec[V]

	Name      string // label for logs, hooks and the memo view; defaults to the driver name
	Namespace string // prepended as "<ns>:" to every key

	Logger     Logger        // if nil, NopLogger is used
	Hooks      Hooks         // if nil, NopHooks is used
	Lifetime   time.Duration // TTL when WithTTL is omitted; 0 => 30m, NoExpiry => forever
	GCRequests int           // 1-in-N constructions sweep expired entries; 0 disables
	GCTimeout  time.Duration // bound on that sweep; 0 => 5s
	LockTTL    time.Duration // refresh and mutual-exclusion locks; 0 => 30s
	Grace      time.Duration // soft-expiry grace window; 0 => 10s

	// Breaker wraps every driver call in a circuit breaker when set.
	Breaker *gobreaker.Settings

	// Now overrides the clock used for soft expiry (tests).
	Now func() time.Time
}

// WriteOption adjusts a single write.
type WriteOption func(*writeOpts)

type writeOpts struct {
	tags   []string
	ttl    time.Duration
	ttlSet bool
}

// WithTags attaches tags to the written key. Drivers without a tag index drop
// them with a warning.
func WithTags(tags ...string) WriteOption {
	return func(o *writeOpts) { o.tags = append(o.tags, tags...) }
}

// WithTTL sets an explicit TTL. 0 and NoExpiry store without expiry.
func WithTTL(d time.Duration) WriteOption {
	return func(o *writeOpts) { o.ttl, o.ttlSet = d, true }
}

// New builds a Client over opts.Driver. With GCRequests > 0 there is a 1 in
// GCRequests chance that a background DeleteExpired sweep is started.
func New[V any](opts Options[V]) (*Client[V], error) {
	if opts.Driver == nil {
		return nil, errors.New("cachekit: driver is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("cachekit: codec is required")
	}

	c := &Client[V]{
		drv:   opts.Driver,
		codec: opts.Codec,
		ns:    opts.Namespace,
		sf:    &singleflight.Group{},
	}

	// defaults
	c.name = coalesce(opts.Name, opts.Driver.Name())
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.lifetime = coalesce(opts.Lifetime, defaultLifetime)
	c.lockTTL = coalesce(opts.LockTTL, defaultLockTTL)
	c.grace = coalesce(opts.Grace, defaultGrace)
	c.gcTimeout = coalesce(opts.GCTimeout, defaultGCTimeout)
	c.now = opts.Now
	if c.now == nil {
		c.now = time.Now
	}

	c.bindCapabilities()

	if opts.Breaker != nil {
		c.cb = c.newBreaker(*opts.Breaker)
	}

	c.log.Debug("cache client ready", Fields{
		"name":   c.name,
		"driver": c.drv.Name(),
		"caps":   c.drv.Capabilities().String(),
		"ns":     c.ns,
	})

	if opts.GCRequests > 0 && rand.IntN(opts.GCRequests) == 0 {
		go c.collect()
	}
	return c, nil
}

// collect runs one bounded DeleteExpired sweep.
func (c *Client[V]) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.gcTimeout)
	defer cancel()

	c.log.Debug("expired-entry sweep triggered", Fields{"driver": c.drv.Name()})
	err := c.DeleteExpired(ctx)
	if err != nil {
		c.log.Warn("expired-entry sweep failed", Fields{"driver": c.drv.Name(), "err": err})
	}
	c.hooks.GarbageCollected(c.drv.Name(), err)
}

func (c *Client[V]) writeOptions(opts []WriteOption) writeOpts {
	var o writeOpts
	for _, fn := range opts {
		fn(&o)
	}
	if !o.ttlSet {
		o.ttl = c.lifetime
	}
	if o.ttl < 0 {
		o.ttl = 0
	}
	return o
}

// explicitTTL is the TTL for hash writes: only an explicit WithTTL expires a hash.
func (o writeOpts) explicitTTL() time.Duration {
	if !o.ttlSet {
		return 0
	}
	return o.ttl
}
