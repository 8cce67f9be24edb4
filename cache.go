package cachekit

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/cachekit/codec"
	"github.com/unkn0wn-root/cachekit/driver"
	"github.com/unkn0wn-root/cachekit/internal/keys"
)

// Client is the cache facade. It is safe for concurrent use.
type Client[V any] struct {
	name      string
	ns        string
	drv       driver.Driver
	codec     codec.Codec[V]
	log       Logger
	hooks     Hooks
	lifetime  time.Duration
	lockTTL   time.Duration
	grace     time.Duration
	gcTimeout time.Duration
	now       func() time.Time
	cb        *gobreaker.CircuitBreaker
	sf        *singleflight.Group

	// capability views; nil when the driver lacks them
	cas    driver.CASer
	tagger driver.Tagger
	multi  driver.MultiGetter
	hash   driver.Hasher
	list   driver.Lister
	sets   driver.SetStore
	zsets  driver.SortedSetStore
	tx     driver.Transactor
	raw    driver.RawCommander
}

func (c *Client[V]) bindCapabilities() {
	caps := c.drv.Capabilities()
	if v, ok := c.drv.(driver.CASer); ok && caps.Has(driver.CapCAS) {
		c.cas = v
	}
	if v, ok := c.drv.(driver.Tagger); ok && caps.Has(driver.CapTags) {
		c.tagger = v
	}
	if v, ok := c.drv.(driver.MultiGetter); ok && caps.Has(driver.CapMulti) {
		c.multi = v
	}
	if v, ok := c.drv.(driver.Hasher); ok && caps.Has(driver.CapHash) {
		c.hash = v
	}
	if v, ok := c.drv.(driver.Lister); ok && caps.Has(driver.CapList) {
		c.list = v
	}
	if v, ok := c.drv.(driver.SetStore); ok && caps.Has(driver.CapSet) {
		c.sets = v
	}
	if v, ok := c.drv.(driver.SortedSetStore); ok && caps.Has(driver.CapSortedSet) {
		c.zsets = v
	}
	if v, ok := c.drv.(driver.Transactor); ok && caps.Has(driver.CapTx) {
		c.tx = v
	}
	if v, ok := c.drv.(driver.RawCommander); ok && caps.Has(driver.CapRaw) {
		c.raw = v
	}
}

func (c *Client[V]) newBreaker(st gobreaker.Settings) *gobreaker.CircuitBreaker {
	if st.Name == "" {
		st.Name = c.name
	}
	if st.IsSuccessful == nil {
		st.IsSuccessful = func(err error) bool {
			// capability gaps and caller cancellation say nothing about backend health
			return err == nil ||
				errors.Is(err, driver.ErrUnsupported) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, driver.ErrRejected)
		}
	}
	user := st.OnStateChange
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		c.log.Warn("circuit breaker state changed", Fields{"breaker": name, "from": from.String(), "to": to.String()})
		c.hooks.BreakerStateChange(name, from.String(), to.String())
		if user != nil {
			user(name, from, to)
		}
	}
	return gobreaker.NewCircuitBreaker(st)
}

// call runs fn through the breaker when one is configured.
func call[V, T any](c *Client[V], fn func() (T, error)) (T, error) {
	if c.cb == nil {
		return fn()
	}
	out, err := c.cb.Execute(func() (any, error) { return fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, &ConnectionError{Driver: c.drv.Name(), Err: err}
	}
	v, _ := out.(T)
	return v, err
}

func exec[V any](c *Client[V], fn func() error) error {
	_, err := call(c, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

type lookup struct {
	b  []byte
	ok bool
}

func (c *Client[V]) rawGet(ctx context.Context, k string) ([]byte, bool, error) {
	r, err := call(c, func() (lookup, error) {
		b, ok, err := c.drv.Get(ctx, k)
		return lookup{b, ok}, err
	})
	return r.b, r.ok, err
}

func (c *Client[V]) rawAdd(ctx context.Context, k string, b []byte, tags []string, ttl time.Duration) (bool, error) {
	return call(c, func() (bool, error) { return c.drv.Add(ctx, k, b, tags, ttl) })
}

func (c *Client[V]) rawDelete(ctx context.Context, k string) (bool, error) {
	return call(c, func() (bool, error) { return c.drv.Delete(ctx, k) })
}

func (c *Client[V]) key(k string) string { return keys.Storage(c.ns, k) }

func (c *Client[V]) encode(key string, v V) ([]byte, error) {
	b, err := c.codec.Encode(v)
	if err != nil {
		return nil, &EncodingError{Key: key, Op: "encode", Err: err}
	}
	return b, nil
}

func (c *Client[V]) decode(key string, b []byte) (V, error) {
	v, err := c.codec.Decode(b)
	if err != nil {
		var zero V
		return zero, &EncodingError{Key: key, Op: "decode", Err: err}
	}
	return v, nil
}

func (c *Client[V]) unsupported(op string) error {
	c.log.Warn("operation not supported by driver", Fields{"driver": c.drv.Name(), "op": op})
	c.hooks.OperationUnsupported(c.drv.Name(), op)
	return &CapabilityError{Driver: c.drv.Name(), Op: op}
}

// storageTags namespaces tags and drops them on drivers without a tag index.
func (c *Client[V]) storageTags(op string, tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	if c.tagger == nil {
		c.log.Warn("tags not supported by driver; dropped", Fields{"driver": c.drv.Name(), "op": op, "tags": tags})
		c.hooks.TagsUnsupported(c.drv.Name(), op)
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = c.key(t)
	}
	return out
}

// rejected reports a write the driver refused. The write is treated as a
// cache miss for later readers rather than a failure.
func (c *Client[V]) rejected(k string, err error) bool {
	if !errors.Is(err, driver.ErrRejected) {
		return false
	}
	c.log.Warn("write rejected by driver", Fields{"driver": c.drv.Name(), "key": k})
	c.hooks.WriteRejected(k)
	return true
}

func (c *Client[V]) Name() string                      { return c.name }
func (c *Client[V]) Namespace() string                 { return c.ns }
func (c *Client[V]) Kind() driver.Kind                 { return c.drv.Kind() }
func (c *Client[V]) Capabilities() driver.Capabilities { return c.drv.Capabilities() }

// Driver exposes the underlying driver.
func (c *Client[V]) Driver() driver.Driver { return c.drv }

func (c *Client[V]) Close(ctx context.Context) error {
	return c.drv.Close(ctx)
}

// Get returns (v, true, nil) on hit and (zero, false, nil) on miss. A stored
// value the codec cannot read is an *EncodingError.
func (c *Client[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	k := c.key(key)
	b, ok, err := c.rawGet(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := c.decode(k, b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// GetMulti returns hits keyed by the caller's keys; misses are omitted. It is
// one round trip on drivers with multi-get and sequential gets otherwise.
func (c *Client[V]) GetMulti(ctx context.Context, ks []string) (map[string]V, error) {
	out := make(map[string]V, len(ks))
	if len(ks) == 0 {
		return out, nil
	}
	if c.multi == nil {
		for _, key := range ks {
			v, ok, err := c.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if ok {
				out[key] = v
			}
		}
		return out, nil
	}

	storage := make([]string, len(ks))
	for i, key := range ks {
		storage[i] = c.key(key)
	}
	raw, err := call(c, func() (map[string][]byte, error) { return c.multi.GetMulti(ctx, storage) })
	if err != nil {
		return nil, err
	}
	for i, key := range ks {
		b, ok := raw[storage[i]]
		if !ok {
			continue
		}
		v, err := c.decode(storage[i], b)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// Find returns the (un-namespaced) keys carrying tag. Drivers without a tag
// index return nothing.
func (c *Client[V]) Find(ctx context.Context, tag string) ([]string, error) {
	if c.tagger == nil {
		c.storageTags("find", []string{tag})
		return nil, nil
	}
	found, err := call(c, func() ([]string, error) { return c.tagger.Find(ctx, c.key(tag)) })
	if err != nil {
		return nil, err
	}
	for i, k := range found {
		found[i] = keys.StripNamespace(c.ns, k)
	}
	return found, nil
}

func (c *Client[V]) Set(ctx context.Context, key string, v V, opts ...WriteOption) error {
	k := c.key(key)
	b, err := c.encode(k, v)
	if err != nil {
		return err
	}
	o := c.writeOptions(opts)
	tags := c.storageTags("set", o.tags)
	err = exec(c, func() error { return c.drv.Set(ctx, k, b, tags, o.ttl) })
	if c.rejected(k, err) {
		return nil
	}
	return err
}

// SetMulti writes every item with the same TTL. Tagged writes go key by key
// since multi-set carries no tags.
func (c *Client[V]) SetMulti(ctx context.Context, items map[string]V, opts ...WriteOption) error {
	if len(items) == 0 {
		return nil
	}
	o := c.writeOptions(opts)
	enc := make(map[string][]byte, len(items))
	for key, v := range items {
		k := c.key(key)
		b, err := c.encode(k, v)
		if err != nil {
			return err
		}
		enc[k] = b
	}

	if c.multi != nil && len(o.tags) == 0 {
		err := exec(c, func() error { return c.multi.SetMulti(ctx, enc, o.ttl) })
		if c.rejected("set_multi", err) {
			return nil
		}
		return err
	}
	tags := c.storageTags("set_multi", o.tags)
	for k, b := range enc {
		err := exec(c, func() error { return c.drv.Set(ctx, k, b, tags, o.ttl) })
		if err != nil && !c.rejected(k, err) {
			return err
		}
	}
	return nil
}

// Add writes only when key is absent. It reports false when the key exists.
func (c *Client[V]) Add(ctx context.Context, key string, v V, opts ...WriteOption) (bool, error) {
	k := c.key(key)
	b, err := c.encode(k, v)
	if err != nil {
		return false, err
	}
	o := c.writeOptions(opts)
	ok, err := c.rawAdd(ctx, k, b, c.storageTags("add", o.tags), o.ttl)
	if c.rejected(k, err) {
		return false, nil
	}
	return ok, err
}

func (c *Client[V]) Delete(ctx context.Context, key string) (bool, error) {
	return c.rawDelete(ctx, c.key(key))
}

// DeleteTag removes every key carrying tag. Drivers without a tag index log a
// warning and report false.
func (c *Client[V]) DeleteTag(ctx context.Context, tag string) (bool, error) {
	if c.tagger == nil {
		c.storageTags("delete_tag", []string{tag})
		return false, nil
	}
	return call(c, func() (bool, error) { return c.tagger.DeleteTag(ctx, c.key(tag)) })
}

// DeleteAll flushes the whole backend store, not just this namespace.
func (c *Client[V]) DeleteAll(ctx context.Context) error {
	return exec(c, func() error { return c.drv.DeleteAll(ctx) })
}

func (c *Client[V]) DeleteExpired(ctx context.Context) error {
	return exec(c, func() error { return c.drv.DeleteExpired(ctx) })
}
