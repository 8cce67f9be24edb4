package cachekit

import (
	"context"
	"errors"
	"time"
)

// Remember returns the cached value for key, or loads it with fn on a miss and
// stores it with opts. Concurrent misses for the same key in this process share
// one fn call. An unreadable cached value is treated as a miss and overwritten.
// fn errors are returned and nothing is stored.
func (c *Client[V]) Remember(ctx context.Context, key string, fn func(ctx context.Context) (V, error), opts ...WriteOption) (V, error) {
	v, ok, err := c.Get(ctx, key)
	var encErr *EncodingError
	switch {
	case err == nil && ok:
		return v, nil
	case err != nil && !errors.As(err, &encErr):
		return v, err
	}

	out, err, _ := c.sf.Do("remember:"+c.key(key), func() (any, error) {
		val, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, val, opts...); err != nil {
			c.log.Warn("remember: store failed", Fields{"key": c.key(key), "err": err})
		}
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ = out.(V)
	return v, nil
}

// RememberSoft is refresh-ahead caching on soft expiry. Fresh entries, and stale
// ones another caller is refreshing, are served from cache. The refresh owner
// and misses run fn and write back with ttl. When fn fails for the refresh
// owner, the stale value is served and the refresh lock released so the next
// reader may retry.
func (c *Client[V]) RememberSoft(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if ttl <= 0 {
		return zero, ErrInvalidTTL
	}
	res, ok, err := c.GetWithSoftExpiry(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok && res.State != StaleOwned {
		return res.Value, nil
	}

	if ok {
		v, err := fn(ctx)
		if err != nil {
			c.log.Warn("soft refresh failed; serving stale", Fields{"key": c.key(key), "err": err})
			if _, uerr := c.Unlock(ctx, key); uerr != nil {
				c.log.Warn("refresh lock release failed", Fields{"key": c.key(key), "err": uerr})
			}
			return res.Value, nil
		}
		c.storeSoft(ctx, key, v, ttl)
		return v, nil
	}

	out, err, _ := c.sf.Do("soft:"+c.key(key), func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.storeSoft(ctx, key, v, ttl)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	v, _ := out.(V)
	return v, nil
}

func (c *Client[V]) storeSoft(ctx context.Context, key string, v V, ttl time.Duration) {
	if err := c.SetWithSoftExpiry(ctx, key, v, ttl, 0); err != nil {
		c.log.Warn("soft refresh: store failed", Fields{"key": c.key(key), "err": err})
	}
}
