package cachekit

import (
	"context"

	"github.com/unkn0wn-root/cachekit/driver"
)

// Hash fields and set members are passed through verbatim; only the key is
// normalized. Hash and list values go through the codec, set and sorted-set
// members do not.

func (c *Client[V]) HGet(ctx context.Context, key, field string) (V, bool, error) {
	var zero V
	if c.hash == nil {
		return zero, false, c.unsupported("hget")
	}
	k := c.key(key)
	r, err := call(c, func() (lookup, error) {
		b, ok, err := c.hash.HGet(ctx, k, field)
		return lookup{b, ok}, err
	})
	if err != nil || !r.ok {
		return zero, false, err
	}
	v, err := c.decode(k+"#"+field, r.b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (c *Client[V]) HSet(ctx context.Context, key, field string, v V) error {
	if c.hash == nil {
		return c.unsupported("hset")
	}
	k := c.key(key)
	b, err := c.encode(k+"#"+field, v)
	if err != nil {
		return err
	}
	return exec(c, func() error { return c.hash.HSet(ctx, k, field, b) })
}

// HSetIfAbsent writes field only when it is not yet set. The hash expires only
// when WithTTL is given.
func (c *Client[V]) HSetIfAbsent(ctx context.Context, key, field string, v V, opts ...WriteOption) (bool, error) {
	if c.hash == nil {
		return false, c.unsupported("hsetnx")
	}
	k := c.key(key)
	b, err := c.encode(k+"#"+field, v)
	if err != nil {
		return false, err
	}
	ttl := c.writeOptions(opts).explicitTTL()
	return call(c, func() (bool, error) { return c.hash.HSetNX(ctx, k, field, b, ttl) })
}

// HMGet returns present fields only; absent fields are omitted, not zero.
func (c *Client[V]) HMGet(ctx context.Context, key string, fields []string) (map[string]V, error) {
	if c.hash == nil {
		return nil, c.unsupported("hmget")
	}
	k := c.key(key)
	raw, err := call(c, func() (map[string][]byte, error) { return c.hash.HMGet(ctx, k, fields) })
	if err != nil {
		return nil, err
	}
	return c.decodeFields(k, raw)
}

// HMSet writes several fields at once. The hash expires only when WithTTL is given.
func (c *Client[V]) HMSet(ctx context.Context, key string, fields map[string]V, opts ...WriteOption) error {
	if c.hash == nil {
		return c.unsupported("hmset")
	}
	k := c.key(key)
	enc := make(map[string][]byte, len(fields))
	for f, v := range fields {
		b, err := c.encode(k+"#"+f, v)
		if err != nil {
			return err
		}
		enc[f] = b
	}
	ttl := c.writeOptions(opts).explicitTTL()
	return exec(c, func() error { return c.hash.HMSet(ctx, k, enc, ttl) })
}

func (c *Client[V]) HGetAll(ctx context.Context, key string) (map[string]V, error) {
	if c.hash == nil {
		return nil, c.unsupported("hgetall")
	}
	k := c.key(key)
	raw, err := call(c, func() (map[string][]byte, error) { return c.hash.HGetAll(ctx, k) })
	if err != nil {
		return nil, err
	}
	return c.decodeFields(k, raw)
}

func (c *Client[V]) HDelete(ctx context.Context, key string, fields ...string) (int64, error) {
	if c.hash == nil {
		return 0, c.unsupported("hdel")
	}
	k := c.key(key)
	return call(c, func() (int64, error) { return c.hash.HDel(ctx, k, fields...) })
}

// HIncrementBy adds delta to an integer field and returns the new value.
func (c *Client[V]) HIncrementBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if c.hash == nil {
		return 0, c.unsupported("hincrby")
	}
	k := c.key(key)
	return call(c, func() (int64, error) { return c.hash.HIncrBy(ctx, k, field, delta) })
}

func (c *Client[V]) decodeFields(k string, raw map[string][]byte) (map[string]V, error) {
	out := make(map[string]V, len(raw))
	for f, b := range raw {
		v, err := c.decode(k+"#"+f, b)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// PushRight appends v to the list at key and returns the new length.
func (c *Client[V]) PushRight(ctx context.Context, key string, v V) (int64, error) {
	return c.push(ctx, key, v, true)
}

// PushLeft prepends v to the list at key and returns the new length.
func (c *Client[V]) PushLeft(ctx context.Context, key string, v V) (int64, error) {
	return c.push(ctx, key, v, false)
}

func (c *Client[V]) push(ctx context.Context, key string, v V, right bool) (int64, error) {
	op := "lpush"
	if right {
		op = "rpush"
	}
	if c.list == nil {
		return 0, c.unsupported(op)
	}
	k := c.key(key)
	b, err := c.encode(k, v)
	if err != nil {
		return 0, err
	}
	return call(c, func() (int64, error) {
		if right {
			return c.list.RPush(ctx, k, b)
		}
		return c.list.LPush(ctx, k, b)
	})
}

// PopLeft removes and returns the head of the list at key.
func (c *Client[V]) PopLeft(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if c.list == nil {
		return zero, false, c.unsupported("lpop")
	}
	k := c.key(key)
	r, err := call(c, func() (lookup, error) {
		b, ok, err := c.list.LPop(ctx, k)
		return lookup{b, ok}, err
	})
	if err != nil || !r.ok {
		return zero, false, err
	}
	v, err := c.decode(k, r.b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (c *Client[V]) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	if c.sets == nil {
		return 0, c.unsupported("sadd")
	}
	k := c.key(key)
	return call(c, func() (int64, error) { return c.sets.SAdd(ctx, k, members...) })
}

func (c *Client[V]) SMembers(ctx context.Context, key string) ([]string, error) {
	if c.sets == nil {
		return nil, c.unsupported("smembers")
	}
	k := c.key(key)
	return call(c, func() ([]string, error) { return c.sets.SMembers(ctx, k) })
}

// SDiff returns the members of the first set missing from all the others.
func (c *Client[V]) SDiff(ctx context.Context, first string, others ...string) ([]string, error) {
	if c.sets == nil {
		return nil, c.unsupported("sdiff")
	}
	ks := make([]string, 0, 1+len(others))
	ks = append(ks, c.key(first))
	for _, o := range others {
		ks = append(ks, c.key(o))
	}
	return call(c, func() ([]string, error) { return c.sets.SDiff(ctx, ks...) })
}

func (c *Client[V]) ZAdd(ctx context.Context, key string, members ...driver.ScoredMember) (int64, error) {
	if c.zsets == nil {
		return 0, c.unsupported("zadd")
	}
	k := c.key(key)
	return call(c, func() (int64, error) { return c.zsets.ZAdd(ctx, k, members...) })
}

// ZRange returns members by rank with their scores; stop -1 means the last member.
func (c *Client[V]) ZRange(ctx context.Context, key string, start, stop int64) ([]driver.ScoredMember, error) {
	if c.zsets == nil {
		return nil, c.unsupported("zrange")
	}
	k := c.key(key)
	return call(c, func() ([]driver.ScoredMember, error) { return c.zsets.ZRange(ctx, k, start, stop) })
}

func (c *Client[V]) ZCard(ctx context.Context, key string) (int64, error) {
	if c.zsets == nil {
		return 0, c.unsupported("zcard")
	}
	k := c.key(key)
	return call(c, func() (int64, error) { return c.zsets.ZCard(ctx, k) })
}

// ZRemRangeByScore removes members scored within [min, max]. Bounds use the
// backend syntax, e.g. "-inf", "(5".
func (c *Client[V]) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	if c.zsets == nil {
		return 0, c.unsupported("zremrangebyscore")
	}
	k := c.key(key)
	return call(c, func() (int64, error) { return c.zsets.ZRemRangeByScore(ctx, k, min, max) })
}

// Raw sends a backend-native command. Keys inside args are not normalized.
func (c *Client[V]) Raw(ctx context.Context, args ...any) (any, error) {
	if c.raw == nil {
		return nil, c.unsupported("raw")
	}
	return call(c, func() (any, error) { return c.raw.Do(ctx, args...) })
}
