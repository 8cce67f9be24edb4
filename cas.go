package cachekit

import (
	"context"

	"github.com/unkn0wn-root/cachekit/driver"
)

type tokenLookup struct {
	b   []byte
	tok driver.Token
	ok  bool
}

// GetWithToken reads key together with a CAS token for a later CAS call.
//
// CAS pattern:
//
//	v, tok, ok, _ := c.GetWithToken(ctx, k)
//	v.Count++
//	swapped, _ := c.CAS(ctx, tok, k, v) // false => someone wrote in between; retry
func (c *Client[V]) GetWithToken(ctx context.Context, key string) (V, driver.Token, bool, error) {
	var zero V
	if c.cas == nil {
		return zero, driver.Token{}, false, c.unsupported("get_with_token")
	}
	k := c.key(key)
	r, err := call(c, func() (tokenLookup, error) {
		b, tok, ok, err := c.cas.GetWithToken(ctx, k)
		return tokenLookup{b, tok, ok}, err
	})
	if err != nil || !r.ok {
		return zero, driver.Token{}, false, err
	}
	v, err := c.decode(k, r.b)
	if err != nil {
		return zero, driver.Token{}, false, err
	}
	return v, r.tok, true, nil
}

// CAS writes v only if key still holds the value token was issued for.
func (c *Client[V]) CAS(ctx context.Context, token driver.Token, key string, v V, opts ...WriteOption) (bool, error) {
	if c.cas == nil {
		return false, c.unsupported("cas")
	}
	k := c.key(key)
	b, err := c.encode(k, v)
	if err != nil {
		return false, err
	}
	o := c.writeOptions(opts)
	tags := c.storageTags("cas", o.tags)
	return call(c, func() (bool, error) { return c.cas.CAS(ctx, token, k, b, tags, o.ttl) })
}
