package cachekit

import (
	"context"
	"time"

	"github.com/unkn0wn-root/cachekit/internal/keys"
	"github.com/unkn0wn-root/cachekit/internal/wire"
)

// SoftState classifies a soft-expiry read.
type SoftState uint8

const (
	// Fresh: the entry is within its logical TTL.
	Fresh SoftState = iota + 1
	// StaleOwned: logically expired and this caller holds the refresh lock.
	StaleOwned
	// StaleWaiting: logically expired and another caller is refreshing.
	StaleWaiting
)

func (s SoftState) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case StaleOwned:
		return "stale_owned"
	case StaleWaiting:
		return "stale_waiting"
	default:
		return "unknown"
	}
}

// SoftResult is a soft-expiry read. Value is set for every state.
type SoftResult[V any] struct {
	Value     V
	State     SoftState
	ExpiresAt time.Time
}

// SetWithSoftExpiry stores v with a logical expiry of now+ttl. The backend keeps
// the entry for ttl+grace so stale readers can still be served while one of
// them refreshes. grace <= 0 uses Options.Grace. A successful write releases
// any pending refresh lock for key.
func (c *Client[V]) SetWithSoftExpiry(ctx context.Context, key string, v V, ttl, grace time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if grace <= 0 {
		grace = c.grace
	}
	k := c.key(key)
	payload, err := c.encode(k, v)
	if err != nil {
		return err
	}
	frame := wire.EncodeSoft(c.now().Add(ttl), payload)
	err = exec(c, func() error { return c.drv.Set(ctx, k, frame, nil, ttl+grace) })
	if c.rejected(k, err) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := c.rawDelete(ctx, keys.Lock(k)); err != nil {
		c.log.Warn("refresh lock release failed", Fields{"key": k, "err": err})
	}
	return nil
}

// GetWithSoftExpiry reads a soft-expiry entry. Past its logical expiry, exactly
// one concurrent caller gets StaleOwned (it should recompute and write back);
// the rest get StaleWaiting with the stale value. A frame that cannot be read is
// deleted and reported as a miss.
func (c *Client[V]) GetWithSoftExpiry(ctx context.Context, key string) (SoftResult[V], bool, error) {
	var res SoftResult[V]
	k := c.key(key)
	raw, ok, err := c.rawGet(ctx, k)
	if err != nil || !ok {
		return res, false, err
	}

	expiresAt, payload, err := wire.DecodeSoft(raw)
	if err != nil {
		c.selfHeal(ctx, k, "corrupt")
		return res, false, nil
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		c.selfHeal(ctx, k, "value_decode")
		return res, false, nil
	}
	res.Value, res.ExpiresAt = v, expiresAt

	if c.now().Before(expiresAt) {
		res.State = Fresh
		return res, true, nil
	}

	owned, err := c.addLock(ctx, keys.Lock(k), "1", c.lockTTL)
	if err != nil {
		return res, false, err
	}
	res.State = StaleWaiting
	if owned {
		res.State = StaleOwned
	}
	c.hooks.SoftExpiryStale(k, owned)
	return res, true, nil
}

func (c *Client[V]) selfHeal(ctx context.Context, k, reason string) {
	c.log.Warn("unreadable soft-expiry entry; deleting", Fields{"key": k, "reason": reason})
	_, _ = c.rawDelete(ctx, k)
	c.hooks.SelfHeal(k, reason)
}
