package cachekit

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/cachekit/driver"
	"github.com/unkn0wn-root/cachekit/internal/keys"
)

// releaseScript deletes the lock only while it still holds the caller's token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Lock takes the lock for key with a set-if-absent. ttl <= 0 uses
// Options.LockTTL. It reports false when the lock is already held.
func (c *Client[V]) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = c.lockTTL
	}
	return c.addLock(ctx, keys.Lock(c.key(key)), "1", ttl)
}

// addLock sets the lock key if absent. A write the driver refused counts as
// not acquired.
func (c *Client[V]) addLock(ctx context.Context, lk, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rawAdd(ctx, lk, []byte(owner), nil, ttl)
	if c.rejected(lk, err) {
		return false, nil
	}
	return ok, err
}

// Unlock drops the lock for key regardless of who holds it.
func (c *Client[V]) Unlock(ctx context.Context, key string) (bool, error) {
	return c.rawDelete(ctx, keys.Lock(c.key(key)))
}

// LockHandle is an acquired lock. Release is idempotent.
type LockHandle struct {
	key   string
	owner string
	until time.Time

	once    sync.Once
	err     error
	release func(ctx context.Context) error
}

// Key returns the backend lock key.
func (h *LockHandle) Key() string { return h.key }

// Owner returns the token stored as the lock value.
func (h *LockHandle) Owner() string { return h.owner }

// Expires returns when the lock lapses on its own if never released.
func (h *LockHandle) Expires() time.Time { return h.until }

// Release deletes the lock if this handle still owns it. ErrNotOwner means the
// lock expired or was taken by someone else first.
func (h *LockHandle) Release(ctx context.Context) error {
	h.once.Do(func() { h.err = h.release(ctx) })
	return h.err
}

// Acquire takes the lock for key under a fresh owner token. It returns
// ErrLockHeld when another owner holds it.
func (c *Client[V]) Acquire(ctx context.Context, key string, ttl time.Duration) (*LockHandle, error) {
	if ttl <= 0 {
		ttl = c.lockTTL
	}
	lk := keys.Lock(c.key(key))
	owner := uuid.NewString()
	ok, err := c.addLock(ctx, lk, owner, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.log.Debug("lock contended", Fields{"key": lk})
		c.hooks.LockContended(lk)
		return nil, ErrLockHeld
	}
	h := &LockHandle{key: lk, owner: owner, until: c.now().Add(ttl)}
	h.release = func(ctx context.Context) error { return c.releaseOwned(ctx, lk, owner) }
	return h, nil
}

// releaseOwned is atomic on Redis (script). Elsewhere it is read, compare,
// delete; a lock that expires and is re-taken between the read and the
// delete can be dropped.
func (c *Client[V]) releaseOwned(ctx context.Context, lk, owner string) error {
	if c.raw != nil && c.drv.Kind() == driver.KindRedis {
		n, err := call(c, func() (any, error) { return c.raw.Do(ctx, "EVAL", releaseScript, 1, lk, owner) })
		if err != nil {
			return err
		}
		if v, _ := n.(int64); v == 1 {
			return nil
		}
		return ErrNotOwner
	}

	cur, ok, err := c.rawGet(ctx, lk)
	if err != nil {
		return err
	}
	if !ok || string(cur) != owner {
		return ErrNotOwner
	}
	_, err = c.rawDelete(ctx, lk)
	return err
}

// WithLock runs fn while holding the lock for key. The lock is released when
// fn returns, errors or panics. Release still succeeds after ctx is cancelled.
func (c *Client[V]) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (err error) {
	h, err := c.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		rerr := h.Release(context.WithoutCancel(ctx))
		if rerr != nil && !errors.Is(rerr, ErrNotOwner) {
			c.log.Warn("lock release failed", Fields{"key": h.key, "err": rerr})
			err = errors.Join(err, rerr)
		}
	}()
	return fn(ctx)
}

// Scope groups locks taken for one unit of work and releases them together,
// newest first.
type Scope struct {
	mu      sync.Mutex
	handles []*LockHandle
	closed  bool
}

func NewScope() *Scope { return &Scope{} }

// Add hands h to the scope. On a closed scope h is released immediately.
func (s *Scope) Add(ctx context.Context, h *LockHandle) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = h.Release(ctx)
		return ErrScopeClosed
	}
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return nil
}

// Len returns the number of held handles.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close releases every handle in reverse acquisition order. Locks that already
// lapsed are not errors. Close is idempotent.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	hs := s.handles
	s.handles, s.closed = nil, true
	s.mu.Unlock()

	var errs []error
	for _, h := range slices.Backward(hs) {
		if err := h.Release(ctx); err != nil && !errors.Is(err, ErrNotOwner) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LockIn acquires the lock for key into scope.
func (c *Client[V]) LockIn(ctx context.Context, scope *Scope, key string, ttl time.Duration) (*LockHandle, error) {
	h, err := c.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if err := scope.Add(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}
