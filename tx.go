package cachekit

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/cachekit/driver"
)

// Tx buffers operations and applies them as one batch on Exec. Builder methods
// never touch the backend; the first encode error is reported by Exec.
// A Tx is not safe for concurrent use.
type Tx[V any] struct {
	c    *Client[V]
	ops  []driver.Op
	err  error
	done bool
}

// Begin starts a transaction buffer.
func (c *Client[V]) Begin() *Tx[V] {
	return &Tx[V]{c: c}
}

func (t *Tx[V]) Set(key string, v V, opts ...WriteOption) *Tx[V] {
	return t.write(driver.OpSet, key, v, opts)
}

func (t *Tx[V]) Add(key string, v V, opts ...WriteOption) *Tx[V] {
	return t.write(driver.OpAdd, key, v, opts)
}

func (t *Tx[V]) Delete(key string) *Tx[V] {
	t.ops = append(t.ops, driver.Op{Kind: driver.OpDelete, Key: t.c.key(key)})
	return t
}

func (t *Tx[V]) HSet(key, field string, v V) *Tx[V] {
	k := t.c.key(key)
	b, err := t.c.encode(k+"#"+field, v)
	if err != nil {
		t.fail(err)
		return t
	}
	t.ops = append(t.ops, driver.Op{Kind: driver.OpHSet, Key: k, Field: field, Value: b})
	return t
}

func (t *Tx[V]) HIncrementBy(key, field string, delta int64) *Tx[V] {
	t.ops = append(t.ops, driver.Op{Kind: driver.OpHIncrBy, Key: t.c.key(key), Field: field, Delta: delta})
	return t
}

func (t *Tx[V]) PushRight(key string, v V) *Tx[V] {
	k := t.c.key(key)
	b, err := t.c.encode(k, v)
	if err != nil {
		t.fail(err)
		return t
	}
	t.ops = append(t.ops, driver.Op{Kind: driver.OpRPush, Key: k, Value: b})
	return t
}

// Len returns the number of buffered operations.
func (t *Tx[V]) Len() int { return len(t.ops) }

// Exec sends the buffered ops as one batch. Results line up with the order the
// ops were added. Rollback is backend-dependent, see driver.Transactor: on
// Redis a failed op leaves the others applied, and Exec returns the per-op
// Results together with the error. An op kind the driver cannot batch is a
// *CapabilityError and nothing is applied.
func (t *Tx[V]) Exec(ctx context.Context) ([]driver.Result, error) {
	if t.done {
		return nil, ErrTxDone
	}
	t.done = true
	if t.err != nil {
		return nil, t.err
	}
	if t.c.tx == nil {
		return nil, t.c.unsupported("exec")
	}
	if len(t.ops) == 0 {
		return nil, nil
	}
	ops := t.ops
	t.ops = nil
	res, err := call(t.c, func() ([]driver.Result, error) { return t.c.tx.Exec(ctx, ops) })
	if errors.Is(err, driver.ErrUnsupported) {
		return nil, t.c.unsupported("exec")
	}
	return res, err
}

// Discard drops the buffer without contacting the backend.
func (t *Tx[V]) Discard() {
	t.ops = nil
	t.done = true
}

func (t *Tx[V]) write(kind driver.OpKind, key string, v V, opts []WriteOption) *Tx[V] {
	k := t.c.key(key)
	b, err := t.c.encode(k, v)
	if err != nil {
		t.fail(err)
		return t
	}
	o := t.c.writeOptions(opts)
	if len(o.tags) > 0 {
		t.c.log.Warn("tags are not applied inside transactions", Fields{"key": k, "op": kind.String()})
	}
	t.ops = append(t.ops, driver.Op{Kind: kind, Key: k, Value: b, TTL: o.ttl})
	return t
}

func (t *Tx[V]) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}
