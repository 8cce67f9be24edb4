// Package asynchook moves hook delivery off the caller's goroutine.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	client, _ := cachekit.New(cachekit.Options[User]{
//	    Driver: drv,
//	    Codec:  codec.JSON[User]{},
//	    Hooks:  hooks,
//	})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/cachekit"
)

type Hooks struct {
	inner   cachekit.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ cachekit.Hooks = (*Hooks)(nil)

func New(inner cachekit.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = cachekit.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events fired after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) TagsUnsupported(d, op string) { h.try(func() { h.inner.TagsUnsupported(d, op) }) }
func (h *Hooks) OperationUnsupported(d, op string) {
	h.try(func() { h.inner.OperationUnsupported(d, op) })
}
func (h *Hooks) WriteRejected(k string)          { h.try(func() { h.inner.WriteRejected(k) }) }
func (h *Hooks) SelfHeal(k, r string)            { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) LockContended(k string)          { h.try(func() { h.inner.LockContended(k) }) }
func (h *Hooks) SoftExpiryStale(k string, o bool) { h.try(func() { h.inner.SoftExpiryStale(k, o) }) }
func (h *Hooks) GarbageCollected(d string, err error) {
	h.try(func() { h.inner.GarbageCollected(d, err) })
}
func (h *Hooks) BreakerStateChange(name, from, to string) {
	h.try(func() { h.inner.BreakerStateChange(name, from, to) })
}
