// Package sloghooks reports cachekit hook events to a *slog.Logger.
package sloghooks

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/cachekit"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	StaleEvery     uint64
	ContendedEvery uint64
	// Optional key redactor. Defaults to an xxhash hex digest.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	staleCtr     atomic.Uint64
	contendedCtr atomic.Uint64
}

var _ cachekit.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return strconv.FormatUint(xxhash.Sum64String(k), 16)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) TagsUnsupported(driver, op string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachekit.tags_unsupported", "driver", driver, "op", op)
}

func (h *Hooks) OperationUnsupported(driver, op string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachekit.operation_unsupported", "driver", driver, "op", op)
}

func (h *Hooks) WriteRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachekit.write_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("cachekit.self_heal", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) LockContended(lockKey string) {
	if h.l == nil || !sample(h.opts.ContendedEvery, &h.contendedCtr) {
		return
	}
	h.l.Debug("cachekit.lock_contended", "key", h.redact(lockKey))
}

func (h *Hooks) SoftExpiryStale(storageKey string, owned bool) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("cachekit.soft_expiry_stale", "key", h.redact(storageKey), "owned", owned)
}

func (h *Hooks) GarbageCollected(driver string, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("cachekit.gc_failed", "driver", driver, "err", err)
		return
	}
	h.l.Info("cachekit.gc", "driver", driver)
}

func (h *Hooks) BreakerStateChange(name, from, to string) {
	if h.l == nil {
		return
	}
	h.l.Error("cachekit.breaker_state_change", "breaker", name, "from", from, "to", to)
}
