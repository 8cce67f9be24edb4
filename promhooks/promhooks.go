// Package promhooks counts cachekit hook events as prometheus metrics.
package promhooks

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/cachekit"
)

type Hooks struct {
	tagsDropped  *prometheus.CounterVec
	unsupported  *prometheus.CounterVec
	rejected     prometheus.Counter
	selfHeal     *prometheus.CounterVec
	contended    prometheus.Counter
	stale        *prometheus.CounterVec
	gc           *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

var _ cachekit.Hooks = (*Hooks)(nil)

// New registers the collectors on reg under namespace (default "cachekit").
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if namespace == "" {
		namespace = "cachekit"
	}
	h := &Hooks{
		tagsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tags_dropped_total",
			Help: "Writes whose tags were dropped by a driver without a tag index.",
		}, []string{"driver", "op"}),
		unsupported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "unsupported_operations_total",
			Help: "Calls to operations the driver does not provide.",
		}, []string{"driver", "op"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "writes_rejected_total",
			Help: "Writes refused by the driver.",
		}),
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "self_heal_total",
			Help: "Unreadable entries deleted on read.",
		}, []string{"reason"}),
		contended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lock_contended_total",
			Help: "Lock acquisitions that found the lock held.",
		}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "soft_expiry_stale_total",
			Help: "Soft-expiry reads past the logical TTL.",
		}, []string{"owned"}),
		gc: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gc_runs_total",
			Help: "Expired-entry sweeps by outcome.",
		}, []string{"driver", "result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"breaker"}),
	}
	for _, c := range []prometheus.Collector{
		h.tagsDropped, h.unsupported, h.rejected, h.selfHeal,
		h.contended, h.stale, h.gc, h.breakerState,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) TagsUnsupported(driver, op string) {
	h.tagsDropped.WithLabelValues(driver, op).Inc()
}

func (h *Hooks) OperationUnsupported(driver, op string) {
	h.unsupported.WithLabelValues(driver, op).Inc()
}

func (h *Hooks) WriteRejected(string) { h.rejected.Inc() }

func (h *Hooks) SelfHeal(_, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }

func (h *Hooks) LockContended(string) { h.contended.Inc() }

func (h *Hooks) SoftExpiryStale(_ string, owned bool) {
	h.stale.WithLabelValues(strconv.FormatBool(owned)).Inc()
}

func (h *Hooks) GarbageCollected(driver string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.gc.WithLabelValues(driver, result).Inc()
}

func (h *Hooks) BreakerStateChange(name, _, to string) {
	var v float64
	switch to {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	h.breakerState.WithLabelValues(name).Set(v)
}
