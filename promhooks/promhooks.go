// Package promhooks counts putguard events in Prometheus metrics.
package promhooks

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/putguard"
)

type Hooks struct {
	nakedRejected      *prometheus.CounterVec
	lockTimeouts       *prometheus.CounterVec
	abandoned          prometheus.Counter
	abandonedAge       prometheus.Histogram
	invalidationFailed *prometheus.CounterVec
	regionInvalidated  prometheus.Counter
	selfHeal           *prometheus.CounterVec
	setRejected        prometheus.Counter
}

var _ putguard.Hooks = (*Hooks)(nil)

// New registers the metrics under namespace (e.g. "app_user_cache") with reg.
func New(namespace string, reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		nakedRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "naked_puts_rejected_total",
			Help:      "Unregistered puts rejected, by reason",
		}, []string{"reason"}),
		lockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_timeouts_total",
			Help:      "Per-key lock acquisitions that timed out, by operation",
		}, []string{"op"}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_puts_abandoned_total",
			Help:      "Registrations reaped after exceeding the max pending put delay",
		}),
		abandonedAge: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pending_put_abandoned_age_seconds",
			Help:      "Age of reaped registrations",
			Buckets:   prometheus.ExponentialBuckets(60, 2, 6),
		}),
		invalidationFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_failed_total",
			Help:      "Key or region invalidations that could not fence pending puts",
		}, []string{"scope"}),
		regionInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_invalidations_total",
			Help:      "Whole-region invalidations",
		}),
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_healed_entries_total",
			Help:      "Cache entries deleted on read, by reason",
		}, []string{"reason"}),
		setRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_set_rejected_total",
			Help:      "Cache writes rejected by the provider",
		}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		h.nakedRejected,
		h.lockTimeouts,
		h.abandoned,
		h.abandonedAge,
		h.invalidationFailed,
		h.regionInvalidated,
		h.selfHeal,
		h.setRejected,
	} {
		errs = append(errs, reg.Register(c))
	}
	return h, errors.Join(errs...)
}

func (h *Hooks) NakedPutRejected(_, reason string) { h.nakedRejected.WithLabelValues(reason).Inc() }
func (h *Hooks) PutLockTimeout(string)             { h.lockTimeouts.WithLabelValues("put").Inc() }
func (h *Hooks) RegisterLockTimeout(string)        { h.lockTimeouts.WithLabelValues("register").Inc() }
func (h *Hooks) PendingPutAbandoned(_ string, age time.Duration) {
	h.abandoned.Inc()
	h.abandonedAge.Observe(age.Seconds())
}
func (h *Hooks) InvalidationFailed(_ string, region bool) {
	scope := "key"
	if region {
		scope = "region"
	}
	h.invalidationFailed.WithLabelValues(scope).Inc()
}
func (h *Hooks) RegionInvalidated(time.Time)    { h.regionInvalidated.Inc() }
func (h *Hooks) SelfHealEntry(_, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)     { h.setRejected.Inc() }
