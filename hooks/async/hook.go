// Package asynchook moves putguard hook calls off the hot path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    NakedRejectEvery: 10, // sample logs: ~every 10th rejection
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	v, _ := putguard.New[string](putguard.Options{
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/putguard"
)

type Hooks struct {
	inner putguard.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ putguard.Hooks = (*Hooks)(nil)

func New(inner putguard.Hooks, workers, qlen int) *Hooks {
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

// Close drains queued events and stops the workers. Hooks must not be
// called after Close.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) NakedPutRejected(k, r string) { h.try(func() { h.inner.NakedPutRejected(k, r) }) }
func (h *Hooks) PutLockTimeout(k string)      { h.try(func() { h.inner.PutLockTimeout(k) }) }
func (h *Hooks) RegisterLockTimeout(k string) { h.try(func() { h.inner.RegisterLockTimeout(k) }) }
func (h *Hooks) PendingPutAbandoned(k string, age time.Duration) {
	h.try(func() { h.inner.PendingPutAbandoned(k, age) })
}
func (h *Hooks) InvalidationFailed(k string, region bool) {
	h.try(func() { h.inner.InvalidationFailed(k, region) })
}
func (h *Hooks) RegionInvalidated(until time.Time) {
	h.try(func() { h.inner.RegionInvalidated(until) })
}
func (h *Hooks) SelfHealEntry(k, r string)    { h.try(func() { h.inner.SelfHealEntry(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string) { h.try(func() { h.inner.ProviderSetRejected(k) }) }
