// Package sloghooks reports putguard events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/putguard"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	NakedRejectEvery uint64
	SelfHealEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	nakedRejectCtr atomic.Uint64
	selfHealCtr    atomic.Uint64
}

var _ putguard.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) NakedPutRejected(key, reason string) {
	if h.l == nil || !sample(h.opts.NakedRejectEvery, &h.nakedRejectCtr) {
		return
	}
	h.l.Debug("putguard.naked_put_rejected",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) PutLockTimeout(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("putguard.put_lock_timeout", "key", h.redact(key))
}

func (h *Hooks) RegisterLockTimeout(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("putguard.register_lock_timeout", "key", h.redact(key))
}

func (h *Hooks) PendingPutAbandoned(key string, age time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Info("putguard.pending_put_abandoned",
		"key", h.redact(key),
		"age", age)
}

func (h *Hooks) InvalidationFailed(key string, region bool) {
	if h.l == nil {
		return
	}
	if region {
		h.l.Error("putguard.invalidation_failed", "region", true)
		return
	}
	h.l.Error("putguard.invalidation_failed", "key", h.redact(key))
}

func (h *Hooks) RegionInvalidated(until time.Time) {
	if h.l == nil {
		return
	}
	h.l.Info("putguard.region_invalidated", "until", until)
}

func (h *Hooks) SelfHealEntry(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("putguard.self_heal_entry",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("putguard.provider_set_rejected", "key", h.redact(storageKey))
}
