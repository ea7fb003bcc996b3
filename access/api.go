// Package access is a read-through cache delegate guarded by a
// putguard.Validator: loaded values are written to the provider only when the
// validator accepts the put, and removals invalidate before they delete.
package access

import (
	"context"
	"time"

	"github.com/unkn0wn-root/putguard"
	"github.com/unkn0wn-root/putguard/codec"
	"github.com/unkn0wn-root/putguard/provider"
)

// SetCostFunc computes the provider cost of a cache entry.
type SetCostFunc func(storageKey string, raw []byte) int64

// Loader reads the authoritative value of a key.
type Loader[V any] func(ctx context.Context) (V, error)

// Invalidator runs the invalidate-before-remove step of the write path.
// A non-nil error means the removal must be aborted.
//
// The delegate defaults to its own validator. Use cluster.Node to fan
// invalidations out to other processes sharing the provider.
type Invalidator interface {
	InvalidateKey(ctx context.Context, key string) error
	InvalidateRegion(ctx context.Context) error
}

type Options[V any] struct {
	// Namespace isolates keys of this region. Required.
	Namespace string

	// Provider is the storage backend (e.g., Ristretto/BigCache/Redis). Required.
	Provider provider.Provider

	// Codec serializes V. Required.
	Codec codec.Codec[V]

	// Validator guards writes of loaded values. Defaults to a fresh
	// validator built from Logger and Hooks.
	Validator *putguard.Validator[string]

	// Invalidator defaults to Validator.
	Invalidator Invalidator

	// Logger is optional. If nil, logs are discarded.
	Logger putguard.Logger

	// Hooks is optional. If nil, NopHooks.
	Hooks putguard.Hooks

	// DefaultTTL is used by PutFromLoad and GetOrLoad. Default: 10m.
	DefaultTTL time.Duration

	// ComputeSetCost defaults to a constant cost of 1.
	ComputeSetCost SetCostFunc

	// Disabled turns the delegate into a pass-through: every Get misses and
	// nothing is written.
	Disabled bool
}

// New constructs a Delegate.
func New[V any](opts Options[V]) (*Delegate[V], error) {
	return newDelegate[V](opts)
}
