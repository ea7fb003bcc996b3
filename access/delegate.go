package access

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/putguard"
	"github.com/unkn0wn-root/putguard/codec"
	"github.com/unkn0wn-root/putguard/internal/wire"
	"github.com/unkn0wn-root/putguard/provider"
)

const defaultTTL = 10 * time.Minute

// Delegate caches one region of values loaded from an authoritative source.
// Safe for concurrent use.
type Delegate[V any] struct {
	ns             string
	provider       provider.Provider
	codec          codec.Codec[V]
	validator      *putguard.Validator[string]
	inv            Invalidator
	log            putguard.Logger
	hooks          putguard.Hooks
	enabled        bool
	defaultTTL     time.Duration
	computeSetCost SetCostFunc

	// RemoveAll calls in progress; reads miss while > 0
	clearing atomic.Int32
}

func newDelegate[V any](opts Options[V]) (*Delegate[V], error) {
	if opts.Provider == nil {
		return nil, errNoProvider
	}
	if opts.Codec == nil {
		return nil, errNoCodec
	}
	if opts.Namespace == "" {
		return nil, errNoNamespace
	}

	d := &Delegate[V]{
		ns:             opts.Namespace,
		provider:       opts.Provider,
		codec:          opts.Codec,
		log:            opts.Logger,
		hooks:          opts.Hooks,
		enabled:        !opts.Disabled,
		defaultTTL:     opts.DefaultTTL,
		computeSetCost: opts.ComputeSetCost,
	}
	if d.log == nil {
		d.log = putguard.NopLogger{}
	}
	if d.hooks == nil {
		d.hooks = putguard.NopHooks{}
	}
	if d.defaultTTL <= 0 {
		d.defaultTTL = defaultTTL
	}
	if d.computeSetCost == nil {
		d.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	d.validator = opts.Validator
	if d.validator == nil {
		v, err := putguard.New[string](putguard.Options{Logger: d.log, Hooks: d.hooks})
		if err != nil {
			return nil, err
		}
		d.validator = v
	}
	d.inv = opts.Invalidator
	if d.inv == nil {
		d.inv = validatorInvalidator{v: d.validator}
	}
	return d, nil
}

func (d *Delegate[V]) Enabled() bool { return d.enabled }

// Validator returns the validator guarding this region.
func (d *Delegate[V]) Validator() *putguard.Validator[string] { return d.validator }

func (d *Delegate[V]) Close(ctx context.Context) error {
	return d.provider.Close(ctx)
}

// Get returns the cached value of key. Corrupt or undecodable entries, and
// entries loaded before the latest region invalidation, are deleted and
// reported as a miss.
func (d *Delegate[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !d.enabled || !d.checkRegionValid() {
		return zero, false, nil
	}
	k := d.storageKey(key)
	raw, ok, err := d.provider.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	loadedAt, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		d.selfHeal(ctx, k, "corrupt")
		return zero, false, nil
	}
	if at := d.validator.RegionInvalidatedAt(); !at.IsZero() && loadedAt < at.UnixNano() {
		d.selfHeal(ctx, k, "region_stale")
		return zero, false, nil
	}
	v, err := d.codec.Decode(payload)
	if err != nil {
		d.selfHeal(ctx, k, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

// GetOrLoad returns the cached value of key, or loads it and caches the result
// when the validator accepts the put. A rejected put still returns the loaded
// value; it is just not cached. Cache write failures are logged, not returned.
//
// The owner of the load is taken from ctx (putguard.WithOwner) or freshly
// generated.
func (d *Delegate[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	var zero V
	if v, ok, err := d.Get(ctx, key); err != nil {
		return zero, err
	} else if ok {
		return v, nil
	}
	if !d.enabled {
		return load(ctx)
	}

	owner := putguard.OwnerOrNew(ctx)
	ctx = putguard.WithOwner(ctx, owner)

	d.validator.RegisterPendingPut(owner, key)
	v, err := load(ctx)
	if err != nil {
		// consume the registration so housekeeping has nothing to reap
		d.validator.IsPutValid(owner, key)
		return zero, err
	}

	if _, err := d.PutFromLoad(ctx, key, v); err != nil {
		d.log.Warn("put from load failed", putguard.Fields{"key": key, "err": err})
	}
	return v, nil
}

// PutFromLoad writes a value loaded from the authoritative source if the
// validator accepts the put of the ctx owner (see putguard.WithOwner). Callers
// driving registration themselves must pass the owner they registered with;
// without one the put is judged as a naked put.
func (d *Delegate[V]) PutFromLoad(ctx context.Context, key string, value V) (bool, error) {
	if !d.enabled {
		return false, nil
	}
	owner, ok := putguard.OwnerFrom(ctx)
	if !ok {
		owner = putguard.NewOwner()
	}

	permit, ok := d.validator.AcquirePutFromLoadLock(owner, key)
	if !ok {
		d.log.Debug("put from load rejected", putguard.Fields{"key": key, "owner": owner})
		return false, nil
	}
	defer permit.Release()

	payload, err := d.codec.Encode(value)
	if err != nil {
		return false, fmt.Errorf("access: encode %q: %w", key, err)
	}
	k := d.storageKey(key)
	raw := wire.EncodeEntry(d.validator.Now().UnixNano(), payload)
	ok, err = d.provider.Set(ctx, k, raw, d.computeSetCost(k, raw), d.defaultTTL)
	if err != nil {
		return false, fmt.Errorf("access: set %q: %w", key, err)
	}
	if !ok {
		d.log.Debug("put from load rejected by provider (pressure)", putguard.Fields{"key": key})
		d.hooks.ProviderSetRejected(k)
		return false, nil
	}
	return true, nil
}

// Remove invalidates key and then deletes its cache entry. When the
// invalidation fails the entry is left in place and an *InvalidationError is
// returned.
func (d *Delegate[V]) Remove(ctx context.Context, key string) error {
	if err := d.inv.InvalidateKey(ctx, key); err != nil {
		d.log.Error("remove aborted (invalidation failed)", putguard.Fields{"key": key, "err": err})
		return &InvalidationError{Key: key, Err: err}
	}
	if err := d.provider.Del(ctx, d.storageKey(key)); err != nil {
		return fmt.Errorf("access: del %q: %w", key, err)
	}
	return nil
}

// Update is the write-path counterpart of an authoritative update of key:
// the cached entry is dropped and reloaded on the next GetOrLoad.
func (d *Delegate[V]) Update(ctx context.Context, key string) error {
	return d.Remove(ctx, key)
}

// RemoveAll invalidates the whole region and clears the provider. Reads miss
// while it runs.
func (d *Delegate[V]) RemoveAll(ctx context.Context) error {
	d.clearing.Add(1)
	defer d.clearing.Add(-1)

	if err := d.inv.InvalidateRegion(ctx); err != nil {
		d.log.Error("remove all aborted (invalidation failed)", putguard.Fields{"ns": d.ns, "err": err})
		return &InvalidationError{Region: true, Err: err}
	}
	if err := d.provider.Clear(ctx); err != nil {
		return fmt.Errorf("access: clear %q: %w", d.ns, err)
	}
	d.log.Debug("region cleared", putguard.Fields{"ns": d.ns})
	return nil
}

func (d *Delegate[V]) checkRegionValid() bool { return d.clearing.Load() == 0 }

func (d *Delegate[V]) selfHeal(ctx context.Context, storageKey, reason string) {
	if err := d.provider.Del(ctx, storageKey); err != nil && !errors.Is(err, context.Canceled) {
		d.log.Warn("self-heal delete failed", putguard.Fields{"key": storageKey, "err": err})
	}
	d.hooks.SelfHealEntry(storageKey, reason)
}

func (d *Delegate[V]) storageKey(userKey string) string {
	// isolate by namespace
	return "entry:" + d.ns + ":" + userKey
}
