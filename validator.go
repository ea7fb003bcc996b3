package putguard

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ava-labs/avalanchego/utils/timer/mockable"
)

// Validator decides whether a value loaded from the authoritative source may be
// written to the cache. Safe for concurrent use.
//
// Read-miss path:
//
//	v.RegisterPendingPut(owner, key) // before the DB read
//	val := readFromDB(key)
//	if permit, ok := v.AcquirePutFromLoadLock(owner, key); ok {
//		defer permit.Release()
//		cache.Put(key, val)
//	}
//
// Write path: InvalidateKey (or InvalidateRegion) must return true before the
// cache entry is removed.
type Validator[K comparable] struct {
	log   Logger
	hooks Hooks
	clock *mockable.Clock

	nakedPutInvalidationPeriod time.Duration
	pendingPutOveragePeriod    time.Duration
	pendingPutRecentPeriod     time.Duration
	maxPendingPutDelay         time.Duration
	registerLockTimeout        time.Duration
	putLockTimeout             time.Duration
	invalidationLockTimeout    time.Duration
	dropOnRemoval              bool

	pendingPuts    sync.Map // K -> *pendingPutMap[K]
	recentRemovals sync.Map // K -> int64 expiry (unix nanos)

	// guards pendingQueue and overageQueue (weak.Pointer[pendingPut[K]])
	pendingMu    sync.Mutex
	pendingQueue *list.List
	overageQueue *list.List

	// guards removalsQueue (*recentRemoval[K]) and earliestRemovalTimestamp
	removalsMu               sync.Mutex
	removalsQueue            *list.List
	earliestRemovalTimestamp int64

	// naked puts are rejected region-wide until this time (unix nanos)
	invalidationTimestamp atomic.Int64
}

// Permit brackets an accepted put-from-load. The key stays locked against
// InvalidateKey/InvalidateRegion until Release. A nil Permit is valid and
// Release on it is a no-op.
type Permit[K comparable] struct {
	v        *Validator[K]
	key      K
	m        *pendingPutMap[K]
	released atomic.Bool
}

// Release ends the put-from-load. Safe to call more than once.
func (p *Permit[K]) Release() {
	if p == nil || p.released.Swap(true) {
		return
	}
	p.v.unlockPending(p.key, p.m)
}

// RegisterPendingPut records that owner is about to load key from the
// authoritative source and intends to cache the result.
// Must be called before the load starts.
//
// It does no I/O itself but may wait up to RegisterLockTimeout for another
// owner's in-flight cache write of key, which can be remote.
func (v *Validator[K]) RegisterPendingPut(owner Owner, key K) {
	pp := newPendingPut(key, owner, v.now())
	fresh := newPendingPutMap(pp)

	for {
		actual, loaded := v.pendingPuts.LoadOrStore(key, fresh)
		if !loaded {
			break
		}
		existing := actual.(*pendingPutMap[K])
		if !existing.lock(v.registerLockTimeout) {
			// the put will be judged as a naked put
			v.log.Warn("register pending put: lock timeout", Fields{"key": key, "owner": owner})
			v.hooks.RegisterLockTimeout(keyString(key))
			return
		}
		existing.put(pp)
		check, loaded := v.pendingPuts.LoadOrStore(key, existing)
		existing.unlock()
		if !loaded || check == existing {
			break
		}
		// existing was dropped and replaced while we waited for its lock
	}

	v.preventOutdatedPendingPuts(pp)
}

// AcquirePutFromLoadLock reports whether owner may write the value it loaded
// for key. On true the caller must call Release on the returned Permit once the
// cache write is done, whatever its outcome.
//
// A registered pending put of owner is always accepted. Otherwise the put is a
// naked put, accepted only outside the region invalidation window and outside
// the key's recent-removal window.
func (v *Validator[K]) AcquirePutFromLoadLock(owner Owner, key K) (*Permit[K], bool) {
	return v.acquire(owner, key, false)
}

// ReleasePutFromLoadLock is Permit.Release.
func (v *Validator[K]) ReleasePutFromLoadLock(p *Permit[K]) { p.Release() }

// IsPutValid is AcquirePutFromLoadLock immediately followed by Release.
func (v *Validator[K]) IsPutValid(owner Owner, key K) bool {
	p, ok := v.acquire(owner, key, false)
	p.Release()
	return ok
}

// acquire with naked set is the second pass of a naked put, holding only the
// registration made on its behalf.
func (v *Validator[K]) acquire(owner Owner, key K, naked bool) (*Permit[K], bool) {
	now := v.now()
	// before taking any key lock, so we cannot deadlock with InvalidateRegion
	v.cleanOutdatedPendingPuts(now)

	if m, ok := v.loadPending(key); ok {
		if !m.lock(v.putLockTimeout) {
			v.log.Debug("put from load rejected (lock timeout)", Fields{"key": key, "owner": owner})
			v.hooks.PutLockTimeout(keyString(key))
			return nil, false
		}
		if p := m.remove(owner); p != nil && p.completed.CompareAndSwap(false, true) {
			// removals record themselves before taking the key lock, so one
			// that landed after the unlocked check is visible here
			if naked && !v.nakedPutAllowed(key, v.now()) {
				v.unlockPending(key, m)
				return nil, false
			}
			return &Permit[K]{v: v, key: key, m: m}, true
		}
		v.unlockPending(key, m)
	}

	if naked || !v.nakedPutAllowed(key, now) {
		return nil, false
	}
	// register so the write is bracketed by the key lock like any other
	v.RegisterPendingPut(owner, key)
	return v.acquire(owner, key, true)
}

func (v *Validator[K]) nakedPutAllowed(key K, now int64) bool {
	if now <= v.invalidationTimestamp.Load() {
		v.log.Debug("naked put rejected (region invalidated)", Fields{"key": key})
		v.hooks.NakedPutRejected(keyString(key), "region_invalidated")
		return false
	}
	if exp, ok := v.recentRemovals.Load(key); ok && now <= exp.(int64) {
		v.log.Debug("naked put rejected (recent removal)", Fields{"key": key})
		v.hooks.NakedPutRejected(keyString(key), "recent_removal")
		return false
	}
	return true
}

// InvalidateKey must be called, and must return true, before the cache entry
// for key is removed. It waits for any in-flight put-from-load of key and
// rejects naked puts of key for NakedPutInvalidationPeriod.
//
// false means the key lock could not be taken within InvalidationLockTimeout;
// the caller must abort the remove.
func (v *Validator[K]) InvalidateKey(key K) bool {
	// before the key lock: a naked put re-checks under that lock
	v.recordRemoval(key)

	ok := true
	if m, found := v.loadPending(key); found {
		if m.lock(v.invalidationLockTimeout) {
			if v.dropOnRemoval {
				m.invalidate()
				v.pendingPuts.CompareAndDelete(key, m)
			}
			m.unlock()
		} else {
			ok = false
		}
	}

	if !ok {
		v.log.Error("invalidate key: pending puts still locked", Fields{"key": key})
		v.hooks.InvalidationFailed(keyString(key), false)
	}
	return ok
}

// KeyRemoved is InvalidateKey for callers that cannot act on a failure.
func (v *Validator[K]) KeyRemoved(key K) { _ = v.InvalidateKey(key) }

// InvalidateRegion must be called, and must return true, before the whole
// region is cleared. Naked puts for every key are rejected for
// NakedPutInvalidationPeriod and all per-key bookkeeping is dropped.
func (v *Validator[K]) InvalidateRegion() bool {
	until := v.raiseInvalidationTimestamp(v.now() + int64(v.nakedPutInvalidationPeriod))

	ok := true
	v.pendingPuts.Range(func(_, value any) bool {
		m := value.(*pendingPutMap[K])
		if m.lock(v.invalidationLockTimeout) {
			m.invalidate()
			m.unlock()
		} else {
			ok = false
		}
		return true
	})

	v.pendingMu.Lock()
	v.removalsMu.Lock()
	v.pendingPuts.Clear()
	v.pendingQueue.Init()
	v.overageQueue.Init()
	v.recentRemovals.Clear()
	v.removalsQueue.Init()
	v.earliestRemovalTimestamp = until
	v.removalsMu.Unlock()
	v.pendingMu.Unlock()

	if !ok {
		v.log.Error("invalidate region: pending puts still locked", nil)
		v.hooks.InvalidationFailed("", true)
		return false
	}
	untilT := time.Unix(0, until)
	v.log.Info("region invalidated", Fields{"until": untilT})
	v.hooks.RegionInvalidated(untilT)
	return true
}

// RegionRemoved is InvalidateRegion for callers that cannot act on a failure.
func (v *Validator[K]) RegionRemoved() { _ = v.InvalidateRegion() }

// raiseInvalidationTimestamp moves the region timestamp forward, never back.
func (v *Validator[K]) raiseInvalidationTimestamp(ts int64) int64 {
	for {
		old := v.invalidationTimestamp.Load()
		if ts <= old {
			return old
		}
		if v.invalidationTimestamp.CompareAndSwap(old, ts) {
			return ts
		}
	}
}

// RegionInvalidatedUntil returns the end of the latest region invalidation
// window, or the zero Time when the region was never invalidated.
func (v *Validator[K]) RegionInvalidatedUntil() time.Time {
	ts := v.invalidationTimestamp.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, ts)
}

// RegionInvalidatedAt returns when the latest region invalidation happened,
// or the zero Time. Cache entries written before it are stale.
func (v *Validator[K]) RegionInvalidatedAt() time.Time {
	ts := v.invalidationTimestamp.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, ts-int64(v.nakedPutInvalidationPeriod))
}

// Now returns the validator's clock reading.
func (v *Validator[K]) Now() time.Time { return v.clock.Time() }

// PendingPutCount returns the number of registered, uncompleted pending puts.
// It is approximate while puts are in flight: a key whose lock is held is
// waited on for at most PutLockTimeout and skipped if still held.
func (v *Validator[K]) PendingPutCount() int {
	n := 0
	v.pendingPuts.Range(func(_, value any) bool {
		m := value.(*pendingPutMap[K])
		if m.lock(v.putLockTimeout) {
			n += m.size()
			m.unlock()
		}
		return true
	})
	return n
}

// RecentRemovalCount returns the number of tracked key removals, expired or not.
func (v *Validator[K]) RecentRemovalCount() int {
	n := 0
	v.recentRemovals.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (v *Validator[K]) loadPending(key K) (*pendingPutMap[K], bool) {
	m, ok := v.pendingPuts.Load(key)
	if !ok {
		return nil, false
	}
	return m.(*pendingPutMap[K]), true
}

// unlockPending drops m from the registry when it is empty, then unlocks it.
// Caller holds m's lock.
func (v *Validator[K]) unlockPending(key K, m *pendingPutMap[K]) {
	if m.size() == 0 {
		v.pendingPuts.CompareAndDelete(key, m)
	}
	m.unlock()
}

func (v *Validator[K]) now() int64 { return v.clock.Time().UnixNano() }

func keyString[K comparable](key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprint(key)
}
