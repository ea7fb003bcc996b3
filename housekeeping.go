package putguard

import (
	"time"
	"weak"
)

// maxPendingScan bounds how far past the head of the pending queue a single
// housekeeping pass looks.
const maxPendingScan = 3

// preventOutdatedPendingPuts queues p for housekeeping and runs a pass.
func (v *Validator[K]) preventOutdatedPendingPuts(p *pendingPut[K]) {
	var abandoned *pendingPut[K]

	v.pendingMu.Lock()
	v.pendingQueue.PushBack(weak.Make(p))
	if v.pendingQueue.Len() > 1 {
		abandoned = v.cleanOutdatedPendingPutsLocked(p.timestamp)
	}
	v.pendingMu.Unlock()

	v.reap(abandoned)
}

func (v *Validator[K]) cleanOutdatedPendingPuts(now int64) {
	v.pendingMu.Lock()
	abandoned := v.cleanOutdatedPendingPutsLocked(now)
	v.pendingMu.Unlock()

	v.reap(abandoned)
}

// cleanOutdatedPendingPutsLocked does a bounded pass over both pending queues
// and returns at most one registration older than MaxPendingPutDelay, already
// unlinked from the queues. Caller holds pendingMu.
func (v *Validator[K]) cleanOutdatedPendingPutsLocked(now int64) *pendingPut[K] {
	overaged := now - int64(v.pendingPutOveragePeriod)
	recent := now - int64(v.pendingPutRecentPeriod)

	pos := 0
scan:
	for e := v.pendingQueue.Front(); e != nil; {
		next := e.Next()
		ref := e.Value.(weak.Pointer[pendingPut[K]])
		p := ref.Value()
		switch {
		case p == nil || p.completed.Load():
			v.pendingQueue.Remove(e)
		case p.timestamp < overaged:
			// long lived; tracked separately from here on
			v.pendingQueue.Remove(e)
			v.overageQueue.PushBack(ref)
		case p.timestamp >= recent:
			// everything behind is younger still
			break scan
		case pos >= maxPendingScan:
			break scan
		default:
			pos++
		}
		e = next
	}

	mustClean := now - int64(v.maxPendingPutDelay)
	for e := v.overageQueue.Front(); e != nil; e = v.overageQueue.Front() {
		p := e.Value.(weak.Pointer[pendingPut[K]]).Value()
		if p == nil || p.completed.Load() {
			v.overageQueue.Remove(e)
			continue
		}
		if p.timestamp < mustClean {
			v.overageQueue.Remove(e)
			return p
		}
		break
	}
	return nil
}

// reap removes an abandoned registration from its key's pending puts.
// Must not be called with pendingMu held.
func (v *Validator[K]) reap(p *pendingPut[K]) {
	if p == nil {
		return
	}
	m, ok := v.loadPending(p.key)
	if !ok {
		return
	}
	if !m.lock(v.putLockTimeout) {
		// try again on a later pass
		v.pendingMu.Lock()
		v.overageQueue.PushFront(weak.Make(p))
		v.pendingMu.Unlock()
		return
	}

	reaped := false
	removed := m.remove(p.owner)
	if removed != p {
		// owner registered again after p; completion raced with us
		m.put(removed)
	} else {
		reaped = p.completed.CompareAndSwap(false, true)
	}
	v.unlockPending(p.key, m)

	if reaped {
		age := time.Duration(v.now() - p.timestamp)
		v.log.Warn("reaped abandoned pending put", Fields{"key": p.key, "owner": p.owner, "age": age})
		v.hooks.PendingPutAbandoned(keyString(p.key), age)
	}
}
