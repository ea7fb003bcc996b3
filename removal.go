package putguard

// recentRemoval marks key as removed; naked puts of key are rejected until expiresAt.
type recentRemoval[K comparable] struct {
	key       K
	expiresAt int64 // unix nanos
}

// recordRemoval stores the removal of key and reclaims at most one expired
// removal from the head of the removal queue. Queue entries are appended with
// the same period so the head always expires first.
func (v *Validator[K]) recordRemoval(key K) {
	now := v.now()
	r := &recentRemoval[K]{key: key, expiresAt: now + int64(v.nakedPutInvalidationPeriod)}
	v.recentRemovals.Store(key, r.expiresAt)

	var toClean *recentRemoval[K]
	v.removalsMu.Lock()
	attemptClean := now > v.earliestRemovalTimestamp
	v.removalsQueue.PushBack(r)
	if attemptClean {
		head := v.removalsQueue.Front()
		if v.removalsQueue.Len() > 1 && head.Value.(*recentRemoval[K]).expiresAt < now {
			toClean = v.removalsQueue.Remove(head).(*recentRemoval[K])
		}
		v.earliestRemovalTimestamp = v.removalsQueue.Front().Value.(*recentRemoval[K]).expiresAt
	}
	v.removalsMu.Unlock()

	if toClean != nil {
		// a later removal of the same key stored a newer expiry; keep it
		v.recentRemovals.CompareAndDelete(toClean.key, toClean.expiresAt)
	}
}
