// Package putguard protects a (possibly clustered) cache in front of a slower
// authoritative store from "naked puts": a reader misses the cache, loads a
// value, and writes it back after a concurrent writer already invalidated the
// key, leaving a permanently stale entry.
//
// Components:
//   - Validator: accept/reject engine for writes that originate from a load.
//     Tracks pending puts per key and owner, recent key removals and a
//     region-wide invalidation window; self-cleans with bounded work per call.
//   - access.Delegate: the read-miss / remove / remove-all call sequence over a
//     provider.Provider and a codec.Codec[V].
//   - cluster.Node: fans invalidations out to the validators of peer nodes.
//
// Protocol:
//
//	v.RegisterPendingPut(owner, k)               // on cache miss, before the DB read
//	val := readFromDB(k)
//	if p, ok := v.AcquirePutFromLoadLock(owner, k); ok {
//		cache.Put(k, val)
//		p.Release()
//	}
//
//	if !v.InvalidateKey(k) { abort }             // before removing k from the cache
//	cache.Remove(k)
package putguard
