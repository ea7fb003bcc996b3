package putguard

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The validator calls them on hot paths.
//
// Keys are passed as strings; non-string keys are formatted with fmt.
type Hooks interface {
	// A put-from-load without a matching registration was rejected.
	// reason ∈ {"region_invalidated", "recent_removal"}
	NakedPutRejected(key, reason string)

	// A registered put-from-load could not take the key lock in time
	// and was rejected.
	PutLockTimeout(key string)

	// RegisterPendingPut could not lock the key's pending puts in time;
	// the following put degrades to a naked put.
	RegisterLockTimeout(key string)

	// Housekeeping reaped a registration older than MaxPendingPutDelay.
	PendingPutAbandoned(key string, age time.Duration)

	// InvalidateKey/InvalidateRegion failed. key is "" for the region.
	InvalidationFailed(key string, region bool)

	// The whole region was invalidated; naked puts are rejected until `until`.
	RegionInvalidated(until time.Time)

	// The access delegate deleted an undecodable cache entry on read.
	// reason ∈ {"corrupt", "value_decode", "region_stale"}
	SelfHealEntry(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) NakedPutRejected(string, string)           {}
func (NopHooks) PutLockTimeout(string)                     {}
func (NopHooks) RegisterLockTimeout(string)                {}
func (NopHooks) PendingPutAbandoned(string, time.Duration) {}
func (NopHooks) InvalidationFailed(string, bool)           {}
func (NopHooks) RegionInvalidated(time.Time)               {}
func (NopHooks) SelfHealEntry(string, string)              {}
func (NopHooks) ProviderSetRejected(string)                {}
