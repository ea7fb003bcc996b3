package putguard

import "time"

const (
	DefaultNakedPutInvalidationPeriod = 10 * time.Second
	DefaultPendingPutOveragePeriod    = 5 * time.Second
	DefaultPendingPutRecentPeriod     = 2 * time.Second
	DefaultMaxPendingPutDelay         = 2 * time.Minute

	DefaultRegisterLockTimeout     = 10 * time.Second
	DefaultPutLockTimeout          = 100 * time.Millisecond
	DefaultInvalidationLockTimeout = time.Minute
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
