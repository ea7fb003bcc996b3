package putguard

import (
	"container/list"
	"time"

	"github.com/ava-labs/avalanchego/utils/timer/mockable"
)

// Options tune the validator. All fields are optional; zero values take the
// documented defaults. Negative durations are rejected by New.
type Options struct {
	// NakedPutInvalidationPeriod is how long after a key (or region) removal
	// unregistered puts are rejected. 0 => 10s
	NakedPutInvalidationPeriod time.Duration
	// PendingPutOveragePeriod is the age after which a pending put is moved
	// to the over-age queue. 0 => 5s
	PendingPutOveragePeriod time.Duration
	// PendingPutRecentPeriod is the age under which pending puts are not
	// worth inspecting during housekeeping. 0 => 2s
	PendingPutRecentPeriod time.Duration
	// MaxPendingPutDelay is the age after which a registration is presumed
	// abandoned and reaped. 0 => 2m
	MaxPendingPutDelay time.Duration

	RegisterLockTimeout     time.Duration // 0 => 10s
	PutLockTimeout          time.Duration // 0 => 100ms
	InvalidationLockTimeout time.Duration // 0 => 1m

	// RemovalDropsPendingPuts makes InvalidateKey discard every registration
	// for the key, so registered puts racing a removal are judged as naked
	// puts. Default false: a registration still wins over a later removal.
	RemovalDropsPendingPuts bool

	Logger Logger          // if nil, NopLogger is used
	Hooks  Hooks           // if nil, NopHooks is used
	Clock  *mockable.Clock // if nil, wall clock; Set is not synchronized with readers
}

func (o Options) validate() error {
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"NakedPutInvalidationPeriod", o.NakedPutInvalidationPeriod},
		{"PendingPutOveragePeriod", o.PendingPutOveragePeriod},
		{"PendingPutRecentPeriod", o.PendingPutRecentPeriod},
		{"MaxPendingPutDelay", o.MaxPendingPutDelay},
		{"RegisterLockTimeout", o.RegisterLockTimeout},
		{"PutLockTimeout", o.PutLockTimeout},
		{"InvalidationLockTimeout", o.InvalidationLockTimeout},
	} {
		if f.d < 0 {
			return configError(f.name, f.d)
		}
	}
	return nil
}

// New returns a Validator for keys of type K.
func New[K comparable](opts Options) (*Validator[K], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	v := &Validator[K]{
		dropOnRemoval: opts.RemovalDropsPendingPuts,
		pendingQueue:  list.New(),
		overageQueue:  list.New(),
		removalsQueue: list.New(),
	}

	v.log = coalesce[Logger](opts.Logger, NopLogger{})
	v.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	v.clock = opts.Clock
	if v.clock == nil {
		v.clock = &mockable.Clock{}
	}

	v.nakedPutInvalidationPeriod = coalesce(opts.NakedPutInvalidationPeriod, DefaultNakedPutInvalidationPeriod)
	v.pendingPutOveragePeriod = coalesce(opts.PendingPutOveragePeriod, DefaultPendingPutOveragePeriod)
	v.pendingPutRecentPeriod = coalesce(opts.PendingPutRecentPeriod, DefaultPendingPutRecentPeriod)
	v.maxPendingPutDelay = coalesce(opts.MaxPendingPutDelay, DefaultMaxPendingPutDelay)
	v.registerLockTimeout = coalesce(opts.RegisterLockTimeout, DefaultRegisterLockTimeout)
	v.putLockTimeout = coalesce(opts.PutLockTimeout, DefaultPutLockTimeout)
	v.invalidationLockTimeout = coalesce(opts.InvalidationLockTimeout, DefaultInvalidationLockTimeout)

	return v, nil
}
