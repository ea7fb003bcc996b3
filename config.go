package putguard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file/properties form of the tunables, in milliseconds.
// Zero values take the defaults.
//
//	naked_put_invalidation_period_ms: 10000
//	pending_put_overage_period_ms: 5000
//	pending_put_recent_period_ms: 2000
//	max_pending_put_delay_ms: 120000
type Config struct {
	NakedPutInvalidationPeriodMs int64 `yaml:"naked_put_invalidation_period_ms" json:"naked_put_invalidation_period_ms"`
	PendingPutOveragePeriodMs    int64 `yaml:"pending_put_overage_period_ms" json:"pending_put_overage_period_ms"`
	PendingPutRecentPeriodMs     int64 `yaml:"pending_put_recent_period_ms" json:"pending_put_recent_period_ms"`
	MaxPendingPutDelayMs         int64 `yaml:"max_pending_put_delay_ms" json:"max_pending_put_delay_ms"`

	RegisterLockTimeoutMs     int64 `yaml:"register_lock_timeout_ms" json:"register_lock_timeout_ms"`
	PutLockTimeoutMs          int64 `yaml:"put_lock_timeout_ms" json:"put_lock_timeout_ms"`
	InvalidationLockTimeoutMs int64 `yaml:"invalidation_lock_timeout_ms" json:"invalidation_lock_timeout_ms"`

	RemovalDropsPendingPuts bool `yaml:"removal_drops_pending_puts" json:"removal_drops_pending_puts"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		NakedPutInvalidationPeriodMs: DefaultNakedPutInvalidationPeriod.Milliseconds(),
		PendingPutOveragePeriodMs:    DefaultPendingPutOveragePeriod.Milliseconds(),
		PendingPutRecentPeriodMs:     DefaultPendingPutRecentPeriod.Milliseconds(),
		MaxPendingPutDelayMs:         DefaultMaxPendingPutDelay.Milliseconds(),
		RegisterLockTimeoutMs:        DefaultRegisterLockTimeout.Milliseconds(),
		PutLockTimeoutMs:             DefaultPutLockTimeout.Milliseconds(),
		InvalidationLockTimeoutMs:    DefaultInvalidationLockTimeout.Milliseconds(),
	}
}

// ParseConfig decodes a YAML document. Unknown keys are rejected.
func ParseConfig(b []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Options().validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Options converts c into Options. Logger, Hooks and Clock are left unset.
func (c Config) Options() Options {
	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	return Options{
		NakedPutInvalidationPeriod: ms(c.NakedPutInvalidationPeriodMs),
		PendingPutOveragePeriod:    ms(c.PendingPutOveragePeriodMs),
		PendingPutRecentPeriod:     ms(c.PendingPutRecentPeriodMs),
		MaxPendingPutDelay:         ms(c.MaxPendingPutDelayMs),
		RegisterLockTimeout:        ms(c.RegisterLockTimeoutMs),
		PutLockTimeout:             ms(c.PutLockTimeoutMs),
		InvalidationLockTimeout:    ms(c.InvalidationLockTimeoutMs),
		RemovalDropsPendingPuts:    c.RemovalDropsPendingPuts,
	}
}
