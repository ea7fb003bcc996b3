package putguard

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by New and Config.Options for unusable settings.
	ErrInvalidConfig = errors.New("putguard: invalid config")

	// ErrInvalidationFailed means pending puts could not be invalidated and the
	// caller must not proceed with the cache remove.
	ErrInvalidationFailed = errors.New("putguard: invalidation failed")
)

func configError(field string, v any) error {
	return fmt.Errorf("%w: %s must not be negative (got %v)", ErrInvalidConfig, field, v)
}
