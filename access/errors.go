package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/putguard"
)

var (
	errNoProvider  = errors.New("access: provider is required")
	errNoCodec     = errors.New("access: codec is required")
	errNoNamespace = errors.New("access: namespace is required")
)

// InvalidationError reports a removal that was aborted because the
// invalidation step failed. The cache entry was left untouched.
type InvalidationError struct {
	Key    string // empty when Region is set
	Region bool
	Err    error
}

func (e *InvalidationError) Error() string {
	if e.Region {
		return fmt.Sprintf("access: region invalidation failed: %v", e.Err)
	}
	return fmt.Sprintf("access: invalidation of %q failed: %v", e.Key, e.Err)
}

func (e *InvalidationError) Unwrap() error { return e.Err }

// validatorInvalidator adapts a local validator to Invalidator.
type validatorInvalidator struct {
	v *putguard.Validator[string]
}

func (i validatorInvalidator) InvalidateKey(_ context.Context, key string) error {
	if !i.v.InvalidateKey(key) {
		return putguard.ErrInvalidationFailed
	}
	return nil
}

func (i validatorInvalidator) InvalidateRegion(_ context.Context) error {
	if !i.v.InvalidateRegion() {
		return putguard.ErrInvalidationFailed
	}
	return nil
}
