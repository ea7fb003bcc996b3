package putguard

import (
	"context"

	"github.com/google/uuid"
)

// Owner identifies the actor on whose behalf a pending put is tracked:
// a transaction id when the caller runs inside one, otherwise an id unique to
// the single load attempt. Two loads sharing an Owner are the same actor.
type Owner string

// NewOwner returns a fresh, unique Owner.
func NewOwner() Owner { return Owner(uuid.NewString()) }

type ownerCtxKey struct{}

// WithOwner returns a copy of ctx carrying owner (e.g. the current transaction id).
func WithOwner(ctx context.Context, owner Owner) context.Context {
	return context.WithValue(ctx, ownerCtxKey{}, owner)
}

// OwnerFrom returns the Owner carried by ctx, if any.
func OwnerFrom(ctx context.Context) (Owner, bool) {
	o, ok := ctx.Value(ownerCtxKey{}).(Owner)
	return o, ok && o != ""
}

// OwnerOrNew returns the Owner carried by ctx, or a fresh one.
func OwnerOrNew(ctx context.Context) Owner {
	if o, ok := OwnerFrom(ctx); ok {
		return o
	}
	return NewOwner()
}
