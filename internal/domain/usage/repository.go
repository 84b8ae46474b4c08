package usage

import (
	"context"
	"time"
)

// Repository persists monthly counters. Every method is atomic with
// respect to concurrent callers on the same key.
type Repository interface {
	// Reserve increments the counter only if it is below limit (or limit
	// is unlimited), creating the record when missing. The stored limit is
	// refreshed to limit on success. ok is false when the quota is spent.
	Reserve(ctx context.Context, key Key, limit int, resetDate time.Time) (rec *Record, ok bool, err error)

	// Ensure creates the record with count 0 when missing and refreshes
	// the stored limit when it differs.
	Ensure(ctx context.Context, key Key, limit int, resetDate time.Time) (*Record, error)

	// Increment adds one unconditionally, creating the record with count 1.
	Increment(ctx context.Context, key Key, limit int, resetDate time.Time) (*Record, error)

	// Release gives back one unit, never dropping below zero.
	Release(ctx context.Context, key Key) (*Record, error)

	ListForMonth(ctx context.Context, entityID string, et EntityType, month string) ([]Record, error)
}

// EntitlementSource resolves the plan an entity consumes against.
// It returns xerrors.ErrNotFound when the entity has no active plan.
type EntitlementSource interface {
	ActiveEntitlement(ctx context.Context, entityID string, et EntityType) (*Entitlement, error)
}
