package leases

import (
	"context"
	"time"

	"seatlock/internal/catalog"
)

// Store holds the soft-lock state: at most one active holder per (show, seat).
// Every method is atomic with respect to the others.
type Store interface {
	// Acquire grants or refreshes a lease. It fails with ErrAlreadyHeld when a
	// different holder has an unexpired lease on the seat.
	Acquire(ctx context.Context, showID string, seat catalog.Seat, holder string, ttl time.Duration) (Lease, error)

	// Release removes the lease only if holder owns it.
	Release(ctx context.Context, showID string, seat catalog.Seat, holder string) (bool, error)

	// ReleaseAll removes every lease of holder across all shows.
	ReleaseAll(ctx context.Context, holder string) ([]Lease, error)

	// ReleaseShow removes every lease of holder within one show.
	ReleaseShow(ctx context.Context, showID string, holder string) ([]Lease, error)

	// Snapshot lists the active leases of a show. Expired entries are skipped
	// even before a sweep removes them.
	Snapshot(ctx context.Context, showID string) ([]Lease, error)

	// Sweep deletes and returns every lease past its expiry.
	Sweep(ctx context.Context) ([]Lease, error)

	// InvalidateShow drops every lease of a show regardless of holder.
	InvalidateShow(ctx context.Context, showID string) ([]Lease, error)
}
