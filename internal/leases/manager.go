package leases

import (
	"context"
	"errors"
	"time"

	"seatlock/internal/catalog"
	"seatlock/pkg/logger"
)

// Manager couples the lease store with the broadcaster: every state change in
// the store is announced to the show's subscribers.
type Manager struct {
	store Store
	hub   Broadcaster
	ttl   time.Duration
	log   *logger.Logger
}

func NewManager(store Store, hub Broadcaster, ttl time.Duration) *Manager {
	return &Manager{store: store, hub: hub, ttl: ttl, log: logger.GetDefault()}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Join sweeps expired leases, then returns the show's active leases
func (m *Manager) Join(ctx context.Context, showID string) ([]Lease, error) {
	if _, err := m.Sweep(ctx); err != nil {
		m.log.Warn("opportunistic sweep failed", "show_id", showID, "error", err)
	}
	return m.store.Snapshot(ctx, showID)
}

// Acquire leases a seat for holder. A contested seat yields ErrLeaseDenied and
// nothing is broadcast.
func (m *Manager) Acquire(ctx context.Context, showID string, seat catalog.Seat, holder string) (Lease, error) {
	lease, err := m.store.Acquire(ctx, showID, seat, holder, m.ttl)
	if err != nil {
		if errors.Is(err, ErrAlreadyHeld) {
			m.log.LogLeaseEvent(ctx, string(EventLeaseDenied), showID, seat.Key(), holder)
			return Lease{}, ErrLeaseDenied
		}
		return Lease{}, err
	}

	m.log.LogLeaseEvent(ctx, string(EventLeaseAcquired), showID, seat.Key(), holder)
	m.hub.Publish(ctx, showID, NewEvent(EventLeaseAcquired, showID, seatPayload(lease, true)))
	return lease, nil
}

// Release drops holder's lease on seat. Nothing is broadcast when holder did not own it.
func (m *Manager) Release(ctx context.Context, showID string, seat catalog.Seat, holder string) (bool, error) {
	removed, err := m.store.Release(ctx, showID, seat, holder)
	if err != nil || !removed {
		return false, err
	}

	m.log.LogLeaseEvent(ctx, string(EventLeaseReleased), showID, seat.Key(), holder)
	m.hub.Publish(ctx, showID, NewEvent(EventLeaseReleased, showID, SeatPayload{Row: seat.Row, Column: seat.Column}))
	return true, nil
}

// ReleaseAll drops every lease holder owns, typically on disconnect
func (m *Manager) ReleaseAll(ctx context.Context, holder string) (int, error) {
	released, err := m.store.ReleaseAll(ctx, holder)
	m.announceReleased(ctx, released)
	return len(released), err
}

// ReleaseShow drops every lease holder owns within one show
func (m *Manager) ReleaseShow(ctx context.Context, showID, holder string) (int, error) {
	released, err := m.store.ReleaseShow(ctx, showID, holder)
	m.announceReleased(ctx, released)
	return len(released), err
}

// ReleaseSeats drops holder's leases on the given seats. Failures are logged only.
func (m *Manager) ReleaseSeats(ctx context.Context, showID, holder string, seats []catalog.Seat) {
	if holder == "" {
		return
	}
	for _, seat := range seats {
		if _, err := m.Release(ctx, showID, seat, holder); err != nil {
			m.log.Warn("failed to release lease after commit",
				"show_id", showID, "seat", seat.Key(), "holder", holder, "error", err)
		}
	}
}

// Sweep removes expired leases and announces each one
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	expired, err := m.store.Sweep(ctx)
	m.announceReleased(ctx, expired)
	return len(expired), err
}

// ActiveLeases is the show's current lease snapshot
func (m *Manager) ActiveLeases(ctx context.Context, showID string) ([]Lease, error) {
	return m.store.Snapshot(ctx, showID)
}

// InvalidateShow drops all of a show's leases and announces the releases
func (m *Manager) InvalidateShow(ctx context.Context, showID string) error {
	dropped, err := m.store.InvalidateShow(ctx, showID)
	m.announceReleased(ctx, dropped)
	return err
}

// Announce publishes an event that did not originate in the lease store
func (m *Manager) Announce(ctx context.Context, showID string, ev Event) {
	m.hub.Publish(ctx, showID, ev)
}

func (m *Manager) announceReleased(ctx context.Context, ls []Lease) {
	for _, l := range ls {
		m.log.LogLeaseEvent(ctx, string(EventLeaseReleased), l.ShowID, l.Seat.Key(), l.Holder)
		m.hub.Publish(ctx, l.ShowID, NewEvent(EventLeaseReleased, l.ShowID, seatPayload(l, false)))
	}
}
