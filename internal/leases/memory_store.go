package leases

import (
	"context"
	"sync"
	"time"

	"seatlock/internal/catalog"
)

type holderEntry struct {
	showID string
	seat   catalog.Seat
}

// MemoryStore keeps leases in process memory. Suitable for a single API instance.
type MemoryStore struct {
	mu      sync.Mutex
	shows   map[string]map[catalog.Seat]Lease
	holders map[string]map[holderEntry]struct{}
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shows:   make(map[string]map[catalog.Seat]Lease),
		holders: make(map[string]map[holderEntry]struct{}),
		now:     time.Now,
	}
}

func (m *MemoryStore) Acquire(_ context.Context, showID string, seat catalog.Seat, holder string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.shows[showID][seat]; ok {
		if cur.Holder != holder && cur.Active(now) {
			return Lease{}, ErrAlreadyHeld
		}
		m.unindex(cur)
	}

	lease := Lease{ShowID: showID, Seat: seat, Holder: holder, ExpiresAt: now.Add(ttl)}
	seats, ok := m.shows[showID]
	if !ok {
		seats = make(map[catalog.Seat]Lease)
		m.shows[showID] = seats
	}
	seats[seat] = lease

	held, ok := m.holders[holder]
	if !ok {
		held = make(map[holderEntry]struct{})
		m.holders[holder] = held
	}
	held[holderEntry{showID: showID, seat: seat}] = struct{}{}

	return lease, nil
}

func (m *MemoryStore) Release(_ context.Context, showID string, seat catalog.Seat, holder string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.shows[showID][seat]
	if !ok || cur.Holder != holder {
		return false, nil
	}
	m.remove(cur)
	return true, nil
}

func (m *MemoryStore) ReleaseAll(_ context.Context, holder string) ([]Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Lease
	for e := range m.holders[holder] {
		if cur, ok := m.shows[e.showID][e.seat]; ok && cur.Holder == holder {
			out = append(out, cur)
			m.remove(cur)
		}
	}
	delete(m.holders, holder)
	sortLeases(out)
	return out, nil
}

func (m *MemoryStore) ReleaseShow(_ context.Context, showID string, holder string) ([]Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Lease
	for e := range m.holders[holder] {
		if e.showID != showID {
			continue
		}
		if cur, ok := m.shows[showID][e.seat]; ok && cur.Holder == holder {
			out = append(out, cur)
			m.remove(cur)
		}
	}
	sortLeases(out)
	return out, nil
}

func (m *MemoryStore) Snapshot(_ context.Context, showID string) ([]Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Lease, 0, len(m.shows[showID]))
	for _, l := range m.shows[showID] {
		if l.Active(now) {
			out = append(out, l)
		}
	}
	sortLeases(out)
	return out, nil
}

func (m *MemoryStore) Sweep(_ context.Context) ([]Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []Lease
	for _, seats := range m.shows {
		for _, l := range seats {
			if !l.Active(now) {
				out = append(out, l)
			}
		}
	}
	for _, l := range out {
		m.remove(l)
	}
	sortLeases(out)
	return out, nil
}

func (m *MemoryStore) InvalidateShow(_ context.Context, showID string) ([]Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Lease, 0, len(m.shows[showID]))
	for _, l := range m.shows[showID] {
		out = append(out, l)
	}
	for _, l := range out {
		m.remove(l)
	}
	sortLeases(out)
	return out, nil
}

// remove and unindex expect m.mu to be held
func (m *MemoryStore) remove(l Lease) {
	if seats, ok := m.shows[l.ShowID]; ok {
		delete(seats, l.Seat)
		if len(seats) == 0 {
			delete(m.shows, l.ShowID)
		}
	}
	m.unindex(l)
}

func (m *MemoryStore) unindex(l Lease) {
	if held, ok := m.holders[l.Holder]; ok {
		delete(held, holderEntry{showID: l.ShowID, seat: l.Seat})
		if len(held) == 0 {
			delete(m.holders, l.Holder)
		}
	}
}
