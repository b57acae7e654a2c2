package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"seatlock/internal/catalog"

	"github.com/google/uuid"
)

// fakeRepo keeps the ledger in memory. locks stand in for the show and screen
// row locks, mu guards the committed maps. Writes made inside a transaction
// are staged on the fakeTx and only land when fn returns nil.
type fakeRepo struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex

	screens  map[uuid.UUID]*catalog.Screen
	shows    map[uuid.UUID]*catalog.Show
	bookings map[uuid.UUID]*Booking

	// beforeInsert runs once, inside InsertBooking, before the seat check
	beforeInsert func(b *Booking)

	invalidations int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		locks:    make(map[uuid.UUID]*sync.Mutex),
		screens:  make(map[uuid.UUID]*catalog.Screen),
		shows:    make(map[uuid.UUID]*catalog.Show),
		bookings: make(map[uuid.UUID]*Booking),
	}
}

func (f *fakeRepo) addShow(screen *catalog.Screen, show *catalog.Show) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screens[screen.ID] = screen
	show.ScreenID = screen.ID
	f.shows[show.ID] = show
}

// GetShow and InvalidateShow let the fake stand in for the catalog as well
func (f *fakeRepo) GetShow(_ context.Context, id uuid.UUID) (*catalog.Show, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.showLocked(id)
}

func (f *fakeRepo) InvalidateShow(_ context.Context, _ uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
}

func (f *fakeRepo) showLocked(id uuid.UUID) (*catalog.Show, error) {
	s, ok := f.shows[id]
	if !ok {
		return nil, catalog.ErrShowNotFound
	}
	cp := *s
	if screen, ok := f.screens[s.ScreenID]; ok {
		sc := *screen
		cp.Screen = &sc
	}
	return &cp, nil
}

// rowLock returns the lock standing in for the row with this id
func (f *fakeRepo) rowLock(id uuid.UUID) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[id]
	if !ok {
		l = &sync.Mutex{}
		f.locks[id] = l
	}
	return l
}

func (f *fakeRepo) WithShowLock(ctx context.Context, showID uuid.UUID, fn func(tx TxRepository, show *catalog.Show) error) error {
	l := f.rowLock(showID)
	l.Lock()
	defer l.Unlock()

	show, err := f.GetShow(ctx, showID)
	if err != nil {
		return err
	}

	tx := newFakeTx(f)
	if err := fn(tx, show); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (f *fakeRepo) WithScreenLock(ctx context.Context, screenID uuid.UUID, fn func(tx TxRepository, screen *catalog.Screen, shows []catalog.Show) error) error {
	l := f.rowLock(screenID)
	l.Lock()
	defer l.Unlock()

	f.mu.Lock()
	screen, ok := f.screens[screenID]
	if !ok {
		f.mu.Unlock()
		return catalog.ErrShowNotFound
	}
	sc := *screen
	var ids []uuid.UUID
	for id, s := range f.shows {
		if s.ScreenID == screenID {
			ids = append(ids, id)
		}
	}
	f.mu.Unlock()

	// same order as the SELECT ... ORDER BY id FOR UPDATE
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		sl := f.rowLock(id)
		sl.Lock()
		defer sl.Unlock()
	}

	f.mu.Lock()
	shows := make([]catalog.Show, 0, len(ids))
	for _, id := range ids {
		if cp, err := f.showLocked(id); err == nil {
			shows = append(shows, *cp)
		}
	}
	f.mu.Unlock()

	tx := newFakeTx(f)
	if err := fn(tx, &sc, shows); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (f *fakeRepo) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneBooking(b)
	if show, err := f.showLocked(b.ShowID); err == nil {
		cp.Show = show
	}
	return cp, nil
}

func (f *fakeRepo) ListUserBookings(_ context.Context, userID string, limit, offset int) ([]Booking, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []Booking
	for _, b := range f.bookings {
		if b.UserID == userID {
			all = append(all, *cloneBooking(b))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].BookedAt.After(all[j].BookedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeRepo) ConfirmedSeats(_ context.Context, showID uuid.UUID) ([]catalog.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return confirmedIn(f.bookings, showID), nil
}

func (f *fakeRepo) SeatOwners(_ context.Context, showID uuid.UUID) ([]SeatOwner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var owners []SeatOwner
	for _, b := range f.bookings {
		if b.ShowID != showID {
			continue
		}
		for _, s := range b.Seats {
			if s.Status != StatusConfirmed {
				continue
			}
			owners = append(owners, SeatOwner{
				Row:           s.Row,
				Column:        s.Column,
				BookingID:     b.ID,
				BookingNumber: b.BookingNumber,
				UserID:        b.UserID,
				BookedAt:      b.BookedAt,
			})
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].Row != owners[j].Row {
			return owners[i].Row < owners[j].Row
		}
		return owners[i].Column < owners[j].Column
	})
	return owners, nil
}

func confirmedIn(bookings map[uuid.UUID]*Booking, showID uuid.UUID) []catalog.Seat {
	var seats []catalog.Seat
	for _, b := range bookings {
		if b.ShowID != showID {
			continue
		}
		for _, s := range b.Seats {
			if s.Status == StatusConfirmed {
				seats = append(seats, s.Seat())
			}
		}
	}
	sort.Slice(seats, func(i, j int) bool {
		if seats[i].Row != seats[j].Row {
			return seats[i].Row < seats[j].Row
		}
		return seats[i].Column < seats[j].Column
	})
	return seats
}

func (f *fakeRepo) confirmedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.bookings {
		if b.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

func (f *fakeRepo) available(showID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shows[showID].AvailableSeats
}

// fakeTx stages writes; a nil entry marks a deletion
type fakeTx struct {
	f *fakeRepo

	screens  map[uuid.UUID]*catalog.Screen
	shows    map[uuid.UUID]*catalog.Show
	bookings map[uuid.UUID]*Booking
}

func newFakeTx(f *fakeRepo) *fakeTx {
	return &fakeTx{
		f:        f,
		screens:  make(map[uuid.UUID]*catalog.Screen),
		shows:    make(map[uuid.UUID]*catalog.Show),
		bookings: make(map[uuid.UUID]*Booking),
	}
}

func (t *fakeTx) commit() {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()

	for id, s := range t.screens {
		t.f.screens[id] = s
	}
	for id, s := range t.shows {
		if s == nil {
			delete(t.f.shows, id)
			continue
		}
		t.f.shows[id] = s
	}
	for id, b := range t.bookings {
		if b == nil {
			delete(t.f.bookings, id)
			continue
		}
		t.f.bookings[id] = b
	}
}

// bookingsLocked merges committed and staged bookings; f.mu must be held
func (t *fakeTx) bookingsLocked() map[uuid.UUID]*Booking {
	out := make(map[uuid.UUID]*Booking, len(t.f.bookings)+len(t.bookings))
	for id, b := range t.f.bookings {
		out[id] = b
	}
	for id, b := range t.bookings {
		if b == nil {
			delete(out, id)
			continue
		}
		out[id] = b
	}
	return out
}

// stagedShowLocked returns the tx copy of a show, creating it on first write
func (t *fakeTx) stagedShowLocked(id uuid.UUID) *catalog.Show {
	if s, ok := t.shows[id]; ok {
		return s
	}
	committed, ok := t.f.shows[id]
	if !ok {
		return nil
	}
	cp := *committed
	t.shows[id] = &cp
	return &cp
}

func (t *fakeTx) ConfirmedSeats(_ context.Context, showID uuid.UUID) ([]catalog.Seat, error) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	return confirmedIn(t.bookingsLocked(), showID), nil
}

func (t *fakeTx) CountConfirmedBookings(_ context.Context, showID uuid.UUID) (int64, error) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	var n int64
	for _, b := range t.bookingsLocked() {
		if b.ShowID == showID && b.Status == StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) InsertBooking(_ context.Context, booking *Booking) error {
	t.f.mu.Lock()
	hook := t.f.beforeInsert
	t.f.beforeInsert = nil
	t.f.mu.Unlock()
	if hook != nil {
		hook(booking)
	}

	t.f.mu.Lock()
	defer t.f.mu.Unlock()

	all := t.bookingsLocked()
	sold := make(map[catalog.Seat]bool)
	for _, s := range confirmedIn(all, booking.ShowID) {
		sold[s] = true
	}
	for _, s := range booking.Seats {
		if sold[s.Seat()] {
			return ErrSeatTaken
		}
	}
	for _, b := range all {
		if b.BookingNumber == booking.BookingNumber {
			return errDuplicateNumber
		}
	}

	t.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

func (t *fakeTx) GetBookingForUpdate(_ context.Context, id uuid.UUID) (*Booking, error) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	b, ok := t.bookingsLocked()[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBooking(b), nil
}

func (t *fakeTx) MarkCancelled(_ context.Context, booking *Booking, at time.Time) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()

	booking.Status = StatusCancelled
	booking.PaymentStatus = PaymentRefunded
	booking.CancelledAt = &at
	for i := range booking.Seats {
		booking.Seats[i].Status = StatusCancelled
	}
	t.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

func (t *fakeTx) AdjustAvailableSeats(_ context.Context, showID uuid.UUID, delta int) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	s := t.stagedShowLocked(showID)
	if s == nil || s.AvailableSeats+delta < 0 {
		return errCounterUnderflow
	}
	s.AvailableSeats += delta
	return nil
}

func (t *fakeTx) SetAvailableSeats(_ context.Context, showID uuid.UUID, available int) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if s := t.stagedShowLocked(showID); s != nil {
		s.AvailableSeats = available
	}
	return nil
}

func (t *fakeTx) DeleteShow(_ context.Context, showID uuid.UUID) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	for id, b := range t.bookingsLocked() {
		if b.ShowID == showID {
			t.bookings[id] = nil
		}
	}
	t.shows[showID] = nil
	return nil
}

func (t *fakeTx) UpdateScreenGrid(_ context.Context, screenID uuid.UUID, rows, columns int) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	screen, ok := t.screens[screenID]
	if !ok {
		committed, found := t.f.screens[screenID]
		if !found {
			return catalog.ErrShowNotFound
		}
		cp := *committed
		screen = &cp
		t.screens[screenID] = screen
	}
	screen.TotalRows = rows
	screen.TotalColumns = columns
	return nil
}

func cloneBooking(b *Booking) *Booking {
	cp := *b
	cp.Seats = append([]BookingSeat(nil), b.Seats...)
	cp.Show = nil
	return &cp
}
