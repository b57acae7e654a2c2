package bookings

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"seatlock/internal/broadcast"
	"seatlock/internal/catalog"
	"seatlock/internal/leases"
	"seatlock/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	svc     *service
	repo    *fakeRepo
	hub     *broadcast.Hub
	manager *leases.Manager
	pub     *recordingPublisher
	show    *catalog.Show
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	screen := &catalog.Screen{ID: uuid.New(), Name: "Screen 1", TotalRows: 10, TotalColumns: 10}
	show := &catalog.Show{
		ID:             uuid.New(),
		StartsAt:       now.Add(24 * time.Hour),
		Price:          12.5,
		AvailableSeats: 100,
	}
	repo.addShow(screen, show)

	hub := broadcast.NewHub(broadcast.DefaultBuffer)
	manager := leases.NewManager(leases.NewMemoryStore(), hub, 5*time.Minute)
	pub := &recordingPublisher{}

	svc := NewService(repo, repo, manager, pub).(*service)
	svc.now = func() time.Time { return now }

	return &harness{svc: svc, repo: repo, hub: hub, manager: manager, pub: pub, show: show, now: now}
}

func (h *harness) book(t *testing.T, userID string, seats ...catalog.Seat) *BookingResponse {
	t.Helper()
	resp, err := h.svc.CreateBooking(context.Background(), userID, CreateBookingRequest{
		ShowID: h.show.ID.String(),
		Seats:  seatRequests(seats...),
	})
	require.NoError(t, err)
	return resp
}

func seat(row, column int) catalog.Seat {
	return catalog.Seat{Row: row, Column: column}
}

func seatRequests(seats ...catalog.Seat) []SeatRequest {
	out := make([]SeatRequest, len(seats))
	for i, s := range seats {
		out[i] = NewSeatRequest(s)
	}
	return out
}

func nextEvent(t *testing.T, sub *broadcast.Subscription) leases.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return leases.Event{}
	}
}

func TestCreateBookingRoundTrip(t *testing.T) {
	h := newHarness(t)
	sub := h.hub.Subscribe(h.show.ID.String())

	resp := h.book(t, "user-1", seat(0, 1), seat(0, 2))

	assert.Regexp(t, `^BK-20260314-[A-Z2-9]{8}$`, resp.BookingNumber)
	assert.Equal(t, []catalog.Seat{seat(0, 1), seat(0, 2)}, resp.Seats)
	assert.Equal(t, 25.0, resp.TotalAmount)
	assert.Equal(t, StatusConfirmed, resp.Status)
	assert.Equal(t, PaymentCompleted, resp.PaymentStatus)
	require.NotNil(t, resp.Show)
	assert.Equal(t, 98, resp.Show.AvailableSeats)
	assert.Equal(t, 98, h.repo.available(h.show.ID))

	id, err := uuid.Parse(resp.ID)
	require.NoError(t, err)
	fetched, err := h.svc.GetBooking(context.Background(), id, "user-1")
	require.NoError(t, err)
	assert.Equal(t, resp.Seats, fetched.Seats)
	assert.Equal(t, resp.BookingNumber, fetched.BookingNumber)

	ev := nextEvent(t, sub)
	assert.Equal(t, leases.EventSeatsBooked, ev.Type)
	var payload leases.SeatsPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, resp.BookingNumber, payload.BookingNumber)
	assert.Equal(t, 98, payload.AvailableSeats)

	assert.Equal(t, []string{EventBookingConfirmed}, h.pub.types())
	assert.Equal(t, 1, h.repo.invalidations)
}

func TestCreateBookingTotalIsRounded(t *testing.T) {
	h := newHarness(t)
	h.repo.shows[h.show.ID].Price = 9.99

	resp := h.book(t, "user-1", seat(1, 1), seat(1, 2), seat(1, 3))
	assert.Equal(t, 29.97, resp.TotalAmount)
}

func TestCreateBookingValidation(t *testing.T) {
	h := newHarness(t)

	tooMany := make([]SeatRequest, MaxSeatsPerBooking+1)
	for i := range tooMany {
		tooMany[i] = NewSeatRequest(seat(0, i))
	}
	one := 1

	tests := []struct {
		name   string
		showID string
		seats  []SeatRequest
		field  string
	}{
		{name: "bad show id", showID: "nope", seats: seatRequests(seat(0, 0)), field: "show_id"},
		{name: "no seats", seats: nil, field: "seats"},
		{name: "too many seats", seats: tooMany, field: "seats"},
		{name: "duplicate seat", seats: seatRequests(seat(2, 2), seat(2, 2)), field: "seats"},
		{name: "row out of bounds", seats: seatRequests(seat(10, 0)), field: "seats"},
		{name: "negative column", seats: seatRequests(seat(0, -1)), field: "seats"},
		{name: "missing row", seats: []SeatRequest{{Column: &one}}, field: "seats"},
		{name: "missing column", seats: []SeatRequest{NewSeatRequest(seat(0, 0)), {Row: &one}}, field: "seats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			showID := tt.showID
			if showID == "" {
				showID = h.show.ID.String()
			}

			_, err := h.svc.CreateBooking(context.Background(), "user-1", CreateBookingRequest{ShowID: showID, Seats: tt.seats})

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.Zero(t, h.repo.confirmedCount())
	assert.Equal(t, 100, h.repo.available(h.show.ID))
	assert.Empty(t, h.pub.types())
}

func TestCreateBookingUnknownShow(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateBooking(context.Background(), "user-1", CreateBookingRequest{
		ShowID: uuid.NewString(),
		Seats:  seatRequests(seat(0, 0)),
	})
	assert.ErrorIs(t, err, catalog.ErrShowNotFound)
}

func TestCreateBookingRejectsStartedShow(t *testing.T) {
	h := newHarness(t)
	h.svc.now = func() time.Time { return h.show.StartsAt }

	_, err := h.svc.CreateBooking(context.Background(), "user-1", CreateBookingRequest{
		ShowID: h.show.ID.String(),
		Seats:  seatRequests(seat(0, 0)),
	})

	var serr *StateError
	assert.ErrorAs(t, err, &serr)
	assert.Zero(t, h.repo.confirmedCount())
}

// User 1 books two seats, user 2 then asks for an overlapping set
func TestCreateBookingReportsConflictsInRequestOrder(t *testing.T) {
	h := newHarness(t)
	h.book(t, "user-1", seat(0, 1), seat(0, 2))

	_, err := h.svc.CreateBooking(context.Background(), "user-2", CreateBookingRequest{
		ShowID: h.show.ID.String(),
		Seats:  seatRequests(seat(0, 2), seat(0, 3), seat(0, 1)),
	})

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []catalog.Seat{seat(0, 2), seat(0, 1)}, conflict.Conflicts)
	assert.Equal(t, 1, h.repo.confirmedCount())
	assert.Equal(t, 98, h.repo.available(h.show.ID))
	assert.Equal(t, []string{EventBookingConfirmed}, h.pub.types())
}

func TestConcurrentBookingsOfOneSeatHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	const buyers = 12

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.CreateBooking(context.Background(), uuid.NewString(), CreateBookingRequest{
				ShowID: h.show.ID.String(),
				Seats:  seatRequests(seat(3, 3), seat(4, i%10)),
			})

			mu.Lock()
			defer mu.Unlock()
			var conflict *ConflictError
			switch {
			case err == nil:
				wins++
			case assert.ErrorAs(t, err, &conflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, buyers-1, conflicts)

	booked, err := h.repo.ConfirmedSeats(context.Background(), h.show.ID)
	require.NoError(t, err)
	assert.Equal(t, 100-len(booked), h.repo.available(h.show.ID))
}

func TestCreateBookingReleasesSessionLeases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	showKey := h.show.ID.String()

	for _, s := range []catalog.Seat{seat(1, 1), seat(1, 2), seat(5, 5)} {
		_, err := h.manager.Acquire(ctx, showKey, s, "session-1")
		require.NoError(t, err)
	}

	_, err := h.svc.CreateBooking(ctx, "user-1", CreateBookingRequest{
		ShowID:    showKey,
		Seats:     seatRequests(seat(1, 1), seat(1, 2)),
		SessionID: "session-1",
	})
	require.NoError(t, err)

	active, err := h.manager.ActiveLeases(ctx, showKey)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, seat(5, 5), active[0].Seat)
}

func TestCreateBookingMapsIndexRejectionToConflict(t *testing.T) {
	h := newHarness(t)

	// a competing commit lands between the ledger read and the insert
	h.repo.beforeInsert = func(*Booking) {
		h.repo.mu.Lock()
		defer h.repo.mu.Unlock()
		id := uuid.New()
		h.repo.bookings[id] = &Booking{
			ID:            id,
			BookingNumber: "BK-20260314-RIVAL000",
			ShowID:        h.show.ID,
			UserID:        "rival",
			SeatCount:     1,
			Status:        StatusConfirmed,
			Seats:         []BookingSeat{{BookingID: id, ShowID: h.show.ID, Row: 4, Column: 4, Status: StatusConfirmed}},
		}
	}

	_, err := h.svc.CreateBooking(context.Background(), "user-1", CreateBookingRequest{
		ShowID: h.show.ID.String(),
		Seats:  seatRequests(seat(4, 3), seat(4, 4)),
	})

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []catalog.Seat{seat(4, 4)}, conflict.Conflicts)
}

func TestFailedCommitRollsBackInsert(t *testing.T) {
	h := newHarness(t)
	h.repo.mu.Lock()
	h.repo.shows[h.show.ID].AvailableSeats = 1
	h.repo.mu.Unlock()

	// the insert succeeds, the counter update fails, the booking must not survive
	_, err := h.svc.CreateBooking(context.Background(), "user-1", CreateBookingRequest{
		ShowID: h.show.ID.String(),
		Seats:  seatRequests(seat(0, 0), seat(0, 1)),
	})
	require.ErrorIs(t, err, errCounterUnderflow)

	assert.Zero(t, h.repo.confirmedCount())
	assert.Equal(t, 1, h.repo.available(h.show.ID))
	assert.Empty(t, h.pub.types())

	seats, err := h.repo.ConfirmedSeats(context.Background(), h.show.ID)
	require.NoError(t, err)
	assert.Empty(t, seats)
}

func TestShowLocksSerializePerShow(t *testing.T) {
	h := newHarness(t)
	other := &catalog.Show{ID: uuid.New(), StartsAt: h.now.Add(time.Hour), Price: 10, AvailableSeats: 100}
	h.repo.addShow(&catalog.Screen{ID: uuid.New(), TotalRows: 10, TotalColumns: 10}, other)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = h.repo.WithShowLock(ctx, h.show.ID, func(TxRepository, *catalog.Show) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// another show commits while the first is locked
	_, err := h.svc.CreateBooking(ctx, "user-1", CreateBookingRequest{
		ShowID: other.ID.String(),
		Seats:  seatRequests(seat(0, 0)),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.CreateBooking(ctx, "user-2", CreateBookingRequest{
			ShowID: h.show.ID.String(),
			Seats:  seatRequests(seat(0, 0)),
		})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("commit on a locked show did not wait")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("commit did not resume after the lock was released")
	}
}

// A booking is cancelled and its seats become bookable again
func TestCancelBookingFreesSeats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.book(t, "user-1", seat(2, 2), seat(2, 3))
	id := uuid.MustParse(first.ID)

	sub := h.hub.Subscribe(h.show.ID.String())
	cancelled, err := h.svc.CancelBooking(ctx, id, "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, PaymentRefunded, cancelled.PaymentStatus)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 100, h.repo.available(h.show.ID))

	ev := nextEvent(t, sub)
	assert.Equal(t, leases.EventSeatsCancelled, ev.Type)

	second := h.book(t, "user-2", seat(2, 2))
	assert.NotEqual(t, first.BookingNumber, second.BookingNumber)
	assert.Equal(t, 99, h.repo.available(h.show.ID))
	assert.Equal(t, []string{EventBookingConfirmed, EventBookingCancelled, EventBookingConfirmed}, h.pub.types())
}

func TestCancelBookingGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp := h.book(t, "user-1", seat(0, 0))
	id := uuid.MustParse(resp.ID)

	_, err := h.svc.CancelBooking(ctx, uuid.New(), "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.CancelBooking(ctx, id, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)

	h.svc.now = func() time.Time { return h.show.StartsAt.Add(time.Minute) }
	_, err = h.svc.CancelBooking(ctx, id, "user-1")
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Reason, "already started")

	h.svc.now = func() time.Time { return h.now }
	_, err = h.svc.CancelBooking(ctx, id, "user-1")
	require.NoError(t, err)

	_, err = h.svc.CancelBooking(ctx, id, "user-1")
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Reason, "already cancelled")
	assert.Equal(t, 100, h.repo.available(h.show.ID))
}

func TestGetBookingHidesOtherUsers(t *testing.T) {
	h := newHarness(t)
	resp := h.book(t, "user-1", seat(0, 0))

	_, err := h.svc.GetBooking(context.Background(), uuid.MustParse(resp.ID), "user-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUserBookingsInvalidatedByCommit(t *testing.T) {
	h := newHarness(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h.svc.SetCacheService(cache.NewService(client))
	ctx := context.Background()

	h.book(t, "user-1", seat(0, 0))
	page, err := h.svc.ListUserBookings(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.NotEmpty(t, mr.Keys())

	h.now = h.now.Add(time.Minute)
	h.svc.now = func() time.Time { return h.now }
	h.book(t, "user-1", seat(0, 1))

	page, err = h.svc.ListUserBookings(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Bookings, 2)
	assert.Equal(t, []catalog.Seat{seat(0, 1)}, page.Bookings[0].Seats)
}

func TestGetSeatMap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.book(t, "user-1", seat(0, 0), seat(0, 1))
	_, err := h.manager.Acquire(ctx, h.show.ID.String(), seat(3, 4), "session-9")
	require.NoError(t, err)

	m, err := h.svc.GetSeatMap(ctx, h.show.ID)
	require.NoError(t, err)

	assert.Equal(t, 10, m.Rows)
	assert.Equal(t, 10, m.Columns)
	assert.Equal(t, 98, m.AvailableSeats)
	assert.Equal(t, []catalog.Seat{seat(0, 0), seat(0, 1)}, m.Booked)
	assert.Equal(t, []leases.SeatPayload{{Row: 3, Column: 4, Holder: "session-9"}}, m.Leased)
}

func TestGetSeatBookingsMapsSeatsToOwners(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.book(t, "user-1", seat(0, 1), seat(0, 2))
	second := h.book(t, "user-2", seat(3, 3))
	cancelled := h.book(t, "user-3", seat(5, 5))
	_, err := h.svc.CancelBooking(ctx, uuid.MustParse(cancelled.ID), "user-3")
	require.NoError(t, err)

	resp, err := h.svc.GetSeatBookings(ctx, h.show.ID)
	require.NoError(t, err)

	assert.Equal(t, h.show.ID.String(), resp.Show.ID)
	require.Len(t, resp.SeatMap, 3)
	assert.Equal(t, SeatBookingInfo{
		BookingID:     first.ID,
		BookingNumber: first.BookingNumber,
		UserID:        "user-1",
		BookedAt:      h.now,
	}, resp.SeatMap["0-2"])
	assert.Equal(t, first.BookingNumber, resp.SeatMap["0-1"].BookingNumber)
	assert.Equal(t, "user-2", resp.SeatMap["3-3"].UserID)
	assert.Equal(t, second.BookingNumber, resp.SeatMap["3-3"].BookingNumber)
	assert.NotContains(t, resp.SeatMap, "5-5")

	_, err = h.svc.GetSeatBookings(ctx, uuid.New())
	assert.ErrorIs(t, err, catalog.ErrShowNotFound)
}

func TestDeleteShowRequiresNoConfirmedBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp := h.book(t, "user-1", seat(0, 0))
	_, err := h.manager.Acquire(ctx, h.show.ID.String(), seat(5, 5), "session-1")
	require.NoError(t, err)

	err = h.svc.DeleteShow(ctx, h.show.ID)
	var serr *StateError
	require.ErrorAs(t, err, &serr)

	_, err = h.svc.CancelBooking(ctx, uuid.MustParse(resp.ID), "user-1")
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteShow(ctx, h.show.ID))

	_, err = h.repo.GetShow(ctx, h.show.ID)
	assert.ErrorIs(t, err, catalog.ErrShowNotFound)
	active, err := h.manager.ActiveLeases(ctx, h.show.ID.String())
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, h.svc.DeleteShow(ctx, h.show.ID), catalog.ErrShowNotFound)
}

func TestResizeGrid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	showKey := h.show.ID.String()
	h.book(t, "user-1", seat(2, 2))

	_, err := h.svc.ResizeGrid(ctx, h.show.ID, 0, 5)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rows", verr.Field)

	_, err = h.svc.ResizeGrid(ctx, h.show.ID, 2, 10)
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Reason, "booked outside")

	_, err = h.manager.Acquire(ctx, showKey, seat(0, 7), "session-1")
	require.NoError(t, err)
	_, err = h.svc.ResizeGrid(ctx, h.show.ID, 5, 5)
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Reason, "leased outside")

	_, err = h.manager.Release(ctx, showKey, seat(0, 7), "session-1")
	require.NoError(t, err)

	m, err := h.svc.ResizeGrid(ctx, h.show.ID, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, m.Rows)
	assert.Equal(t, 5, m.Columns)
	assert.Equal(t, 24, m.AvailableSeats)

	_, err = h.svc.CreateBooking(ctx, "user-2", CreateBookingRequest{
		ShowID: showKey,
		Seats:  seatRequests(seat(5, 0)),
	})
	require.ErrorAs(t, err, &verr)
}

func TestNewBookingNumberFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		n, err := newBookingNumber(time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Regexp(t, `^BK-20260102-[A-Z2-9]{8}$`, n)
		assert.False(t, seen[n], "duplicate booking number %s", n)
		seen[n] = true
	}
}
