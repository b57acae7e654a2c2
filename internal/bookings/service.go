package bookings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"time"

	"seatlock/internal/catalog"
	"seatlock/internal/leases"
	"seatlock/internal/shared/constants"
	"seatlock/pkg/cache"
	"seatlock/pkg/logger"

	"github.com/google/uuid"
)

const (
	MaxSeatsPerBooking = 6
	MaxGridDimension   = 100

	numberAttempts        = 3
	bookingNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// ShowReader is the part of the catalog the coordinator reads and invalidates
type ShowReader interface {
	GetShow(ctx context.Context, id uuid.UUID) (*catalog.Show, error)
	InvalidateShow(ctx context.Context, id uuid.UUID)
}

// LeaseCoordinator is satisfied by *leases.Manager
type LeaseCoordinator interface {
	Release(ctx context.Context, showID string, seat catalog.Seat, holder string) (bool, error)
	ReleaseSeats(ctx context.Context, showID, holder string, seats []catalog.Seat)
	ActiveLeases(ctx context.Context, showID string) ([]leases.Lease, error)
	InvalidateShow(ctx context.Context, showID string) error
	Announce(ctx context.Context, showID string, ev leases.Event)
}

type Service interface {
	SetCacheService(cacheService cache.Service)
	CreateBooking(ctx context.Context, userID string, req CreateBookingRequest) (*BookingResponse, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, userID string) (*BookingResponse, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID, userID string) (*BookingResponse, error)
	ListUserBookings(ctx context.Context, userID string, limit, offset int) (*PaginatedBookings, error)
	GetSeatMap(ctx context.Context, showID uuid.UUID) (*SeatMapResponse, error)
	GetSeatBookings(ctx context.Context, showID uuid.UUID) (*SeatBookingsResponse, error)
	DeleteShow(ctx context.Context, showID uuid.UUID) error
	ResizeGrid(ctx context.Context, showID uuid.UUID, rows, columns int) (*SeatMapResponse, error)
}

type service struct {
	repo         Repository
	shows        ShowReader
	locks        LeaseCoordinator
	publisher    Publisher
	cacheService cache.Service
	now          func() time.Time
}

func NewService(repo Repository, shows ShowReader, locks LeaseCoordinator, publisher Publisher) Service {
	if publisher == nil {
		publisher = NewLogPublisher()
	}
	return &service{
		repo:      repo,
		shows:     shows,
		locks:     locks,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *service) SetCacheService(cacheService cache.Service) {
	s.cacheService = cacheService
}

// CreateBooking commits seats for a show. Seats already sold come back as a
// ConflictError listing them in request order, and nothing is written.
func (s *service) CreateBooking(ctx context.Context, userID string, req CreateBookingRequest) (*BookingResponse, error) {
	showID, err := uuid.Parse(req.ShowID)
	if err != nil {
		return nil, &ValidationError{Field: "show_id", Reason: "must be a valid uuid"}
	}
	seats, err := req.SeatList()
	if err != nil {
		return nil, err
	}
	if err := validateSeatSet(seats); err != nil {
		return nil, err
	}

	show, err := s.shows.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(show, seats); err != nil {
		return nil, err
	}
	if show.HasStarted(s.now()) {
		return nil, &StateError{Reason: "show has already started"}
	}

	var (
		booking   *Booking
		available int
	)
	for attempt := 1; ; attempt++ {
		booking, available, err = s.commit(ctx, showID, userID, seats)
		if !errors.Is(err, errDuplicateNumber) || attempt == numberAttempts {
			break
		}
	}
	if errors.Is(err, ErrSeatTaken) {
		err = s.conflictFromLedger(ctx, showID, seats)
	}
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			logger.GetDefault().LogBookingConflict(ctx, showID.String(), userID, catalog.SeatKeys(conflict.Conflicts))
		}
		return nil, err
	}

	show.AvailableSeats = available
	booking.Show = show

	s.afterCreate(context.WithoutCancel(ctx), booking, req.SessionID, available)

	resp := ToBookingResponse(booking)
	return &resp, nil
}

func (s *service) commit(ctx context.Context, showID uuid.UUID, userID string, seats []catalog.Seat) (*Booking, int, error) {
	var (
		booking   *Booking
		available int
	)

	err := s.repo.WithShowLock(ctx, showID, func(tx TxRepository, show *catalog.Show) error {
		// the grid may have been resized since the unlocked read
		if err := checkBounds(show, seats); err != nil {
			return err
		}

		confirmed, err := tx.ConfirmedSeats(ctx, showID)
		if err != nil {
			return err
		}
		if conflicts := intersect(seats, confirmed); len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		now := s.now()
		number, err := newBookingNumber(now)
		if err != nil {
			return err
		}

		b := &Booking{
			ID:            uuid.New(),
			BookingNumber: number,
			ShowID:        showID,
			UserID:        userID,
			SeatCount:     len(seats),
			TotalAmount:   totalAmount(show.Price, len(seats)),
			Status:        StatusConfirmed,
			PaymentStatus: PaymentCompleted,
			BookedAt:      now,
			Seats:         make([]BookingSeat, len(seats)),
		}
		for i, seat := range seats {
			b.Seats[i] = BookingSeat{
				ID:        uuid.New(),
				BookingID: b.ID,
				ShowID:    showID,
				Row:       seat.Row,
				Column:    seat.Column,
				Position:  i,
				Status:    StatusConfirmed,
			}
		}

		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.AdjustAvailableSeats(ctx, showID, -len(seats)); err != nil {
			return err
		}

		booking = b
		available = show.AvailableSeats - len(seats)
		return nil
	})
	return booking, available, err
}

// conflictFromLedger turns a unique index rejection back into the seats that caused it
func (s *service) conflictFromLedger(ctx context.Context, showID uuid.UUID, requested []catalog.Seat) error {
	confirmed, err := s.repo.ConfirmedSeats(ctx, showID)
	if err != nil {
		return err
	}
	conflicts := intersect(requested, confirmed)
	if len(conflicts) == 0 {
		// the competing commit was itself cancelled before the re-read
		conflicts = requested
	}
	return &ConflictError{Conflicts: conflicts}
}

func (s *service) afterCreate(ctx context.Context, booking *Booking, sessionID string, available int) {
	showKey := booking.ShowID.String()
	seats := booking.SeatList()

	if sessionID != "" {
		s.locks.ReleaseSeats(ctx, showKey, sessionID, seats)
	}
	s.locks.Announce(ctx, showKey, leases.NewEvent(leases.EventSeatsBooked, showKey, leases.SeatsPayload{
		BookingNumber:  booking.BookingNumber,
		Seats:          seats,
		AvailableSeats: available,
	}))

	s.shows.InvalidateShow(ctx, booking.ShowID)
	s.invalidateUserBookings(ctx, booking.UserID)
	s.publish(ctx, newBookingEvent(EventBookingConfirmed, booking, booking.BookedAt))

	logger.GetDefault().LogBookingCreated(ctx, booking.ID.String(), showKey, booking.UserID, booking.SeatCount)
}

// CancelBooking refunds a confirmed booking of userID before its show starts
func (s *service) CancelBooking(ctx context.Context, bookingID uuid.UUID, userID string) (*BookingResponse, error) {
	existing, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, ErrNotFound
	}
	if !existing.Status.CanBeCancelled() {
		return nil, &StateError{Reason: "booking is already cancelled"}
	}

	var (
		cancelled *Booking
		available int
	)
	err = s.repo.WithShowLock(ctx, existing.ShowID, func(tx TxRepository, show *catalog.Show) error {
		now := s.now()
		if show.HasStarted(now) {
			return &StateError{Reason: "cannot cancel a booking for a show that has already started"}
		}

		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.Status.CanBeCancelled() {
			return &StateError{Reason: "booking is already cancelled"}
		}

		if err := tx.MarkCancelled(ctx, b, now); err != nil {
			return err
		}
		if err := tx.AdjustAvailableSeats(ctx, show.ID, b.SeatCount); err != nil {
			return err
		}

		cancelled = b
		available = show.AvailableSeats + b.SeatCount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if existing.Show != nil {
		existing.Show.AvailableSeats = available
		cancelled.Show = existing.Show
	}

	s.afterCancel(context.WithoutCancel(ctx), cancelled, available)

	resp := ToBookingResponse(cancelled)
	return &resp, nil
}

func (s *service) afterCancel(ctx context.Context, booking *Booking, available int) {
	showKey := booking.ShowID.String()

	s.locks.Announce(ctx, showKey, leases.NewEvent(leases.EventSeatsCancelled, showKey, leases.SeatsPayload{
		BookingNumber:  booking.BookingNumber,
		Seats:          booking.SeatList(),
		AvailableSeats: available,
	}))

	s.shows.InvalidateShow(ctx, booking.ShowID)
	s.invalidateUserBookings(ctx, booking.UserID)
	s.publish(ctx, newBookingEvent(EventBookingCancelled, booking, *booking.CancelledAt))

	logger.GetDefault().LogBookingCancelled(ctx, booking.ID.String(), showKey, booking.UserID)
}

// GetBooking hides bookings of other users behind ErrNotFound
func (s *service) GetBooking(ctx context.Context, bookingID uuid.UUID, userID string) (*BookingResponse, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, ErrNotFound
	}
	resp := ToBookingResponse(booking)
	return &resp, nil
}

func (s *service) ListUserBookings(ctx context.Context, userID string, limit, offset int) (*PaginatedBookings, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	fetch := func() (interface{}, error) {
		bookings, total, err := s.repo.ListUserBookings(ctx, userID, limit, offset)
		if err != nil {
			return nil, err
		}
		out := make([]BookingResponse, len(bookings))
		for i := range bookings {
			out[i] = ToBookingResponse(&bookings[i])
		}
		return &PaginatedBookings{Bookings: out, Total: total, Limit: limit, Offset: offset}, nil
	}

	if s.cacheService == nil {
		result, err := fetch()
		if err != nil {
			return nil, err
		}
		return result.(*PaginatedBookings), nil
	}

	var result PaginatedBookings
	key := constants.BuildUserBookingsKey(userID, limit, offset)
	if err := s.cacheService.GetOrSet(ctx, key, constants.TTL_BOOKING_LIST, fetch, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSeatMap reports the sold seats of a show and who currently leases what
func (s *service) GetSeatMap(ctx context.Context, showID uuid.UUID) (*SeatMapResponse, error) {
	show, err := s.shows.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.ConfirmedSeats(ctx, showID)
	if err != nil {
		return nil, err
	}

	active, err := s.locks.ActiveLeases(ctx, showID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read leases: %w", err)
	}

	return &SeatMapResponse{
		ShowID:         showID.String(),
		Rows:           show.Rows(),
		Columns:        show.Columns(),
		AvailableSeats: show.AvailableSeats,
		Booked:         booked,
		Leased:         leases.SnapshotPayload(active),
	}, nil
}

// GetSeatBookings maps every sold seat of a show to its booking
func (s *service) GetSeatBookings(ctx context.Context, showID uuid.UUID) (*SeatBookingsResponse, error) {
	show, err := s.shows.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}

	owners, err := s.repo.SeatOwners(ctx, showID)
	if err != nil {
		return nil, err
	}

	seatMap := make(map[string]SeatBookingInfo, len(owners))
	for _, o := range owners {
		seatMap[o.Seat().Key()] = SeatBookingInfo{
			BookingID:     o.BookingID.String(),
			BookingNumber: o.BookingNumber,
			UserID:        o.UserID,
			BookedAt:      o.BookedAt,
		}
	}

	return &SeatBookingsResponse{Show: catalog.ToShowResponse(show), SeatMap: seatMap}, nil
}

// DeleteShow refuses while confirmed bookings exist, then drops the show and its leases
func (s *service) DeleteShow(ctx context.Context, showID uuid.UUID) error {
	err := s.repo.WithShowLock(ctx, showID, func(tx TxRepository, _ *catalog.Show) error {
		count, err := tx.CountConfirmedBookings(ctx, showID)
		if err != nil {
			return err
		}
		if count > 0 {
			return &StateError{Reason: fmt.Sprintf("show has %d confirmed bookings", count)}
		}
		return tx.DeleteShow(ctx, showID)
	})
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.locks.InvalidateShow(ctx, showID.String()); err != nil {
		logger.GetDefault().ErrorWithContext(ctx, "failed to drop leases of deleted show", err, map[string]interface{}{
			"show_id": showID.String(),
		})
	}
	s.shows.InvalidateShow(ctx, showID)
	return nil
}

// ResizeGrid changes the screen behind a show. Every show on that screen must
// keep its sold seats and live leases inside the new grid.
func (s *service) ResizeGrid(ctx context.Context, showID uuid.UUID, rows, columns int) (*SeatMapResponse, error) {
	if rows < 1 || rows > MaxGridDimension {
		return nil, &ValidationError{Field: "rows", Reason: fmt.Sprintf("must be between 1 and %d", MaxGridDimension)}
	}
	if columns < 1 || columns > MaxGridDimension {
		return nil, &ValidationError{Field: "columns", Reason: fmt.Sprintf("must be between 1 and %d", MaxGridDimension)}
	}

	show, err := s.shows.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}

	grid := &catalog.Show{Screen: &catalog.Screen{TotalRows: rows, TotalColumns: columns}}
	var affected []uuid.UUID

	err = s.repo.WithScreenLock(ctx, show.ScreenID, func(tx TxRepository, screen *catalog.Screen, shows []catalog.Show) error {
		available := make([]int, len(shows))
		for i, sh := range shows {
			confirmed, err := tx.ConfirmedSeats(ctx, sh.ID)
			if err != nil {
				return err
			}
			for _, seat := range confirmed {
				if !grid.Contains(seat) {
					return &StateError{Reason: fmt.Sprintf("seat %s of show %s is booked outside the new grid", seat, sh.ID)}
				}
			}

			active, err := s.locks.ActiveLeases(ctx, sh.ID.String())
			if err != nil {
				return fmt.Errorf("failed to read leases: %w", err)
			}
			for _, l := range active {
				if !grid.Contains(l.Seat) {
					return &StateError{Reason: fmt.Sprintf("seat %s of show %s is leased outside the new grid", l.Seat, sh.ID)}
				}
			}

			available[i] = grid.TotalSeats() - len(confirmed)
		}

		if err := tx.UpdateScreenGrid(ctx, screen.ID, rows, columns); err != nil {
			return err
		}
		for i, sh := range shows {
			if err := tx.SetAvailableSeats(ctx, sh.ID, available[i]); err != nil {
				return err
			}
			affected = append(affected, sh.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	for _, id := range affected {
		s.evictOutside(detached, id.String(), grid)
		s.shows.InvalidateShow(detached, id)
	}

	return s.GetSeatMap(ctx, showID)
}

// evictOutside drops leases taken against the old grid while the resize was committing
func (s *service) evictOutside(ctx context.Context, showID string, grid *catalog.Show) {
	active, err := s.locks.ActiveLeases(ctx, showID)
	if err != nil {
		logger.GetDefault().ErrorWithContext(ctx, "failed to read leases after resize", err, map[string]interface{}{
			"show_id": showID,
		})
		return
	}
	for _, l := range active {
		if grid.Contains(l.Seat) {
			continue
		}
		if _, err := s.locks.Release(ctx, showID, l.Seat, l.Holder); err != nil {
			logger.GetDefault().ErrorWithContext(ctx, "failed to evict lease outside grid", err, map[string]interface{}{
				"show_id": showID,
				"seat":    l.Seat.Key(),
			})
		}
	}
}

func (s *service) publish(ctx context.Context, ev BookingEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.GetDefault().ErrorWithContext(ctx, "failed to publish booking event", err, map[string]interface{}{
			"type":           ev.Type,
			"booking_number": ev.BookingNumber,
		})
	}
}

func (s *service) invalidateUserBookings(ctx context.Context, userID string) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.DeletePattern(ctx, constants.BuildUserBookingsPattern(userID)); err != nil {
		logger.GetDefault().Warn("failed to invalidate booking list cache", "user_id", userID, "error", err)
	}
}

func validateSeatSet(seats []catalog.Seat) error {
	if len(seats) == 0 {
		return &ValidationError{Field: "seats", Reason: "at least one seat is required"}
	}
	if len(seats) > MaxSeatsPerBooking {
		return &ValidationError{Field: "seats", Reason: fmt.Sprintf("at most %d seats can be booked at once", MaxSeatsPerBooking)}
	}

	seen := make(map[catalog.Seat]struct{}, len(seats))
	for _, seat := range seats {
		if _, dup := seen[seat]; dup {
			return &ValidationError{Field: "seats", Reason: fmt.Sprintf("seat %s is listed more than once", seat)}
		}
		seen[seat] = struct{}{}
	}
	return nil
}

func checkBounds(show *catalog.Show, seats []catalog.Seat) error {
	for _, seat := range seats {
		if !show.Contains(seat) {
			return &ValidationError{
				Field:  "seats",
				Reason: fmt.Sprintf("seat %s is outside the %dx%d grid", seat, show.Rows(), show.Columns()),
			}
		}
	}
	return nil
}

// intersect keeps the order of requested
func intersect(requested, confirmed []catalog.Seat) []catalog.Seat {
	if len(confirmed) == 0 {
		return nil
	}
	sold := make(map[catalog.Seat]struct{}, len(confirmed))
	for _, seat := range confirmed {
		sold[seat] = struct{}{}
	}

	var out []catalog.Seat
	for _, seat := range requested {
		if _, ok := sold[seat]; ok {
			out = append(out, seat)
		}
	}
	return out
}

func totalAmount(price float64, seats int) float64 {
	return math.Round(price*float64(seats)*100) / 100
}

// newBookingNumber renders BK-YYYYMMDD-XXXXXXXX with a random suffix
func newBookingNumber(now time.Time) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate booking number: %w", err)
	}
	for i, b := range buf {
		buf[i] = bookingNumberAlphabet[int(b)%len(bookingNumberAlphabet)]
	}
	return "BK-" + now.UTC().Format("20060102") + "-" + string(buf), nil
}
