package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seatlock/internal/catalog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgUniqueViolation = "23505"

// Repository reads the ledger and opens the locked transactions every write runs in
type Repository interface {
	// WithShowLock runs fn in a transaction holding the show row lock, the
	// serialization point for every commit and cancel against that show
	WithShowLock(ctx context.Context, showID uuid.UUID, fn func(tx TxRepository, show *catalog.Show) error) error
	// WithScreenLock locks a screen and then every show on it, ordered by id
	WithScreenLock(ctx context.Context, screenID uuid.UUID, fn func(tx TxRepository, screen *catalog.Screen, shows []catalog.Show) error) error

	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]Booking, int64, error)
	ConfirmedSeats(ctx context.Context, showID uuid.UUID) ([]catalog.Seat, error)
	SeatOwners(ctx context.Context, showID uuid.UUID) ([]SeatOwner, error)
}

// TxRepository is the write surface available inside a locked transaction
type TxRepository interface {
	ConfirmedSeats(ctx context.Context, showID uuid.UUID) ([]catalog.Seat, error)
	CountConfirmedBookings(ctx context.Context, showID uuid.UUID) (int64, error)
	InsertBooking(ctx context.Context, booking *Booking) error
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)
	MarkCancelled(ctx context.Context, booking *Booking, at time.Time) error
	AdjustAvailableSeats(ctx context.Context, showID uuid.UUID, delta int) error
	SetAvailableSeats(ctx context.Context, showID uuid.UUID, available int) error
	DeleteShow(ctx context.Context, showID uuid.UUID) error
	UpdateScreenGrid(ctx context.Context, screenID uuid.UUID, rows, columns int) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithShowLock(ctx context.Context, showID uuid.UUID, fn func(tx TxRepository, show *catalog.Show) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var show catalog.Show
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&show, "id = ?", showID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return catalog.ErrShowNotFound
			}
			return fmt.Errorf("failed to lock show: %w", err)
		}

		var screen catalog.Screen
		if err := tx.First(&screen, "id = ?", show.ScreenID).Error; err != nil {
			return fmt.Errorf("failed to load screen: %w", err)
		}
		show.Screen = &screen

		return fn(&txRepository{tx: tx}, &show)
	})
}

func (r *repository) WithScreenLock(ctx context.Context, screenID uuid.UUID, fn func(tx TxRepository, screen *catalog.Screen, shows []catalog.Show) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var screen catalog.Screen
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&screen, "id = ?", screenID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return catalog.ErrShowNotFound
			}
			return fmt.Errorf("failed to lock screen: %w", err)
		}

		var shows []catalog.Show
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("screen_id = ?", screenID).
			Order("id ASC").
			Find(&shows).Error
		if err != nil {
			return fmt.Errorf("failed to lock shows: %w", err)
		}
		for i := range shows {
			shows[i].Screen = &screen
		}

		return fn(&txRepository{tx: tx}, &screen, shows)
	})
}

func (r *repository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).
		Preload("Seats", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Show").
		Preload("Show.Movie").
		Preload("Show.Cinema").
		Preload("Show.Screen").
		First(&booking, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *repository) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]Booking, int64, error) {
	var (
		bookings []Booking
		total    int64
	)

	query := r.db.WithContext(ctx).Model(&Booking{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	err := query.
		Preload("Seats", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Show").
		Preload("Show.Movie").
		Preload("Show.Cinema").
		Preload("Show.Screen").
		Order("booked_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}

func (r *repository) ConfirmedSeats(ctx context.Context, showID uuid.UUID) ([]catalog.Seat, error) {
	return confirmedSeats(r.db.WithContext(ctx), showID)
}

func (r *repository) SeatOwners(ctx context.Context, showID uuid.UUID) ([]SeatOwner, error) {
	var owners []SeatOwner
	err := r.db.WithContext(ctx).
		Table("booking_seats AS bs").
		Select("bs.seat_row, bs.seat_column, b.id AS booking_id, b.booking_number, b.user_id, b.booked_at").
		Joins("JOIN bookings b ON b.id = bs.booking_id").
		Where("bs.show_id = ? AND bs.status = ?", showID, StatusConfirmed).
		Order("bs.seat_row ASC, bs.seat_column ASC").
		Scan(&owners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read seat owners: %w", err)
	}
	return owners, nil
}

func confirmedSeats(db *gorm.DB, showID uuid.UUID) ([]catalog.Seat, error) {
	var rows []BookingSeat
	err := db.
		Select("seat_row", "seat_column").
		Where("show_id = ? AND status = ?", showID, StatusConfirmed).
		Order("seat_row ASC, seat_column ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read confirmed seats: %w", err)
	}

	seats := make([]catalog.Seat, len(rows))
	for i, row := range rows {
		seats[i] = row.Seat()
	}
	return seats, nil
}

type txRepository struct {
	tx *gorm.DB
}

func (t *txRepository) ConfirmedSeats(ctx context.Context, showID uuid.UUID) ([]catalog.Seat, error) {
	return confirmedSeats(t.tx.WithContext(ctx), showID)
}

func (t *txRepository) CountConfirmedBookings(ctx context.Context, showID uuid.UUID) (int64, error) {
	var count int64
	err := t.tx.WithContext(ctx).
		Model(&Booking{}).
		Where("show_id = ? AND status = ?", showID, StatusConfirmed).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed bookings: %w", err)
	}
	return count, nil
}

// InsertBooking writes the booking and its seats. A failed statement aborts the
// surrounding transaction, so callers must not retry inside the same fn.
func (t *txRepository) InsertBooking(ctx context.Context, booking *Booking) error {
	err := t.tx.WithContext(ctx).Omit("Show").Create(booking).Error
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, ConfirmedSeatIndex):
		return ErrSeatTaken
	case isUniqueViolation(err, bookingNumberIndex):
		return errDuplicateNumber
	default:
		return fmt.Errorf("failed to insert booking: %w", err)
	}
}

func (t *txRepository) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&booking, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	err = t.tx.WithContext(ctx).
		Where("booking_id = ?", id).
		Order("position ASC").
		Find(&booking.Seats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load booking seats: %w", err)
	}
	return &booking, nil
}

func (t *txRepository) MarkCancelled(ctx context.Context, booking *Booking, at time.Time) error {
	db := t.tx.WithContext(ctx)

	err := db.Model(&Booking{}).
		Where("id = ?", booking.ID).
		Updates(map[string]interface{}{
			"status":         StatusCancelled,
			"payment_status": PaymentRefunded,
			"cancelled_at":   at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	err = db.Model(&BookingSeat{}).
		Where("booking_id = ?", booking.ID).
		Update("status", StatusCancelled).Error
	if err != nil {
		return fmt.Errorf("failed to release booking seats: %w", err)
	}

	booking.Status = StatusCancelled
	booking.PaymentStatus = PaymentRefunded
	booking.CancelledAt = &at
	for i := range booking.Seats {
		booking.Seats[i].Status = StatusCancelled
	}
	return nil
}

// AdjustAvailableSeats moves the counter by delta and refuses to take it below zero
func (t *txRepository) AdjustAvailableSeats(ctx context.Context, showID uuid.UUID, delta int) error {
	res := t.tx.WithContext(ctx).
		Model(&catalog.Show{}).
		Where("id = ? AND available_seats + ? >= 0", showID, delta).
		Update("available_seats", gorm.Expr("available_seats + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to update available seats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errCounterUnderflow
	}
	return nil
}

func (t *txRepository) SetAvailableSeats(ctx context.Context, showID uuid.UUID, available int) error {
	err := t.tx.WithContext(ctx).
		Model(&catalog.Show{}).
		Where("id = ?", showID).
		Update("available_seats", available).Error
	if err != nil {
		return fmt.Errorf("failed to set available seats: %w", err)
	}
	return nil
}

// DeleteShow removes the show together with its cancelled booking history.
// Callers check for confirmed bookings first.
func (t *txRepository) DeleteShow(ctx context.Context, showID uuid.UUID) error {
	db := t.tx.WithContext(ctx)

	if err := db.Where("show_id = ?", showID).Delete(&BookingSeat{}).Error; err != nil {
		return fmt.Errorf("failed to delete booking seats: %w", err)
	}
	if err := db.Where("show_id = ?", showID).Delete(&Booking{}).Error; err != nil {
		return fmt.Errorf("failed to delete bookings: %w", err)
	}
	if err := db.Delete(&catalog.Show{}, "id = ?", showID).Error; err != nil {
		return fmt.Errorf("failed to delete show: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateScreenGrid(ctx context.Context, screenID uuid.UUID, rows, columns int) error {
	err := t.tx.WithContext(ctx).
		Model(&catalog.Screen{}).
		Where("id = ?", screenID).
		Updates(map[string]interface{}{
			"total_rows":    rows,
			"total_columns": columns,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to resize screen: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}
