package bookings

import (
	"time"

	"seatlock/internal/catalog"

	"github.com/google/uuid"
)

// ConfirmedSeatIndex is the partial unique index that keeps confirmed seat sets disjoint
const ConfirmedSeatIndex = "uq_booking_seats_confirmed"

const bookingNumberIndex = "idx_bookings_booking_number"

type Booking struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingNumber string        `json:"booking_number" gorm:"uniqueIndex:idx_bookings_booking_number;size:32;not null"`
	ShowID        uuid.UUID     `json:"show_id" gorm:"type:uuid;index;not null"`
	UserID        string        `json:"user_id" gorm:"size:64;index;not null"`
	SeatCount     int           `json:"seat_count" gorm:"not null;check:seat_count > 0"`
	TotalAmount   float64       `json:"total_amount" gorm:"not null;check:total_amount >= 0"`
	Status        Status        `json:"status" gorm:"type:varchar(20);not null;default:'CONFIRMED';index"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	BookedAt      time.Time     `json:"booked_at" gorm:"not null"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"autoUpdateTime"`

	Seats []BookingSeat `json:"seats,omitempty" gorm:"foreignKey:BookingID"`
	Show  *catalog.Show `json:"show,omitempty" gorm:"foreignKey:ShowID"`
}

// BookingSeat is one coordinate of a booking. Its status mirrors the booking so
// the partial unique index only covers seats that are currently sold.
type BookingSeat struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID uuid.UUID `json:"booking_id" gorm:"type:uuid;index;not null"`
	ShowID    uuid.UUID `json:"show_id" gorm:"type:uuid;not null"`
	Row       int       `json:"row" gorm:"column:seat_row;not null;check:seat_row >= 0"`
	Column    int       `json:"column" gorm:"column:seat_column;not null;check:seat_column >= 0"`
	Position  int       `json:"position" gorm:"not null"`
	Status    Status    `json:"status" gorm:"type:varchar(20);not null;default:'CONFIRMED'"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (BookingSeat) TableName() string {
	return "booking_seats"
}

func (s BookingSeat) Seat() catalog.Seat {
	return catalog.Seat{Row: s.Row, Column: s.Column}
}

// SeatList returns the booked coordinates in request order
func (b *Booking) SeatList() []catalog.Seat {
	seats := make([]catalog.Seat, len(b.Seats))
	for _, s := range b.Seats {
		if s.Position >= 0 && s.Position < len(seats) {
			seats[s.Position] = s.Seat()
		}
	}
	return seats
}

// SeatOwner ties one confirmed seat to the booking that holds it
type SeatOwner struct {
	Row           int       `gorm:"column:seat_row"`
	Column        int       `gorm:"column:seat_column"`
	BookingID     uuid.UUID `gorm:"column:booking_id"`
	BookingNumber string    `gorm:"column:booking_number"`
	UserID        string    `gorm:"column:user_id"`
	BookedAt      time.Time `gorm:"column:booked_at"`
}

func (o SeatOwner) Seat() catalog.Seat {
	return catalog.Seat{Row: o.Row, Column: o.Column}
}
