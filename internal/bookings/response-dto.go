package bookings

import (
	"time"

	"seatlock/internal/catalog"
	"seatlock/internal/leases"
)

type BookingResponse struct {
	ID            string                `json:"id"`
	BookingNumber string                `json:"booking_number"`
	ShowID        string                `json:"show_id"`
	UserID        string                `json:"user_id"`
	Seats         []catalog.Seat        `json:"seats"`
	SeatCount     int                   `json:"seat_count"`
	TotalAmount   float64               `json:"total_amount"`
	Status        Status                `json:"status"`
	PaymentStatus PaymentStatus         `json:"payment_status"`
	BookedAt      time.Time             `json:"booked_at"`
	CancelledAt   *time.Time            `json:"cancelled_at,omitempty"`
	Show          *catalog.ShowResponse `json:"show,omitempty"`
}

type PaginatedBookings struct {
	Bookings []BookingResponse `json:"bookings"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// SeatMapResponse is the combined view of sold seats and live leases for one show
type SeatMapResponse struct {
	ShowID         string               `json:"show_id"`
	Rows           int                  `json:"rows"`
	Columns        int                  `json:"columns"`
	AvailableSeats int                  `json:"available_seats"`
	Booked         []catalog.Seat       `json:"booked"`
	Leased         []leases.SeatPayload `json:"leased"`
}

// SeatBookingInfo says who holds a sold seat
type SeatBookingInfo struct {
	BookingID     string    `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	UserID        string    `json:"user_id"`
	BookedAt      time.Time `json:"booked_at"`
}

// SeatBookingsResponse is the admin view of a show: every sold seat keyed "row-column"
type SeatBookingsResponse struct {
	Show    catalog.ShowResponse       `json:"show"`
	SeatMap map[string]SeatBookingInfo `json:"seat_map"`
}

func ToBookingResponse(b *Booking) BookingResponse {
	resp := BookingResponse{
		ID:            b.ID.String(),
		BookingNumber: b.BookingNumber,
		ShowID:        b.ShowID.String(),
		UserID:        b.UserID,
		Seats:         b.SeatList(),
		SeatCount:     b.SeatCount,
		TotalAmount:   b.TotalAmount,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		BookedAt:      b.BookedAt,
		CancelledAt:   b.CancelledAt,
	}
	if b.Show != nil {
		show := catalog.ToShowResponse(b.Show)
		resp.Show = &show
	}
	return resp
}
