package bookings

import (
	"fmt"

	"seatlock/internal/catalog"
)

// CreateBookingRequest commits a set of seats for one show. SessionID names the
// websocket session whose leases should be released once the booking lands.
type CreateBookingRequest struct {
	ShowID    string        `json:"show_id" binding:"required"`
	Seats     []SeatRequest `json:"seats" binding:"required,min=1,max=6,dive"`
	SessionID string        `json:"session_id,omitempty"`
}

// SeatRequest is one requested seat. Both coordinates must be present; a
// missing field is not seat 0.
type SeatRequest struct {
	Row    *int `json:"row" binding:"required,min=0"`
	Column *int `json:"column" binding:"required,min=0"`
}

func NewSeatRequest(seat catalog.Seat) SeatRequest {
	row, column := seat.Row, seat.Column
	return SeatRequest{Row: &row, Column: &column}
}

// SeatList converts the requested seats, rejecting entries without coordinates
func (r CreateBookingRequest) SeatList() ([]catalog.Seat, error) {
	seats := make([]catalog.Seat, len(r.Seats))
	for i, s := range r.Seats {
		if s.Row == nil || s.Column == nil {
			return nil, &ValidationError{Field: "seats", Reason: fmt.Sprintf("seat %d needs both row and column", i)}
		}
		if *s.Row < 0 || *s.Column < 0 {
			return nil, &ValidationError{Field: "seats", Reason: fmt.Sprintf("seat %d has a negative coordinate", i)}
		}
		seats[i] = catalog.Seat{Row: *s.Row, Column: *s.Column}
	}
	return seats, nil
}

type ResizeGridRequest struct {
	Rows    int `json:"rows" binding:"required"`
	Columns int `json:"columns" binding:"required"`
}
