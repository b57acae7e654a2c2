package bookings

import (
	"errors"
	"fmt"
	"strings"

	"seatlock/internal/catalog"
)

var (
	ErrNotFound = errors.New("booking not found")

	// ErrSeatTaken is raised when the confirmed seat index rejects an insert
	ErrSeatTaken = errors.New("seat already booked")

	errDuplicateNumber  = errors.New("booking number already issued")
	errCounterUnderflow = errors.New("available seat counter would go negative")
)

// ValidationError rejects a request before any state is touched
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError lists the requested seats that are already sold, in request order
type ConflictError struct {
	Conflicts []catalog.Seat
}

func (e *ConflictError) Error() string {
	return "seats already booked: " + strings.Join(catalog.SeatKeys(e.Conflicts), ", ")
}

// StateError means the target exists but cannot make the requested transition
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return e.Reason
}
