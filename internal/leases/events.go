package leases

import (
	"context"
	"encoding/json"

	"seatlock/internal/catalog"
)

type EventType string

const (
	EventLeaseAcquired  EventType = "lease-acquired"
	EventLeaseReleased  EventType = "lease-released"
	EventLeaseDenied    EventType = "lease-denied"
	EventCurrentLeases  EventType = "current-leases"
	EventSeatsBooked    EventType = "seats-booked"
	EventSeatsCancelled EventType = "seats-cancelled"
	EventWelcome        EventType = "welcome"
	EventError          EventType = "error"
)

// Event is the message every per-show subscriber receives. Data is kept as
// raw JSON so relays can forward it between instances untouched.
type Event struct {
	Type   EventType       `json:"type"`
	ShowID string          `json:"show_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Broadcaster fans an event out to every subscriber of a show
type Broadcaster interface {
	Publish(ctx context.Context, showID string, ev Event)
}

// SeatPayload carries one seat, plus the holder for lease-acquired and snapshots
type SeatPayload struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Holder string `json:"holder,omitempty"`
}

// SeatsPayload is sent after a booking commits or is cancelled
type SeatsPayload struct {
	BookingNumber  string         `json:"booking_number,omitempty"`
	Seats          []catalog.Seat `json:"seats"`
	AvailableSeats int            `json:"available_seats"`
}

// NewEvent marshals data into an event. Payload types in this package never fail to marshal.
func NewEvent(t EventType, showID string, data interface{}) Event {
	ev := Event{Type: t, ShowID: showID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err == nil {
			ev.Data = raw
		}
	}
	return ev
}

func seatPayload(l Lease, withHolder bool) SeatPayload {
	p := SeatPayload{Row: l.Seat.Row, Column: l.Seat.Column}
	if withHolder {
		p.Holder = l.Holder
	}
	return p
}

// SnapshotPayload renders leases the way current-leases carries them
func SnapshotPayload(ls []Lease) []SeatPayload {
	out := make([]SeatPayload, len(ls))
	for i, l := range ls {
		out[i] = seatPayload(l, true)
	}
	return out
}
