package leases

import (
	"sort"
	"time"

	"seatlock/internal/catalog"
)

// Lease is a soft, expiring claim by one holder on one seat of one show
type Lease struct {
	ShowID    string       `json:"show_id"`
	Seat      catalog.Seat `json:"seat"`
	Holder    string       `json:"holder"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Active reports whether the lease still blocks other holders at now
func (l Lease) Active(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

func sortLeases(ls []Lease) {
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].ShowID != ls[j].ShowID {
			return ls[i].ShowID < ls[j].ShowID
		}
		if ls[i].Seat.Row != ls[j].Seat.Row {
			return ls[i].Seat.Row < ls[j].Seat.Row
		}
		return ls[i].Seat.Column < ls[j].Seat.Column
	})
}
