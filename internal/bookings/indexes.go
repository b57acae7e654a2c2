package bookings

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateLedgerIndexes adds the ledger guarantees gorm tags cannot express
func MigrateLedgerIndexes(db *gorm.DB) error {
	// a seat can belong to at most one confirmed booking per show; cancelled
	// rows drop out of the index so the seat can be sold again
	err := db.Exec(fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS %s
		ON booking_seats (show_id, seat_row, seat_column)
		WHERE status = '%s';
	`, ConfirmedSeatIndex, StatusConfirmed)).Error
	if err != nil {
		return fmt.Errorf("failed to create confirmed seat index: %w", err)
	}

	// ledger reads filter by show and status
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_booking_seats_show_status
		ON booking_seats (show_id, status);
	`).Error
	if err != nil {
		return fmt.Errorf("failed to create booking seat index: %w", err)
	}

	// a user's booking history is listed newest first
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bookings_user_booked_at
		ON bookings (user_id, booked_at DESC);
	`).Error
	if err != nil {
		return fmt.Errorf("failed to create booking history index: %w", err)
	}

	return nil
}
