package database

import (
	"seatlock/internal/bookings"

	"gorm.io/gorm"
)

// MigrateConstraints adds the storage-level guarantees gorm tags cannot express
func MigrateConstraints(db *gorm.DB) error {
	return bookings.MigrateLedgerIndexes(db)
}
