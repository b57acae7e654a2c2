package database

import (
	"seatlock/internal/bookings"
	"seatlock/internal/catalog"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&catalog.Cinema{},
		&catalog.Screen{},
		&catalog.Movie{},
		&catalog.Show{},
		&bookings.Booking{},
		&bookings.BookingSeat{},
	)
}
