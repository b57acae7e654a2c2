package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"seatlock/internal/catalog"
	"seatlock/internal/shared/config"
	"seatlock/internal/shared/database"
	"seatlock/internal/shared/middleware"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

type Seeder struct {
	db  *database.DB
	cfg *config.Config
}

func main() {
	fmt.Println("🌱 Starting seatlock database seeder...")

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db, cfg: cfg}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	fmt.Println("\n🔑 Development tokens (valid 24h):")
	if err := seeder.PrintTokens(); err != nil {
		log.Fatalf("Failed to issue tokens: %v", err)
	}

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates every table the service owns, bookings first
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"booking_seats",
		"bookings",
		"shows",
		"movies",
		"screens",
		"cinemas",
	}

	return s.db.PostgreSQL.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			fmt.Printf("  Truncating table: %s\n", table)
			if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
				return fmt.Errorf("failed to truncate table %s: %w", table, err)
			}
		}
		return nil
	})
}

// SeedAll creates one cinema with two screens, a few movies and a week of shows
func (s *Seeder) SeedAll() error {
	ctx := context.Background()
	db := s.db.PostgreSQL.WithContext(ctx)

	cinema := catalog.Cinema{
		ID:       uuid.New(),
		Name:     "Grand Cinema",
		Location: "Downtown",
		Address:  "1 Main Street",
	}
	if err := db.Create(&cinema).Error; err != nil {
		return fmt.Errorf("failed to create cinema: %w", err)
	}
	fmt.Printf("  🏢 Created cinema: %s\n", cinema.Name)

	screens := []catalog.Screen{
		{ID: uuid.New(), CinemaID: cinema.ID, Name: "Screen 1", TotalRows: 10, TotalColumns: 10, ScreenType: "STANDARD"},
		{ID: uuid.New(), CinemaID: cinema.ID, Name: "Screen 2", TotalRows: 8, TotalColumns: 12, ScreenType: "IMAX"},
	}
	for i := range screens {
		if err := db.Create(&screens[i]).Error; err != nil {
			return fmt.Errorf("failed to create screen %s: %w", screens[i].Name, err)
		}
		fmt.Printf("  🖥️  Created screen: %s (%dx%d)\n", screens[i].Name, screens[i].TotalRows, screens[i].TotalColumns)
	}

	movies := []catalog.Movie{
		{ID: uuid.New(), Title: "The Long Night", DurationMinutes: 128},
		{ID: uuid.New(), Title: "Orbit", DurationMinutes: 141},
		{ID: uuid.New(), Title: "Paper Boats", DurationMinutes: 97},
	}
	for i := range movies {
		if err := db.Create(&movies[i]).Error; err != nil {
			return fmt.Errorf("failed to create movie %s: %w", movies[i].Title, err)
		}
		fmt.Printf("  🎬 Created movie: %s\n", movies[i].Title)
	}

	start := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	slots := []time.Duration{14 * time.Hour, 18 * time.Hour, 21 * time.Hour}
	prices := []float64{9.5, 12.5, 14}

	count := 0
	for day := 0; day < 7; day++ {
		for i, slot := range slots {
			screen := screens[(day+i)%len(screens)]
			show := catalog.Show{
				ID:             uuid.New(),
				MovieID:        movies[(day+i)%len(movies)].ID,
				CinemaID:       cinema.ID,
				ScreenID:       screen.ID,
				StartsAt:       start.Add(time.Duration(day)*24*time.Hour + slot),
				Price:          prices[i],
				AvailableSeats: screen.TotalRows * screen.TotalColumns,
			}
			if err := db.Create(&show).Error; err != nil {
				return fmt.Errorf("failed to create show: %w", err)
			}
			count++
		}
	}
	fmt.Printf("  🎟️  Created %d shows\n", count)

	if s.db.Redis != nil {
		if err := s.db.Redis.FlushDB(ctx).Err(); err != nil {
			log.Printf("Warning: Failed to clear Redis: %v", err)
		}
	}

	return nil
}

// PrintTokens issues access tokens for a demo admin and two demo users
func (s *Seeder) PrintTokens() error {
	accounts := []struct {
		userID string
		role   string
	}{
		{"admin-demo", middleware.RoleAdmin},
		{"user-demo-1", middleware.RoleUser},
		{"user-demo-2", middleware.RoleUser},
	}

	for _, a := range accounts {
		token, err := middleware.IssueAccessToken(s.cfg.JWT.Secret, a.userID, a.role, 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("  %s (%s):\n    %s\n", a.userID, a.role, token)
	}
	return nil
}
