package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultRows    = 10
	DefaultColumns = 10
)

type Cinema struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `json:"name" gorm:"not null;size:255"`
	Location  string    `json:"location" gorm:"size:255"`
	Address   string    `json:"address" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type Screen struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CinemaID     uuid.UUID `json:"cinema_id" gorm:"type:uuid;index;not null"`
	Name         string    `json:"name" gorm:"not null;size:100"`
	TotalRows    int       `json:"total_rows" gorm:"not null;default:10;check:total_rows > 0"`
	TotalColumns int       `json:"total_columns" gorm:"not null;default:10;check:total_columns > 0"`
	ScreenType   string    `json:"screen_type" gorm:"size:50;default:'STANDARD'"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type Movie struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title           string    `json:"title" gorm:"not null;size:255"`
	PosterURL       string    `json:"poster_url" gorm:"size:500"`
	DurationMinutes int       `json:"duration_minutes" gorm:"not null;check:duration_minutes > 0"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Show is one screening of a movie on a screen. AvailableSeats is kept equal to
// the grid size minus the seats held by confirmed bookings.
type Show struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MovieID        uuid.UUID `json:"movie_id" gorm:"type:uuid;index;not null"`
	CinemaID       uuid.UUID `json:"cinema_id" gorm:"type:uuid;index;not null"`
	ScreenID       uuid.UUID `json:"screen_id" gorm:"type:uuid;index;not null"`
	StartsAt       time.Time `json:"starts_at" gorm:"not null;index"`
	Price          float64   `json:"price" gorm:"not null;check:price >= 0"`
	AvailableSeats int       `json:"available_seats" gorm:"not null;check:available_seats >= 0"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Movie  *Movie  `json:"movie,omitempty" gorm:"foreignKey:MovieID"`
	Cinema *Cinema `json:"cinema,omitempty" gorm:"foreignKey:CinemaID"`
	Screen *Screen `json:"screen,omitempty" gorm:"foreignKey:ScreenID"`
}

func (Cinema) TableName() string {
	return "cinemas"
}

func (Screen) TableName() string {
	return "screens"
}

func (Movie) TableName() string {
	return "movies"
}

func (Show) TableName() string {
	return "shows"
}

// Rows falls back to the default grid when the screen was not loaded
func (s *Show) Rows() int {
	if s.Screen == nil || s.Screen.TotalRows <= 0 {
		return DefaultRows
	}
	return s.Screen.TotalRows
}

func (s *Show) Columns() int {
	if s.Screen == nil || s.Screen.TotalColumns <= 0 {
		return DefaultColumns
	}
	return s.Screen.TotalColumns
}

func (s *Show) TotalSeats() int {
	return s.Rows() * s.Columns()
}

// Contains reports whether seat lies inside the show's grid
func (s *Show) Contains(seat Seat) bool {
	return seat.Row >= 0 && seat.Row < s.Rows() && seat.Column >= 0 && seat.Column < s.Columns()
}

func (s *Show) HasStarted(now time.Time) bool {
	return !s.StartsAt.After(now)
}

// Seat is a zero-based coordinate in a show's grid
type Seat struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Key is the "row-column" form used in sets and redis members
func (s Seat) Key() string {
	return strconv.Itoa(s.Row) + "-" + strconv.Itoa(s.Column)
}

func (s Seat) String() string {
	return s.Key()
}

// ParseSeat is the inverse of Seat.Key
func ParseSeat(key string) (Seat, error) {
	r, c, ok := strings.Cut(key, "-")
	if !ok {
		return Seat{}, fmt.Errorf("malformed seat key %q", key)
	}
	row, err := strconv.Atoi(r)
	if err != nil {
		return Seat{}, fmt.Errorf("malformed seat row in %q: %w", key, err)
	}
	col, err := strconv.Atoi(c)
	if err != nil {
		return Seat{}, fmt.Errorf("malformed seat column in %q: %w", key, err)
	}
	return Seat{Row: row, Column: col}, nil
}

// SeatKeys renders seats in their key form, preserving order
func SeatKeys(seats []Seat) []string {
	keys := make([]string, len(seats))
	for i, s := range seats {
		keys[i] = s.Key()
	}
	return keys
}
