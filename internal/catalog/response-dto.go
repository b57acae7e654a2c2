package catalog

import "time"

type MovieInfo struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	PosterURL       string `json:"poster_url,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
}

type CinemaInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Address  string `json:"address,omitempty"`
}

type ScreenInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TotalRows    int    `json:"total_rows"`
	TotalColumns int    `json:"total_columns"`
	ScreenType   string `json:"screen_type,omitempty"`
}

type ShowResponse struct {
	ID             string      `json:"id"`
	StartsAt       time.Time   `json:"starts_at"`
	Price          float64     `json:"price"`
	AvailableSeats int         `json:"available_seats"`
	TotalSeats     int         `json:"total_seats"`
	Movie          *MovieInfo  `json:"movie,omitempty"`
	Cinema         *CinemaInfo `json:"cinema,omitempty"`
	Screen         *ScreenInfo `json:"screen,omitempty"`
}

// ToShowResponse flattens a show and whatever relations were preloaded
func ToShowResponse(s *Show) ShowResponse {
	resp := ShowResponse{
		ID:             s.ID.String(),
		StartsAt:       s.StartsAt,
		Price:          s.Price,
		AvailableSeats: s.AvailableSeats,
		TotalSeats:     s.TotalSeats(),
	}
	if s.Movie != nil {
		resp.Movie = &MovieInfo{
			ID:              s.Movie.ID.String(),
			Title:           s.Movie.Title,
			PosterURL:       s.Movie.PosterURL,
			DurationMinutes: s.Movie.DurationMinutes,
		}
	}
	if s.Cinema != nil {
		resp.Cinema = &CinemaInfo{
			ID:       s.Cinema.ID.String(),
			Name:     s.Cinema.Name,
			Location: s.Cinema.Location,
			Address:  s.Cinema.Address,
		}
	}
	if s.Screen != nil {
		resp.Screen = &ScreenInfo{
			ID:           s.Screen.ID.String(),
			Name:         s.Screen.Name,
			TotalRows:    s.Screen.TotalRows,
			TotalColumns: s.Screen.TotalColumns,
			ScreenType:   s.Screen.ScreenType,
		}
	}
	return resp
}
