package catalog

import (
	"context"
	"errors"
	"time"

	"seatlock/internal/shared/constants"
	"seatlock/pkg/cache"
	"seatlock/pkg/logger"

	"github.com/google/uuid"
)

type Service interface {
	SetCacheService(cacheService cache.Service)
	// GetShow returns the show with screen/movie/cinema loaded, bypassing the cache
	GetShow(ctx context.Context, id uuid.UUID) (*Show, error)
	GetShowDetail(ctx context.Context, id uuid.UUID) (*ShowResponse, error)
	ListUpcomingShows(ctx context.Context, cinemaID uuid.UUID, limit, offset int) (*PaginatedShows, error)
	InvalidateShow(ctx context.Context, id uuid.UUID)
}

type PaginatedShows struct {
	Shows  []ShowResponse `json:"shows"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type service struct {
	repo         Repository
	cacheService cache.Service
	now          func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) SetCacheService(cacheService cache.Service) {
	s.cacheService = cacheService
}

func (s *service) GetShow(ctx context.Context, id uuid.UUID) (*Show, error) {
	return s.repo.GetShow(ctx, id)
}

func (s *service) GetShowDetail(ctx context.Context, id uuid.UUID) (*ShowResponse, error) {
	if s.cacheService == nil {
		show, err := s.repo.GetShow(ctx, id)
		if err != nil {
			return nil, err
		}
		resp := ToShowResponse(show)
		return &resp, nil
	}

	var resp ShowResponse
	err := s.cacheService.GetOrSet(ctx, constants.BuildShowDetailKey(id.String()), constants.TTL_SHOW_DETAIL,
		func() (interface{}, error) {
			show, err := s.repo.GetShow(ctx, id)
			if err != nil {
				return nil, err
			}
			return ToShowResponse(show), nil
		}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListUpcomingShows pages through shows that have not started, optionally for one cinema
func (s *service) ListUpcomingShows(ctx context.Context, cinemaID uuid.UUID, limit, offset int) (*PaginatedShows, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	shows, total, err := s.repo.ListUpcomingShows(ctx, s.now(), cinemaID, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]ShowResponse, len(shows))
	for i := range shows {
		out[i] = ToShowResponse(&shows[i])
	}
	return &PaginatedShows{Shows: out, Total: total, Limit: limit, Offset: offset}, nil
}

// InvalidateShow drops the cached detail; the next read sees the new counter
func (s *service) InvalidateShow(ctx context.Context, id uuid.UUID) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.Delete(ctx, constants.BuildShowDetailKey(id.String())); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		logger.GetDefault().Warn("failed to invalidate show cache", "show_id", id.String(), "error", err)
	}
}
