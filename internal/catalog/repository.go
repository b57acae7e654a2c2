package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrShowNotFound = errors.New("show not found")

type Repository interface {
	GetShow(ctx context.Context, id uuid.UUID) (*Show, error)
	// ListUpcomingShows lists shows starting after from; uuid.Nil means every cinema
	ListUpcomingShows(ctx context.Context, from time.Time, cinemaID uuid.UUID, limit, offset int) ([]Show, int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetShow(ctx context.Context, id uuid.UUID) (*Show, error) {
	var show Show
	err := r.db.WithContext(ctx).
		Preload("Movie").
		Preload("Cinema").
		Preload("Screen").
		First(&show, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShowNotFound
		}
		return nil, fmt.Errorf("failed to get show: %w", err)
	}
	return &show, nil
}

func (r *repository) ListUpcomingShows(ctx context.Context, from time.Time, cinemaID uuid.UUID, limit, offset int) ([]Show, int64, error) {
	var (
		shows []Show
		total int64
	)

	query := r.db.WithContext(ctx).Model(&Show{}).Where("starts_at > ?", from)
	if cinemaID != uuid.Nil {
		query = query.Where("cinema_id = ?", cinemaID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count shows: %w", err)
	}

	err := query.
		Preload("Movie").
		Preload("Cinema").
		Preload("Screen").
		Order("starts_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&shows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list shows: %w", err)
	}
	return shows, total, nil
}
