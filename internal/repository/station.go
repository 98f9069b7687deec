package repository

import (
	"context"
	"strings"

	"lastday/internal/models"

	"gorm.io/gorm"
)

// StationRepository reads the station directory.
type StationRepository interface {
	List(ctx context.Context) ([]models.Station, error)
	Search(ctx context.Context, query string) ([]models.Station, error)
	CreateBatch(ctx context.Context, stations []models.Station) error
	Count(ctx context.Context) (int64, error)
}

type stationRepository struct {
	db *gorm.DB
}

// NewStationRepository returns a StationRepository, usually over the read replica.
func NewStationRepository(db *gorm.DB) StationRepository {
	return &stationRepository{db: db}
}

func (r *stationRepository) List(ctx context.Context) ([]models.Station, error) {
	stations := []models.Station{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&stations).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return stations, nil
}

// Search matches query as a case-insensitive substring of the station name.
func (r *stationRepository) Search(ctx context.Context, query string) ([]models.Station, error) {
	stations := []models.Station{}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	err := r.db.WithContext(ctx).
		Where(`LOWER(station) LIKE ? ESCAPE '\'`, pattern).
		Order("id ASC").
		Find(&stations).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return stations, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func (r *stationRepository) CreateBatch(ctx context.Context, stations []models.Station) error {
	if len(stations) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(stations, 200).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *stationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Station{}).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
