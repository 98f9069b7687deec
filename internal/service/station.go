package service

import (
	"context"
	"strings"

	"lastday/internal/cache"
	"lastday/internal/models"
	"lastday/internal/repository"
	"lastday/internal/validation"
)

// StationService serves the read-only station directory.
type StationService struct {
	stations repository.StationRepository
}

func NewStationService(stations repository.StationRepository) *StationService {
	return &StationService{stations: stations}
}

// ListStations returns every station in id order. The directory only changes on reseed,
// so the list is cached for a long time.
func (s *StationService) ListStations(ctx context.Context) ([]models.Station, error) {
	var stations []models.Station
	err := cache.Aside(ctx, cache.StationsGroup, cache.StationsKey, &stations, cache.StationsTTL, func() error {
		var err error
		stations, err = s.stations.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stations, nil
}

func (s *StationService) SearchStations(ctx context.Context, query string) ([]models.Station, error) {
	if err := validation.ValidateSearchQuery(query); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	return s.stations.Search(ctx, strings.TrimSpace(query))
}
