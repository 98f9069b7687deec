package seed

import (
	"context"
	"fmt"
	"log/slog"

	"lastday/internal/middleware"
	"lastday/internal/models"
	"lastday/internal/repository"

	"gorm.io/gorm"
)

// Boards inserts the catalog boards that do not exist yet, matching on province and city.
// Existing boards keep their first article and image.
func Boards(ctx context.Context, db *gorm.DB, c *Catalog, imageBaseURL string) (int, error) {
	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range c.Boards {
			var existing int64
			err := tx.Model(&models.Board{}).
				Where("province = ? AND city = ?", entry.Province, entry.City).
				Count(&existing).Error
			if err != nil {
				return fmt.Errorf("board %s %s: %w", entry.Province, entry.City, err)
			}
			if existing > 0 {
				continue
			}

			board := entry.model(imageBaseURL)
			if err := tx.Create(&board).Error; err != nil {
				return fmt.Errorf("board %s %s: %w", entry.Province, entry.City, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	middleware.Logger.InfoContext(ctx, "boards seeded", slog.Int("created", created), slog.Int("catalog", len(c.Boards)))
	return created, nil
}

// Stations loads the station directory into an empty table. A populated table is left
// untouched.
func Stations(ctx context.Context, repo repository.StationRepository, c *Catalog) (int, error) {
	n, err := repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		middleware.Logger.InfoContext(ctx, "stations already present, skipping", slog.Int64("count", n))
		return 0, nil
	}

	stations := make([]models.Station, 0, len(c.Stations))
	for _, s := range c.Stations {
		stations = append(stations, s.model())
	}
	if err := repo.CreateBatch(ctx, stations); err != nil {
		return 0, err
	}
	middleware.Logger.InfoContext(ctx, "stations seeded", slog.Int("created", len(stations)))
	return len(stations), nil
}
