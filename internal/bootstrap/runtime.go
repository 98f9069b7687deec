// Package bootstrap wires the process-wide runtime: databases, Redis and development data.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lastday/internal/cache"
	"lastday/internal/config"
	"lastday/internal/database"
	"lastday/internal/middleware"
	"lastday/internal/models"
	"lastday/internal/repository"
	"lastday/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedCatalog bool
}

// Runtime holds the connections shared by the server.
type Runtime struct {
	DB     *gorm.DB
	ReadDB *gorm.DB
	Redis  *redis.Client
}

// InitRuntime connects to the primary and read databases, applies the schema, connects
// Redis and optionally loads the board and station catalog.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("schema apply failed: %w", err)
	}

	readDB, err := database.ConnectRead(cfg, db)
	if err != nil {
		return nil, fmt.Errorf("read replica connection failed: %w", err)
	}

	// Redis may be nil when unreachable
	cache.InitRedis(cfg.RedisURL)

	if err := ensureDevAdmin(ctx, cfg, db); err != nil {
		return nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	if opts.SeedCatalog {
		if err := seedCatalog(ctx, cfg, db); err != nil {
			return nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
	}

	return &Runtime{DB: db, ReadDB: readDB, Redis: cache.GetClient()}, nil
}

func seedCatalog(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	catalog, err := seed.LoadCatalog()
	if err != nil {
		return err
	}
	if _, err := seed.Boards(ctx, db, catalog, cfg.BoardImageBaseURL); err != nil {
		return err
	}
	_, err = seed.Stations(ctx, repository.NewStationRepository(db), catalog)
	return err
}

// ensureDevAdmin makes sure the community admin account exists in development so notice
// posts and moderation work on a fresh database.
func ensureDevAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapAdmin {
		return nil
	}

	username := strings.TrimSpace(strings.ToLower(cfg.DevAdminUsername))
	if username == "" {
		username = "admin@lastday.local"
	}
	if cfg.DevAdminPassword == "" {
		return errors.New("DEV_ADMIN_PASSWORD must be set when DEV_BOOTSTRAP_ADMIN is enabled")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.DevAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.User
		findErr := tx.First(&admin, cfg.AdminUserID).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			admin = models.User{
				ID:         cfg.AdminUserID,
				Username:   username,
				Password:   string(hashedPassword),
				Name:       "관리자",
				UserType:   models.UserTypeDirect,
				IsVerified: true,
			}
			if err := tx.Create(&admin).Error; err != nil {
				return err
			}
		case findErr != nil:
			return findErr
		default:
			return nil
		}

		// Explicit id inserts leave the PostgreSQL sequence behind.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(`
				SELECT setval(
					pg_get_serial_sequence('users', 'id'),
					GREATEST((SELECT COALESCE(MAX(id), 1) FROM users), 1),
					true
				)
			`).Error; err != nil {
				return fmt.Errorf("failed to reset users sequence: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	middleware.Logger.InfoContext(ctx, "development admin ensured",
		slog.Uint64("user_id", uint64(cfg.AdminUserID)), slog.String("username", username))
	return nil
}
