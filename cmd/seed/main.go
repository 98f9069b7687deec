// Command main loads the board and station catalog and, optionally, demo community data.
package main

import (
	"context"
	"flag"
	"log"

	"lastday/internal/config"
	"lastday/internal/database"
	"lastday/internal/featureflags"
	"lastday/internal/repository"
	"lastday/internal/seed"
	"lastday/internal/service"

	"gorm.io/gorm"
)

func main() {
	demo := flag.Bool("demo", false, "Also create demo users, posts, comments and reactions")
	numUsers := flag.Int("users", 30, "Number of demo users to create")
	numPosts := flag.Int("posts", 120, "Number of demo posts to create")
	maxComments := flag.Int("comments", 5, "Maximum comments per demo post")
	skipBcrypt := flag.Bool("fast", false, "Store demo passwords without bcrypt (local use only)")
	randSeed := flag.Int64("seed", 0, "Random seed for demo data (0 = time based)")
	sqlitePath := flag.String("sqlite", "", "Seed a local SQLite file instead of PostgreSQL")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := open(cfg, *sqlitePath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	catalog, err := seed.LoadCatalog()
	if err != nil {
		log.Fatalf("❌ Catalog load failed: %v", err)
	}

	boards, err := seed.Boards(ctx, db, catalog, cfg.BoardImageBaseURL)
	if err != nil {
		log.Fatalf("❌ Board seeding failed: %v", err)
	}
	log.Printf("Boards created: %d of %d", boards, len(catalog.Boards))

	stations, err := seed.Stations(ctx, repository.NewStationRepository(db), catalog)
	if err != nil {
		log.Fatalf("❌ Station seeding failed: %v", err)
	}
	log.Printf("Stations created: %d", stations)

	if *demo {
		store := repository.NewStore(db)
		community := service.NewCommunityService(store, featureflags.NewManager(cfg.FeatureFlags), cfg.AdminUserID)
		report, err := seed.NewDemo(store, community, seed.DemoOptions{
			Users:       *numUsers,
			Posts:       *numPosts,
			MaxComments: *maxComments,
			SkipBcrypt:  *skipBcrypt,
			Seed:        *randSeed,
		}).Run(ctx)
		if err != nil {
			log.Fatalf("❌ Demo seeding failed: %v", err)
		}
		log.Printf("Demo data: %d users, %d posts, %d comments, %d reactions",
			report.Users, report.Posts, report.Comments, report.Reactions)
		log.Printf("📧 All demo users have the password: %s", seed.DemoPassword)
	}

	log.Println("✨ All done!")
}

func open(cfg *config.Config, sqlitePath string) (*gorm.DB, error) {
	if sqlitePath != "" {
		return database.OpenSQLite(sqlitePath)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.ApplySchema(context.Background(), db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}
