// Command maintenance runs administrative batch jobs against the community data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lastday/internal/cache"
	"lastday/internal/config"
	"lastday/internal/database"
	"lastday/internal/featureflags"
	"lastday/internal/middleware"
	"lastday/internal/repository"
	"lastday/internal/seed"
	"lastday/internal/service"

	"gorm.io/gorm"
)

const (
	defaultNoticeTitle   = "커뮤니티 이용규칙"
	defaultNoticeContent = `여행지 커뮤니티를 이용해 주셔서 감사합니다. 모두가 즐겁게 정보를 나눌 수 있도록 아래 규칙을 지켜 주세요.

1. 다른 이용자를 비방하거나 불쾌감을 주는 글과 댓글은 삭제될 수 있습니다.
2. 광고, 홍보, 도배성 게시물은 사전 안내 없이 삭제됩니다.
3. 개인정보(연락처, 주소 등)를 게시하지 마세요.
4. 여행지와 관련 없는 글은 해당 지역 게시판의 성격에 맞지 않으니 삼가 주세요.
5. 불편한 이용자는 신고 기능으로 숨길 수 있습니다.

규칙을 반복해서 어기는 경우 이용이 제한될 수 있습니다.`
)

func main() {
	job := flag.String("job", "", "Job to run: seed-notices, update-board-images or repair")
	title := flag.String("title", defaultNoticeTitle, "Notice title for seed-notices")
	content := flag.String("content", defaultNoticeContent, "Notice body for seed-notices")
	sqlitePath := flag.String("sqlite", "", "Run against a local SQLite file instead of PostgreSQL")
	flag.Parse()

	if err := run(*job, *title, *content, *sqlitePath); err != nil {
		log.Fatal(err)
	}
}

func run(job, title, content, sqlitePath string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	middleware.ConfigureLogger(cfg.Env, cfg.LogLevel)

	var db *gorm.DB
	if sqlitePath != "" {
		db, err = database.OpenSQLite(sqlitePath)
	} else {
		db, err = database.Connect(cfg)
	}
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	cache.InitRedis(cfg.RedisURL)

	store := repository.NewStore(db)
	community := service.NewCommunityService(store, featureflags.NewManager(cfg.FeatureFlags), cfg.AdminUserID)
	maintenance := service.NewMaintenanceService(store, community, middleware.Logger,
		cfg.MaintenanceConcurrency, cfg.MaintenanceBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *service.JobReport
	switch job {
	case "seed-notices":
		report, err = maintenance.SeedNoticePosts(ctx, title, content)
	case "update-board-images":
		catalog, cerr := seed.LoadCatalog()
		if cerr != nil {
			return fmt.Errorf("load catalog: %w", cerr)
		}
		report, err = maintenance.UpdateBoardImages(ctx, cfg.BoardImageBaseURL, catalog)
	case "repair":
		report, err = maintenance.RepairConsistency(ctx)
	default:
		return fmt.Errorf("usage: maintenance -job <seed-notices|update-board-images|repair>")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", job, err)
	}

	log.Printf("%s: processed=%d failed=%d", job, report.Processed, len(report.Failed))
	for _, key := range report.Failed {
		log.Printf("failed: %s", key)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%s: %d records failed", job, len(report.Failed))
	}
	return nil
}
