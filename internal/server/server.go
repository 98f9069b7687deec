// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	_ "lastday/docs" // swagger docs
	"lastday/internal/bootstrap"
	"lastday/internal/cache"
	"lastday/internal/config"
	"lastday/internal/featureflags"
	"lastday/internal/middleware"
	"lastday/internal/models"
	"lastday/internal/notifications"
	"lastday/internal/repository"
	"lastday/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	readDB         *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	tokens       *middleware.TokenManager
	limiter      *middleware.RateLimiter
	mailer       *notifications.Mailer
	featureFlags *featureflags.Manager

	community *service.CommunityService
	queries   *service.QueryService
	auth      *service.AuthService
	users     *service.UserService
	stations  *service.StationService
	recommend *service.RecommendService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{SeedCatalog: cfg.SeedOnStart})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, rt.DB, rt.ReadDB, rt.Redis)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// readDB may equal db. redisClient may be nil, in which case caching, rate limiting,
// logout and the mail outbox degrade as documented on their types.
func NewServerWithDeps(cfg *config.Config, db, readDB *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if readDB == nil {
		readDB = db
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	blacklist := cache.NewTokenBlacklist(redisClient)
	tokens := middleware.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.JWTExpirationHours)*time.Hour, blacklist)
	mailer := notifications.NewMailer(redisClient, cfg.MailChannel, cfg.MailFrom)

	store := repository.NewStore(db)
	readStore := repository.NewStore(readDB)

	s := &Server{
		config:         cfg,
		db:             db,
		readDB:         readDB,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("lastday-api"),
		tokens:         tokens,
		limiter:        middleware.NewRateLimiter(redisClient, cfg.RateLimitEnabled || cfg.IsProduction()),
		mailer:         mailer,
		featureFlags:   flags,
	}

	s.community = service.NewCommunityService(store, flags, cfg.AdminUserID)
	s.queries = service.NewQueryService(readStore, cfg.AdminUserID, cfg.CommunityPageSize)
	s.auth = service.NewAuthService(store, tokens, blacklist, mailer, flags, cfg.FavoriteBoardIDs())
	s.users = service.NewUserService(store)
	s.stations = service.NewStationService(repository.NewStationRepository(readDB))
	s.recommend = service.NewRecommendService(service.RecommendConfig{
		ModelURL:    cfg.ModelURL,
		KakaoAPIURL: cfg.KakaoAPIURL,
		KakaoAPIKey: cfg.KakaoAPIKey,
		TourAPIURL:  cfg.TourAPIURL,
		TourAPIKey:  cfg.TourAPIKey,
		Timeout:     time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second,
	})

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Propagates request, user and trace ids into the request context
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	authRequired := s.tokens.AuthRequired()
	writeLimit := s.limiter.Handler("write", 60, time.Minute, middleware.FailOpen)

	auth := api.Group("/auth")
	auth.Post("/register", s.limiter.Handler("register", 5, 10*time.Minute, middleware.FailOpen), s.Register)
	auth.Post("/login", s.limiter.Handler("login", 10, 5*time.Minute, middleware.FailOpen), s.Login)
	auth.Post("/sns-login", s.limiter.Handler("login", 10, 5*time.Minute, middleware.FailOpen), s.SNSLogin)
	auth.Post("/forgot", s.limiter.Handler("forgot", 3, 10*time.Minute, middleware.FailOpen), s.ForgotPassword)
	auth.Post("/verify", authRequired, s.limiter.Handler("verify", 10, 10*time.Minute, middleware.FailOpen), s.Verify)
	auth.Post("/logout", authRequired, s.Logout)

	users := api.Group("/users/me", authRequired)
	users.Get("/", s.GetMyProfile)
	users.Patch("/", writeLimit, s.UpdateMyProfile)
	users.Delete("/", writeLimit, s.DeleteMyAccount)
	users.Post("/verification-token", s.limiter.Handler("verification", 3, 10*time.Minute, middleware.FailOpen), s.RegenerateVerificationToken)
	users.Post("/reports/:userId", writeLimit, s.ReportUser)
	users.Delete("/reports/:userId", writeLimit, s.UnreportUser)
	users.Get("/histories", s.GetHistories)
	users.Delete("/histories/:historyId", writeLimit, s.DeleteHistory)

	community := api.Group("/community")
	community.Get("/boards", s.GetBoards)
	community.Get("/boards/nearby", s.GetNearbyBoards)
	community.Get("/boards/favorites", authRequired, s.GetFavoriteBoards)
	community.Get("/boards/:boardId", authRequired, s.GetBoard)
	community.Post("/boards/:boardId/favorite", authRequired, writeLimit, s.AddFavorite)
	community.Delete("/boards/:boardId/favorite", authRequired, writeLimit, s.RemoveFavorite)
	community.Post("/boards/:boardId/posts", authRequired, writeLimit, s.CreatePost)
	community.Get("/posts/:postId", authRequired, s.GetPost)
	community.Patch("/posts/:postId", authRequired, writeLimit, s.EditPost)
	community.Delete("/posts/:postId", authRequired, writeLimit, s.DeletePost)
	community.Post("/posts/:postId/like", authRequired, writeLimit, s.LikePost)
	community.Delete("/posts/:postId/like", authRequired, writeLimit, s.UnlikePost)
	community.Post("/posts/:postId/scrap", authRequired, writeLimit, s.ScrapPost)
	community.Delete("/posts/:postId/scrap", authRequired, writeLimit, s.UnscrapPost)
	community.Post("/posts/:postId/comments", authRequired, writeLimit, s.CreateComment)
	community.Delete("/posts/:postId/comments/:commentId", authRequired, writeLimit, s.DeleteComment)
	community.Get("/me/:kind", authRequired, s.GetMyContent)

	stations := api.Group("/stations")
	stations.Get("/", s.GetStations)
	stations.Get("/search", s.SearchStations)

	recommend := api.Group("/recommend")
	recommend.Get("/coordinate", s.Coordinate)
	recommend.Post("/rooms", s.RecommendRooms)
	recommend.Post("/stations", s.RecommendStations)
	recommend.Get("/places/:contentId", s.GetPlace)
	recommend.Post("/histories", authRequired, writeLimit, s.AddHistory)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// errorHandler renders errors that escaped a handler. Route misses and body limits come in
// as *fiber.Error.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := models.CodeInternal
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = models.CodeNotFound
		case fe.Code < fiber.StatusInternalServerError:
			code = models.CodeValidation
		}
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message, Code: code})
	}

	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, models.HTTPStatus(err), err)
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "LastDay API",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the mail subscriber and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	if err := s.mailer.StartSubscriber(s.shutdownCtx, notifications.LogSender{}); err != nil {
		middleware.Logger.Warn("mail subscriber not started", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	closeDB := func(db *gorm.DB) {
		if sqlDB, err := db.DB(); err == nil {
			if cerr := sqlDB.Close(); cerr != nil {
				middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
			}
		}
	}
	if s.readDB != nil && s.readDB != s.db {
		closeDB(s.readDB)
	}
	closeDB(s.db)

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
