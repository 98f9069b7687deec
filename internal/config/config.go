// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret          string `mapstructure:"JWT_SECRET"`
	JWTExpirationHours int    `mapstructure:"JWT_EXPIRATION_HOURS"`
	Port               string `mapstructure:"PORT"`
	Env                string `mapstructure:"APP_ENV"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`

	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	DBReadHost               string `mapstructure:"DB_READ_HOST"`
	DBReadPort               string `mapstructure:"DB_READ_PORT"`
	DBReadUser               string `mapstructure:"DB_READ_USER"`
	DBReadPassword           string `mapstructure:"DB_READ_PASSWORD"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBSchemaMode             string `mapstructure:"DB_SCHEMA_MODE"`

	RedisURL         string `mapstructure:"REDIS_URL"`
	AllowedOrigins   string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags     string `mapstructure:"FEATURE_FLAGS"`
	RateLimitEnabled bool   `mapstructure:"RATE_LIMIT_ENABLED"`

	// Community
	AdminUserID             uint   `mapstructure:"COMMUNITY_ADMIN_USER_ID"`
	CommunityPageSize       int    `mapstructure:"COMMUNITY_PAGE_SIZE"`
	DefaultFavoriteBoardIDs string `mapstructure:"DEFAULT_FAVORITE_BOARD_IDS"`
	BoardImageBaseURL       string `mapstructure:"BOARD_IMAGE_BASE_URL"`

	// Upstreams used by the recommend proxy
	ModelURL               string `mapstructure:"MODEL_URL"`
	KakaoAPIURL            string `mapstructure:"KAKAO_API_URL"`
	KakaoAPIKey            string `mapstructure:"KAKAO_API_KEY"`
	TourAPIURL             string `mapstructure:"TOUR_API_URL"`
	TourAPIKey             string `mapstructure:"TOUR_API_KEY"`
	UpstreamTimeoutSeconds int    `mapstructure:"UPSTREAM_TIMEOUT_SECONDS"`

	MailFrom    string `mapstructure:"MAIL_FROM"`
	MailChannel string `mapstructure:"MAIL_CHANNEL"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	MaintenanceConcurrency int `mapstructure:"MAINTENANCE_CONCURRENCY"`
	MaintenanceBatchSize   int `mapstructure:"MAINTENANCE_BATCH_SIZE"`

	// Development bootstrap
	SeedOnStart       bool   `mapstructure:"SEED_ON_START"`
	DevBootstrapAdmin bool   `mapstructure:"DEV_BOOTSTRAP_ADMIN"`
	DevAdminUsername  string `mapstructure:"DEV_ADMIN_USERNAME"`
	DevAdminPassword  string `mapstructure:"DEV_ADMIN_PASSWORD"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; env vars alone are enough.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults(viper.GetViper())

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8375")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_EXPIRATION_HOURS", 24*7)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "lastday")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_READ_HOST", "")
	v.SetDefault("DB_READ_PORT", "5432")
	v.SetDefault("DB_READ_USER", "user")
	v.SetDefault("DB_READ_PASSWORD", "password")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	v.SetDefault("DB_SCHEMA_MODE", "hybrid")

	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("FEATURE_FLAGS", "")
	v.SetDefault("RATE_LIMIT_ENABLED", false)

	v.SetDefault("COMMUNITY_ADMIN_USER_ID", 1)
	v.SetDefault("COMMUNITY_PAGE_SIZE", 20)
	v.SetDefault("DEFAULT_FAVORITE_BOARD_IDS", "1,2,3,4")
	v.SetDefault("BOARD_IMAGE_BASE_URL", "https://static.lastday.app/boards/")

	v.SetDefault("MODEL_URL", "http://localhost:5000")
	v.SetDefault("KAKAO_API_URL", "https://dapi.kakao.com/v2/local/search/keyword.json")
	v.SetDefault("KAKAO_API_KEY", "")
	v.SetDefault("TOUR_API_URL", "https://apis.data.go.kr/B551011/KorService1")
	v.SetDefault("TOUR_API_KEY", "")
	v.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 10)

	v.SetDefault("MAIL_FROM", "no-reply@lastday.app")
	v.SetDefault("MAIL_CHANNEL", "mail:outbox")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	v.SetDefault("MAINTENANCE_CONCURRENCY", 4)
	v.SetDefault("MAINTENANCE_BATCH_SIZE", 200)

	v.SetDefault("SEED_ON_START", false)
	v.SetDefault("DEV_BOOTSTRAP_ADMIN", false)
	v.SetDefault("DEV_ADMIN_USERNAME", "admin@lastday.local")
	v.SetDefault("DEV_ADMIN_PASSWORD", "")
}

// MaxCommunityPageSize bounds the board detail page size.
const MaxCommunityPageSize = 100

// IsProduction reports whether the config targets a production-like environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// FavoriteBoardIDs parses DEFAULT_FAVORITE_BOARD_IDS. Malformed entries are skipped.
func (c *Config) FavoriteBoardIDs() []uint {
	var ids []uint
	for _, part := range strings.Split(c.DefaultFavoriteBoardIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.AdminUserID == 0 {
		return errors.New("COMMUNITY_ADMIN_USER_ID is required")
	}
	if c.CommunityPageSize < 1 || c.CommunityPageSize > MaxCommunityPageSize {
		return fmt.Errorf("COMMUNITY_PAGE_SIZE must be between 1 and %d", MaxCommunityPageSize)
	}
	if c.MaintenanceConcurrency < 1 {
		return errors.New("MAINTENANCE_CONCURRENCY must be at least 1")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
		if c.KakaoAPIKey == "" || c.TourAPIKey == "" {
			log.Println("WARNING: KAKAO_API_KEY or TOUR_API_KEY is empty; recommend endpoints will fail upstream.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
