package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                    "development",
		JWTSecret:              "secure-secret-at-least-32-chars-long",
		DBPassword:             "secure-password",
		DBSSLMode:              "require",
		Port:                   "8375",
		AdminUserID:            1,
		CommunityPageSize:      20,
		MaintenanceConcurrency: 4,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid development config", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"missing admin id", func(c *Config) { c.AdminUserID = 0 }, true},
		{"page size zero", func(c *Config) { c.CommunityPageSize = 0 }, true},
		{"page size above cap", func(c *Config) { c.CommunityPageSize = MaxCommunityPageSize + 1 }, true},
		{"page size at cap", func(c *Config) { c.CommunityPageSize = MaxCommunityPageSize }, false},
		{"no maintenance workers", func(c *Config) { c.MaintenanceConcurrency = 0 }, true},
		{"production with default secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = defaultJWTSecret
		}, true},
		{"production with short secret", func(c *Config) {
			c.Env = "prod"
			c.JWTSecret = "short"
		}, true},
		{"production with default db password", func(c *Config) {
			c.Env = "production"
			c.DBPassword = "password"
		}, true},
		{"production with strong settings", func(c *Config) { c.Env = "production" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_FavoriteBoardIDs(t *testing.T) {
	c := &Config{DefaultFavoriteBoardIDs: " 3, 1,,x,0, 7 "}
	assert.Equal(t, []uint{3, 1, 7}, c.FavoriteBoardIDs())

	c.DefaultFavoriteBoardIDs = ""
	assert.Empty(t, c.FavoriteBoardIDs())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	defer viper.Reset()
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("COMMUNITY_ADMIN_USER_ID")
	defer os.Unsetenv("COMMUNITY_PAGE_SIZE")

	os.Setenv("APP_ENV", "development")
	os.Setenv("COMMUNITY_ADMIN_USER_ID", "42")
	os.Setenv("COMMUNITY_PAGE_SIZE", "10")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, uint(42), c.AdminUserID)
	assert.Equal(t, 10, c.CommunityPageSize)
	assert.Equal(t, "8375", c.Port)
	assert.Equal(t, 4, c.MaintenanceConcurrency)
}
