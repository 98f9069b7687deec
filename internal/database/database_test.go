package database

import (
	"testing"

	"lastday/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestOpenSQLite_MigratesModels(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"users", "boards", "posts", "stations"} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
	assert.True(t, db.Migrator().HasColumn("boards", "location_x"))
	assert.True(t, db.Migrator().HasIndex("posts", "idx_posts_board_created"))
}

func TestConfigurePool(t *testing.T) {
	db := openTestDB(t)

	err := configurePool(db, &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN("db", "5432", "u", "p", "lastday", "")
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=lastday sslmode=disable", dsn)
}
