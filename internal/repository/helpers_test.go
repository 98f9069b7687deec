package repository

import (
	"testing"

	"lastday/internal/database"
	"lastday/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock
}

func mustCreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Password: "x", UserType: models.UserTypeDirect}
	require.NoError(t, db.Create(u).Error)
	return u
}

func mustCreateBoard(t *testing.T, db *gorm.DB, city string) *models.Board {
	t.Helper()
	b := &models.Board{Province: "Seoul", ProvAbb: "SEO", City: city}
	require.NoError(t, db.Create(b).Error)
	return b
}

func mustCreatePost(t *testing.T, db *gorm.DB, boardID, userID uint, title string) *models.Post {
	t.Helper()
	p := &models.Post{BoardID: boardID, UserID: userID, Title: title, Content: "body"}
	require.NoError(t, db.Create(p).Error)
	return p
}
