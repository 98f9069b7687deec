package service

import (
	"context"
	"testing"

	"lastday/internal/database"
	"lastday/internal/models"
	"lastday/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testAdminID uint = 1

type fixture struct {
	db    *gorm.DB
	store repository.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &fixture{db: db, store: repository.NewStore(db)}
}

func (f *fixture) user(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Password: "x", UserType: models.UserTypeDirect}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) board(t *testing.T, provAbb, city string, x, y float64) *models.Board {
	t.Helper()
	b := &models.Board{Province: provAbb, ProvAbb: provAbb, City: city, Location: models.Location{X: x, Y: y}}
	require.NoError(t, f.db.Create(b).Error)
	return b
}

func (f *fixture) reloadUser(t *testing.T, id uint) *models.User {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) reloadPost(t *testing.T, id uint) *models.Post {
	t.Helper()
	p, err := f.store.Posts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, models.ErrorCode(err), "unexpected error: %v", err)
}

// failingStore makes every post update inside a transaction fail after the user side has
// been written.
type failingStore struct {
	repository.Store
	err error
}

type failingPosts struct {
	repository.PostRepository
	err error
}

func (p failingPosts) Update(context.Context, *models.Post, ...string) error { return p.err }

func (s failingStore) Posts() repository.PostRepository {
	return failingPosts{PostRepository: s.Store.Posts(), err: s.err}
}

func (s failingStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(failingStore{Store: tx, err: s.err})
	})
}

// lockRecorder notes the order in which users and posts are locked.
type lockRecorder struct {
	locks []string
}

func (r *lockRecorder) assertUsersFirst(t *testing.T) {
	t.Helper()
	seenPost := false
	for _, l := range r.locks {
		if l == "post" {
			seenPost = true
			continue
		}
		assert.False(t, seenPost, "user locked after a post: %v", r.locks)
	}
	assert.Contains(t, r.locks, "post")
}

type recordingStore struct {
	repository.Store
	rec *lockRecorder
}

type recordingUsers struct {
	repository.UserRepository
	rec *lockRecorder
}

type recordingPosts struct {
	repository.PostRepository
	rec *lockRecorder
}

func (s recordingStore) Users() repository.UserRepository {
	return recordingUsers{UserRepository: s.Store.Users(), rec: s.rec}
}

func (s recordingStore) Posts() repository.PostRepository {
	return recordingPosts{PostRepository: s.Store.Posts(), rec: s.rec}
}

func (s recordingStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(recordingStore{Store: tx, rec: s.rec})
	})
}

func (u recordingUsers) GetByIDForUpdate(ctx context.Context, id uint) (*models.User, error) {
	u.rec.locks = append(u.rec.locks, "user")
	return u.UserRepository.GetByIDForUpdate(ctx, id)
}

func (u recordingUsers) GetByIDsForUpdate(ctx context.Context, ids []uint) ([]models.User, error) {
	u.rec.locks = append(u.rec.locks, "user")
	return u.UserRepository.GetByIDsForUpdate(ctx, ids)
}

func (p recordingPosts) GetByIDForUpdate(ctx context.Context, id uint) (*models.Post, error) {
	p.rec.locks = append(p.rec.locks, "post")
	return p.PostRepository.GetByIDForUpdate(ctx, id)
}

func (p recordingPosts) GetByIDsForUpdate(ctx context.Context, ids []uint) ([]models.Post, error) {
	p.rec.locks = append(p.rec.locks, "post")
	return p.PostRepository.GetByIDsForUpdate(ctx, ids)
}

func (p recordingPosts) ListByAuthorForUpdate(ctx context.Context, userID uint) ([]models.Post, error) {
	p.rec.locks = append(p.rec.locks, "post")
	return p.PostRepository.ListByAuthorForUpdate(ctx, userID)
}

func (p recordingPosts) FindByCommentIDs(ctx context.Context, ids []string, lock bool) ([]models.Post, error) {
	if lock {
		p.rec.locks = append(p.rec.locks, "post")
	}
	return p.PostRepository.FindByCommentIDs(ctx, ids, lock)
}
