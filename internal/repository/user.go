package repository

import (
	"context"

	"lastday/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByIDsForUpdate(ctx context.Context, ids []uint) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User, columns ...string) error
	Delete(ctx context.Context, id uint) error
	ExistingIDs(ctx context.Context, ids []uint) ([]uint, error)
	ListAfter(ctx context.Context, afterID uint, limit int) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a UserRepository outside any transaction.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := forUpdate(r.db.WithContext(ctx)).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "User", username)
	}
	return &user, nil
}

// GetByIDsForUpdate locks the existing users among ids, ordered by id so concurrent
// cascades acquire locks in the same order. Unknown ids are skipped.
func (r *userRepository) GetByIDsForUpdate(ctx context.Context, ids []uint) ([]models.User, error) {
	var users []models.User
	for _, part := range chunk(ids, inClauseChunk) {
		var batch []models.User
		if err := forUpdate(r.db.WithContext(ctx)).Where("id IN ?", part).Order("id ASC").Find(&batch).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		users = append(users, batch...)
	}
	return users, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return models.NewConflictError("Username already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Update writes the given columns of user, or every column when none are named.
func (r *userRepository) Update(ctx context.Context, user *models.User, columns ...string) error {
	db := r.db.WithContext(ctx)
	var err error
	if len(columns) == 0 {
		err = db.Save(user).Error
	} else {
		err = db.Model(user).Select(columns).Updates(user).Error
	}
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func (r *userRepository) ExistingIDs(ctx context.Context, ids []uint) ([]uint, error) {
	var existing []uint
	for _, part := range chunk(ids, inClauseChunk) {
		var batch []uint
		if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id IN ?", part).Pluck("id", &batch).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		existing = append(existing, batch...)
	}
	return existing, nil
}

// ListAfter pages through users by id for batch jobs.
func (r *userRepository) ListAfter(ctx context.Context, afterID uint, limit int) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}
