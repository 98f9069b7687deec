package repository

import (
	"context"

	"lastday/internal/models"

	"gorm.io/gorm"
)

// BoardRepository defines persistence operations for community boards.
type BoardRepository interface {
	List(ctx context.Context) ([]models.Board, error)
	GetByID(ctx context.Context, id uint) (*models.Board, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Board, error)
	Create(ctx context.Context, board *models.Board) error
	SetFirstArticle(ctx context.Context, id uint, title string) error
	SetImage(ctx context.Context, id uint, image string) error
	Count(ctx context.Context) (int64, error)
}

type boardRepository struct {
	db *gorm.DB
}

// NewBoardRepository returns a BoardRepository outside any transaction.
func NewBoardRepository(db *gorm.DB) BoardRepository {
	return &boardRepository{db: db}
}

// List returns every board in id order.
func (r *boardRepository) List(ctx context.Context) ([]models.Board, error) {
	var boards []models.Board
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&boards).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return boards, nil
}

func (r *boardRepository) GetByID(ctx context.Context, id uint) (*models.Board, error) {
	var board models.Board
	if err := r.db.WithContext(ctx).First(&board, id).Error; err != nil {
		return nil, notFoundOr(err, "Board", id)
	}
	return &board, nil
}

func (r *boardRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Board, error) {
	if len(ids) == 0 {
		return []models.Board{}, nil
	}
	var boards []models.Board
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&boards).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return boards, nil
}

func (r *boardRepository) Create(ctx context.Context, board *models.Board) error {
	if err := r.db.WithContext(ctx).Create(board).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *boardRepository) SetFirstArticle(ctx context.Context, id uint, title string) error {
	return r.updateColumn(ctx, id, "first_article", title)
}

func (r *boardRepository) SetImage(ctx context.Context, id uint, image string) error {
	return r.updateColumn(ctx, id, "image", image)
}

func (r *boardRepository) updateColumn(ctx context.Context, id uint, column string, value string) error {
	result := r.db.WithContext(ctx).Model(&models.Board{ID: id}).Update(column, value)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Board", id)
	}
	return nil
}

func (r *boardRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Board{}).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
