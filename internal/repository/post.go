package repository

import (
	"context"
	"encoding/json"
	"strings"

	"lastday/internal/models"

	"gorm.io/gorm"
)

// PostRepository defines persistence operations for posts and their embedded comments.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Post, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Post, error)
	GetByIDsForUpdate(ctx context.Context, ids []uint) ([]models.Post, error)
	ListByBoard(ctx context.Context, boardID uint, excludeAuthors []uint, limit, offset int) ([]models.Post, error)
	CountByBoard(ctx context.Context, boardID uint, excludeAuthors []uint) (int64, error)
	ListByAuthor(ctx context.Context, userID uint) ([]models.Post, error)
	ListByAuthorForUpdate(ctx context.Context, userID uint) ([]models.Post, error)
	FindByCommentIDs(ctx context.Context, commentIDs []string, lock bool) ([]models.Post, error)
	LatestTitle(ctx context.Context, boardID uint) (string, error)
	Update(ctx context.Context, post *models.Post, columns ...string) error
	Delete(ctx context.Context, id uint) error
	DeleteByIDs(ctx context.Context, ids []uint) error
	ExistingIDs(ctx context.Context, ids []uint) ([]uint, error)
	ListAfter(ctx context.Context, afterID uint, limit int) ([]models.Post, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository returns a PostRepository outside any transaction.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// newestFirst is the board ordering. Ties on created_at fall back to id.
const newestFirst = "created_at DESC, id DESC"

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := forUpdate(r.db.WithContext(ctx)).First(&post, id).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

// GetByIDs returns the existing posts among ids in id order.
func (r *postRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Post, error) {
	return r.getByIDs(r.db.WithContext(ctx), ids)
}

func (r *postRepository) GetByIDsForUpdate(ctx context.Context, ids []uint) ([]models.Post, error) {
	return r.getByIDs(forUpdate(r.db.WithContext(ctx)), ids)
}

func (r *postRepository) getByIDs(db *gorm.DB, ids []uint) ([]models.Post, error) {
	posts := []models.Post{}
	db = db.Session(&gorm.Session{})
	for _, part := range chunk(ids, inClauseChunk) {
		var batch []models.Post
		if err := db.Where("id IN ?", part).Order("id ASC").Find(&batch).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		posts = append(posts, batch...)
	}
	return posts, nil
}

func (r *postRepository) boardQuery(ctx context.Context, boardID uint, excludeAuthors []uint) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Post{}).Where("board_id = ?", boardID)
	if len(excludeAuthors) > 0 {
		q = q.Where("user_id NOT IN ?", excludeAuthors)
	}
	return q
}

// ListByBoard returns one page of a board's posts, newest first, skipping posts by
// excludeAuthors.
func (r *postRepository) ListByBoard(ctx context.Context, boardID uint, excludeAuthors []uint, limit, offset int) ([]models.Post, error) {
	posts := []models.Post{}
	err := r.boardQuery(ctx, boardID, excludeAuthors).
		Order(newestFirst).
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) CountByBoard(ctx context.Context, boardID uint, excludeAuthors []uint) (int64, error) {
	var n int64
	if err := r.boardQuery(ctx, boardID, excludeAuthors).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *postRepository) ListByAuthor(ctx context.Context, userID uint) ([]models.Post, error) {
	posts := []models.Post{}
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) ListByAuthorForUpdate(ctx context.Context, userID uint) ([]models.Post, error) {
	posts := []models.Post{}
	if err := forUpdate(r.db.WithContext(ctx)).Where("user_id = ?", userID).Order("id ASC").Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// FindByCommentIDs returns the posts embedding any of the comment ids, in id order.
// Postgres uses jsonb containment so the GIN index on comments applies.
func (r *postRepository) FindByCommentIDs(ctx context.Context, commentIDs []string, lock bool) ([]models.Post, error) {
	posts := []models.Post{}
	seen := make(map[uint]struct{})
	for _, part := range chunk(commentIDs, inClauseChunk) {
		db := r.db.WithContext(ctx)
		if lock {
			db = forUpdate(db)
		}

		var err error
		if isPostgres(db) {
			db, err = containsCommentPostgres(db, part)
			if err != nil {
				return nil, models.NewInternalError(err)
			}
		} else {
			db = db.Where("EXISTS (SELECT 1 FROM json_each(posts.comments) AS c WHERE json_extract(c.value, '$.id') IN ?)", part)
		}

		var batch []models.Post
		if err := db.Order("id ASC").Find(&batch).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		for _, p := range batch {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func containsCommentPostgres(db *gorm.DB, ids []string) (*gorm.DB, error) {
	conds := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		probe, err := json.Marshal([]map[string]string{{"id": id}})
		if err != nil {
			return nil, err
		}
		conds = append(conds, "comments @> ?::jsonb")
		args = append(args, string(probe))
	}
	return db.Where(strings.Join(conds, " OR "), args...), nil
}

// LatestTitle returns the title of the board's newest post, or "" when it has none.
func (r *postRepository) LatestTitle(ctx context.Context, boardID uint) (string, error) {
	var titles []string
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("board_id = ?", boardID).
		Order(newestFirst).
		Limit(1).
		Pluck("title", &titles).Error
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if len(titles) == 0 {
		return "", nil
	}
	return titles[0], nil
}

// Update writes the given columns of post, or every column when none are named.
func (r *postRepository) Update(ctx context.Context, post *models.Post, columns ...string) error {
	db := r.db.WithContext(ctx)
	var err error
	if len(columns) == 0 {
		err = db.Save(post).Error
	} else {
		err = db.Model(post).Select(columns).Updates(post).Error
	}
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

func (r *postRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	for _, part := range chunk(ids, inClauseChunk) {
		if err := r.db.WithContext(ctx).Where("id IN ?", part).Delete(&models.Post{}).Error; err != nil {
			return models.NewInternalError(err)
		}
	}
	return nil
}

func (r *postRepository) ExistingIDs(ctx context.Context, ids []uint) ([]uint, error) {
	existing := []uint{}
	for _, part := range chunk(ids, inClauseChunk) {
		var batch []uint
		if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id IN ?", part).Pluck("id", &batch).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		existing = append(existing, batch...)
	}
	return existing, nil
}

// ListAfter pages through posts by id for batch jobs.
func (r *postRepository) ListAfter(ctx context.Context, afterID uint, limit int) ([]models.Post, error) {
	var posts []models.Post
	if err := r.db.WithContext(ctx).Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}
