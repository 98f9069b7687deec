// Package service holds the business logic between the HTTP handlers and the repositories.
package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"lastday/internal/cache"
	"lastday/internal/featureflags"
	"lastday/internal/models"
	"lastday/internal/observability"
	"lastday/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

const (
	maxTitleLen   = 255
	maxContentLen = 5000
	maxCommentLen = 1000
)

// CommunityService performs every community mutation that touches more than one record.
// Each operation is one database transaction with the records it mutates locked.
type CommunityService struct {
	store   repository.Store
	flags   *featureflags.Manager
	adminID uint
	now     func() time.Time
}

type CreatePostInput struct {
	BoardID uint
	UserID  uint
	Title   string
	Content string
}

type EditPostInput struct {
	PostID  uint
	UserID  uint
	Title   string
	Content string
}

type DeletePostInput struct {
	PostID uint
	UserID uint
}

type CreateCommentInput struct {
	PostID  uint
	UserID  uint
	Content string
}

type DeleteCommentInput struct {
	PostID    uint
	CommentID string
	UserID    uint
}

func NewCommunityService(store repository.Store, flags *featureflags.Manager, adminID uint) *CommunityService {
	if flags == nil {
		flags = featureflags.NewManager("")
	}
	return &CommunityService{
		store:   store,
		flags:   flags,
		adminID: adminID,
		now:     time.Now,
	}
}

// run executes fn in a transaction. Errors the caller can act on pass through; anything
// else (driver errors, deadlocks, failed commits) becomes WRITE_FAILED.
func (s *CommunityService) run(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Store) error) error {
	span, ctx := observability.NewSpan(ctx, "community."+op)
	defer span.End()
	done := observability.TrackTransaction(op)

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		return fn(ctx, tx)
	})
	err = asWriteFailed(op, err)

	done(err)
	span.SetError(err)
	return err
}

func asWriteFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	switch models.ErrorCode(err) {
	case models.CodeNotFound, models.CodeValidation, models.CodeUnauthorized, models.CodeForbidden:
		return err
	}
	return models.NewWriteFailedError(op, err)
}

func (s *CommunityService) canModerate(actorID, authorID uint) bool {
	return actorID == authorID || actorID == s.adminID
}

func validateText(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return models.NewValidationError(field + " is required")
	}
	if utf8.RuneCountInString(value) > maxLen {
		return models.NewValidationError(field + " is too long")
	}
	return nil
}

func validatePostText(title, content string) error {
	if err := validateText("Title", title, maxTitleLen); err != nil {
		return err
	}
	return validateText("Content", content, maxContentLen)
}

// CreatePost inserts the post, refreshes the board's first_article and appends the post to
// the author's posts.
func (s *CommunityService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validatePostText(in.Title, in.Content); err != nil {
		return nil, err
	}

	var post *models.Post
	err := s.run(ctx, "create_post", func(ctx context.Context, tx repository.Store) error {
		author, err := tx.Users().GetByIDForUpdate(ctx, in.UserID)
		if err != nil {
			return err
		}
		if _, err := tx.Boards().GetByID(ctx, in.BoardID); err != nil {
			return err
		}

		post = &models.Post{
			BoardID: in.BoardID,
			UserID:  in.UserID,
			Title:   in.Title,
			Content: in.Content,
		}
		if err := tx.Posts().Create(ctx, post); err != nil {
			return err
		}
		if err := tx.Boards().SetFirstArticle(ctx, in.BoardID, in.Title); err != nil {
			return err
		}

		author.Posts, _ = models.AddToSet(author.Posts, post.ID)
		return tx.Users().Update(ctx, author, "posts")
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateBoards(ctx)
	return post, nil
}

// EditPost replaces title and content of a post owned by the actor.
func (s *CommunityService) EditPost(ctx context.Context, in EditPostInput) (*models.Post, error) {
	if err := validatePostText(in.Title, in.Content); err != nil {
		return nil, err
	}

	var post *models.Post
	err := s.run(ctx, "edit_post", func(ctx context.Context, tx repository.Store) error {
		var err error
		post, err = tx.Posts().GetByIDForUpdate(ctx, in.PostID)
		if err != nil {
			return err
		}
		if !s.canModerate(in.UserID, post.UserID) {
			return models.NewForbiddenError("Only the author can edit this post")
		}
		post.Title = in.Title
		post.Content = in.Content
		return tx.Posts().Update(ctx, post, "title", "content")
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost removes the post and its id from the author's posts, and points the board's
// first_article at the newest remaining post. With cascade_foreign_mirrors the likes,
// scraps and comments of other users are cleaned too.
func (s *CommunityService) DeletePost(ctx context.Context, in DeletePostInput) (*models.Post, error) {
	var post *models.Post
	cascade := s.flags.Enabled(featureflags.CascadeForeignMirrors, in.UserID)
	err := s.run(ctx, "delete_post", func(ctx context.Context, tx repository.Store) error {
		// Users are locked before posts in every operation.
		peek, err := tx.Posts().GetByID(ctx, in.PostID)
		if err != nil {
			return err
		}
		if !s.canModerate(in.UserID, peek.UserID) {
			return models.NewForbiddenError("Only the author can delete this post")
		}

		lockIDs := []uint{peek.UserID}
		if cascade {
			lockIDs = append(lockIDs, foreignUserIDs([]models.Post{*peek}, 0)...)
		}
		lockIDs, _ = models.Dedupe(lockIDs)
		users, err := tx.Users().GetByIDsForUpdate(ctx, lockIDs)
		if err != nil {
			return err
		}
		post, err = tx.Posts().GetByIDForUpdate(ctx, in.PostID)
		if err != nil {
			return err
		}

		if err := tx.Posts().Delete(ctx, post.ID); err != nil {
			return err
		}
		if err := refreshFirstArticle(ctx, tx, post.BoardID); err != nil {
			return err
		}

		for i := range users {
			if users[i].ID != post.UserID {
				continue
			}
			author := &users[i]
			var changed bool
			if author.Posts, changed = models.RemoveFromSet(author.Posts, post.ID); changed {
				if err := tx.Users().Update(ctx, author, "posts"); err != nil {
					return err
				}
			}
		}

		if cascade {
			return cascadeForeignMirrors(ctx, tx, users, []models.Post{*post})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateBoards(ctx)
	return post, nil
}

// refreshFirstArticle sets the board's first_article to the newest remaining post title,
// or clears it when the board is empty.
func refreshFirstArticle(ctx context.Context, tx repository.Store, boardID uint) error {
	title, err := tx.Posts().LatestTitle(ctx, boardID)
	if err != nil {
		return err
	}
	return tx.Boards().SetFirstArticle(ctx, boardID, title)
}

// CreateComment appends a comment to the post and its id to the commenter's comments.
func (s *CommunityService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Post, error) {
	if err := validateText("Content", in.Content, maxCommentLen); err != nil {
		return nil, err
	}

	var post *models.Post
	err := s.run(ctx, "create_comment", func(ctx context.Context, tx repository.Store) error {
		commenter, err := tx.Users().GetByIDForUpdate(ctx, in.UserID)
		if err != nil {
			return err
		}
		post, err = tx.Posts().GetByIDForUpdate(ctx, in.PostID)
		if err != nil {
			return err
		}

		comment := models.Comment{
			ID:        uuid.NewString(),
			UserID:    in.UserID,
			Content:   in.Content,
			CreatedAt: s.now(),
		}
		post.Comments = append(post.Comments, comment)
		if err := tx.Posts().Update(ctx, post, "comments"); err != nil {
			return err
		}

		commenter.Comments, _ = models.AddToSet(commenter.Comments, comment.ID)
		return tx.Users().Update(ctx, commenter, "comments")
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// DeleteComment pulls the comment from the post and its id from the comment author's
// comments. The actor must be the comment author or the admin.
func (s *CommunityService) DeleteComment(ctx context.Context, in DeleteCommentInput) (*models.Post, error) {
	var post *models.Post
	err := s.run(ctx, "delete_comment", func(ctx context.Context, tx repository.Store) error {
		peek, err := tx.Posts().GetByID(ctx, in.PostID)
		if err != nil {
			return err
		}
		idx := peek.FindComment(in.CommentID)
		if idx < 0 {
			return models.NewNotFoundError("Comment", in.CommentID)
		}
		authorID := peek.Comments[idx].UserID
		if !s.canModerate(in.UserID, authorID) {
			return models.NewForbiddenError("Only the author can delete this comment")
		}

		author, err := tx.Users().GetByIDForUpdate(ctx, authorID)
		if err != nil && !models.IsNotFound(err) {
			return err
		}
		post, err = tx.Posts().GetByIDForUpdate(ctx, in.PostID)
		if err != nil {
			return err
		}
		idx = post.FindComment(in.CommentID)
		if idx < 0 {
			return models.NewNotFoundError("Comment", in.CommentID)
		}

		post.Comments = append(post.Comments[:idx], post.Comments[idx+1:]...)
		if err := tx.Posts().Update(ctx, post, "comments"); err != nil {
			return err
		}
		if author != nil {
			var changed bool
			if author.Comments, changed = models.RemoveFromSet(author.Comments, in.CommentID); changed {
				return tx.Users().Update(ctx, author, "comments")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// reaction describes a membership pair mirrored on a user and a post.
type reaction struct {
	op       string
	column   string
	userList func(*models.User) *datatypes.JSONSlice[uint]
	postList func(*models.Post) *datatypes.JSONSlice[uint]
}

var (
	likeReaction = reaction{
		op:       "set_like",
		column:   "likes",
		userList: func(u *models.User) *datatypes.JSONSlice[uint] { return &u.Likes },
		postList: func(p *models.Post) *datatypes.JSONSlice[uint] { return &p.Likes },
	}
	scrapReaction = reaction{
		op:       "set_scrap",
		column:   "scraps",
		userList: func(u *models.User) *datatypes.JSONSlice[uint] { return &u.Scraps },
		postList: func(p *models.Post) *datatypes.JSONSlice[uint] { return &p.Scraps },
	}
)

// SetLike adds or removes the like on both the user and the post. Repeating a call is a
// no-op.
func (s *CommunityService) SetLike(ctx context.Context, userID, postID uint, present bool) (*models.Post, error) {
	return s.setReaction(ctx, likeReaction, userID, postID, present)
}

// SetScrap adds or removes the scrap on both the user and the post.
func (s *CommunityService) SetScrap(ctx context.Context, userID, postID uint, present bool) (*models.Post, error) {
	return s.setReaction(ctx, scrapReaction, userID, postID, present)
}

func (s *CommunityService) setReaction(ctx context.Context, r reaction, userID, postID uint, present bool) (*models.Post, error) {
	var post *models.Post
	err := s.run(ctx, r.op, func(ctx context.Context, tx repository.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		post, err = tx.Posts().GetByIDForUpdate(ctx, postID)
		if err != nil {
			return err
		}

		ul, pl := r.userList(user), r.postList(post)
		var userChanged, postChanged bool
		if present {
			*ul, userChanged = models.AddToSet(*ul, postID)
			*pl, postChanged = models.AddToSet(*pl, userID)
		} else {
			*ul, userChanged = models.RemoveFromSet(*ul, postID)
			*pl, postChanged = models.RemoveFromSet(*pl, userID)
		}

		if userChanged {
			if err := tx.Users().Update(ctx, user, r.column); err != nil {
				return err
			}
		}
		if postChanged {
			return tx.Posts().Update(ctx, post, r.column)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// SetFavorite adds or removes a board in the user's favorites. The board itself is not
// written.
func (s *CommunityService) SetFavorite(ctx context.Context, userID, boardID uint, present bool) error {
	return s.run(ctx, "set_favorite", func(ctx context.Context, tx repository.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := tx.Boards().GetByID(ctx, boardID); err != nil {
			return err
		}

		var changed bool
		if present {
			user.Favorites, changed = models.AddToSet(user.Favorites, boardID)
		} else {
			user.Favorites, changed = models.RemoveFromSet(user.Favorites, boardID)
		}
		if !changed {
			return nil
		}
		return tx.Users().Update(ctx, user, "favorites")
	})
}

// DeleteAccount deletes the user and every post they wrote, and pulls the user's likes,
// scraps and comments out of the posts of others.
func (s *CommunityService) DeleteAccount(ctx context.Context, userID uint) error {
	cascade := s.flags.Enabled(featureflags.CascadeForeignMirrors, userID)
	err := s.run(ctx, "delete_account", func(ctx context.Context, tx repository.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		// Foreign users are locked from an unlocked read of the authored posts so that no
		// user lock is taken after a post lock. References added after this read are left
		// for RepairConsistency.
		var foreign []models.User
		if cascade {
			peek, err := tx.Posts().ListByAuthor(ctx, userID)
			if err != nil {
				return err
			}
			if ids := foreignUserIDs(peek, userID); len(ids) > 0 {
				if foreign, err = tx.Users().GetByIDsForUpdate(ctx, ids); err != nil {
					return err
				}
			}
		}

		authored, err := tx.Posts().ListByAuthorForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		own := make(map[uint]struct{}, len(authored))
		authoredIDs := make([]uint, 0, len(authored))
		var boardIDs []uint
		for _, p := range authored {
			own[p.ID] = struct{}{}
			authoredIDs = append(authoredIDs, p.ID)
			boardIDs = append(boardIDs, p.BoardID)
		}

		touched, err := postsReferencing(ctx, tx, user, own)
		if err != nil {
			return err
		}
		myComments := make(map[string]struct{}, len(user.Comments))
		for _, id := range user.Comments {
			myComments[id] = struct{}{}
		}
		for i := range touched {
			if err := detachUser(ctx, tx, &touched[i], userID, myComments); err != nil {
				return err
			}
		}

		if err := tx.Posts().DeleteByIDs(ctx, authoredIDs); err != nil {
			return err
		}
		boardIDs, _ = models.Dedupe(boardIDs)
		for _, id := range boardIDs {
			if err := refreshFirstArticle(ctx, tx, id); err != nil {
				return err
			}
		}
		if cascade {
			if err := cascadeForeignMirrors(ctx, tx, foreign, authored); err != nil {
				return err
			}
		}
		observability.AddSpanAttributes(ctx,
			attribute.Int("community.deleted_posts", len(authoredIDs)),
			attribute.Int("community.detached_posts", len(touched)),
		)
		return tx.Users().Delete(ctx, userID)
	})
	if err != nil {
		return err
	}

	cache.InvalidateBoards(ctx)
	return nil
}

// postsReferencing locks the posts of others that the user liked, scrapped or commented on.
func postsReferencing(ctx context.Context, tx repository.Store, user *models.User, skip map[uint]struct{}) ([]models.Post, error) {
	var ids []uint
	for _, list := range [][]uint{user.Likes, user.Scraps} {
		for _, id := range list {
			if _, ok := skip[id]; !ok {
				ids = append(ids, id)
			}
		}
	}
	ids, _ = models.Dedupe(ids)

	posts, err := tx.Posts().GetByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]struct{}, len(posts))
	for _, p := range posts {
		seen[p.ID] = struct{}{}
	}

	commented, err := tx.Posts().FindByCommentIDs(ctx, user.Comments, true)
	if err != nil {
		return nil, err
	}
	for _, p := range commented {
		_, mine := skip[p.ID]
		_, dup := seen[p.ID]
		if mine || dup {
			continue
		}
		seen[p.ID] = struct{}{}
		posts = append(posts, p)
	}
	return posts, nil
}

// detachUser removes userID from the post's likes and scraps and drops the user's comments.
func detachUser(ctx context.Context, tx repository.Store, post *models.Post, userID uint, commentIDs map[string]struct{}) error {
	var columns []string
	var changed bool
	if post.Likes, changed = models.RemoveFromSet(post.Likes, userID); changed {
		columns = append(columns, "likes")
	}
	if post.Scraps, changed = models.RemoveFromSet(post.Scraps, userID); changed {
		columns = append(columns, "scraps")
	}
	if post.Comments, changed = models.FilterSet(post.Comments, func(c models.Comment) bool {
		_, drop := commentIDs[c.ID]
		return !drop && c.UserID != userID
	}); changed {
		columns = append(columns, "comments")
	}
	if len(columns) == 0 {
		return nil
	}
	return tx.Posts().Update(ctx, post, columns...)
}

// foreignUserIDs lists the users referenced by the posts' likes, scraps and comments, except
// skipUser.
func foreignUserIDs(posts []models.Post, skipUser uint) []uint {
	var ids []uint
	for _, p := range posts {
		ids = append(ids, p.Likes...)
		ids = append(ids, p.Scraps...)
		for _, c := range p.Comments {
			ids = append(ids, c.UserID)
		}
	}
	ids, _ = models.FilterSet(ids, func(id uint) bool { return id != skipUser })
	ids, _ = models.Dedupe(ids)
	return ids
}

// cascadeForeignMirrors removes deleted posts from the likes, scraps and comments lists of
// the already locked users.
func cascadeForeignMirrors(ctx context.Context, tx repository.Store, users []models.User, posts []models.Post) error {
	postIDs := make([]uint, 0, len(posts))
	var commentIDs []string
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		commentIDs = append(commentIDs, p.CommentIDs()...)
	}

	for i := range users {
		u := &users[i]
		var columns []string
		var changed bool
		if u.Likes, changed = models.RemoveAllFromSet(u.Likes, postIDs); changed {
			columns = append(columns, "likes")
		}
		if u.Scraps, changed = models.RemoveAllFromSet(u.Scraps, postIDs); changed {
			columns = append(columns, "scraps")
		}
		if u.Comments, changed = models.RemoveAllFromSet(u.Comments, commentIDs); changed {
			columns = append(columns, "comments")
		}
		if len(columns) == 0 {
			continue
		}
		if err := tx.Users().Update(ctx, u, columns...); err != nil {
			return err
		}
	}
	return nil
}
