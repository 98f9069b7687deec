package service

import (
	"context"
	"sort"

	"lastday/internal/cache"
	"lastday/internal/config"
	"lastday/internal/models"
	"lastday/internal/repository"
)

const nearbyBoardCount = 4

// Content kinds accepted by GetUserContent.
const (
	ContentPosts    = "posts"
	ContentComments = "comments"
	ContentLikes    = "likes"
	ContentScraps   = "scraps"
)

// PostSummary is a post as listed on a board or a profile page.
type PostSummary struct {
	ID           uint   `json:"id"`
	BoardID      uint   `json:"board_id"`
	UserID       uint   `json:"user_id"`
	Title        string `json:"title"`
	Mine         bool   `json:"mine"`
	Admin        bool   `json:"admin"`
	CommentCount int    `json:"comment_count"`
	LikeCount    int    `json:"like_count"`
	ScrapCount   int    `json:"scrap_count"`
	CreatedAt    string `json:"created_at"`
}

type BoardDetail struct {
	Board    models.Board  `json:"board"`
	Favorite bool          `json:"favorite"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int64         `json:"total"`
	Posts    []PostSummary `json:"posts"`
}

type CommentView struct {
	ID        string `json:"id"`
	UserID    uint   `json:"user_id"`
	Content   string `json:"content"`
	Mine      bool   `json:"mine"`
	Admin     bool   `json:"admin"`
	PostOwner bool   `json:"post_owner"`
	CreatedAt string `json:"created_at"`
}

type PostDetail struct {
	ID           uint          `json:"id"`
	BoardID      uint          `json:"board_id"`
	UserID       uint          `json:"user_id"`
	Title        string        `json:"title"`
	Content      string        `json:"content"`
	Mine         bool          `json:"mine"`
	Admin        bool          `json:"admin"`
	Liked        bool          `json:"liked"`
	Scrapped     bool          `json:"scrapped"`
	CommentCount int           `json:"comment_count"`
	LikeCount    int           `json:"like_count"`
	ScrapCount   int           `json:"scrap_count"`
	CreatedAt    string        `json:"created_at"`
	Comments     []CommentView `json:"comments"`
}

// QueryService assembles the read-side views of the community. It never writes.
type QueryService struct {
	store    repository.Store
	adminID  uint
	pageSize int
}

func NewQueryService(store repository.Store, adminID uint, pageSize int) *QueryService {
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > config.MaxCommunityPageSize {
		pageSize = config.MaxCommunityPageSize
	}
	return &QueryService{store: store, adminID: adminID, pageSize: pageSize}
}

func (s *QueryService) viewer(ctx context.Context, viewerID uint) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, viewerID)
	if models.IsNotFound(err) {
		return nil, models.NewUnauthorizedError("Unknown user")
	}
	return user, err
}

// allBoards returns every board in id order, served from Redis when cached.
func (s *QueryService) allBoards(ctx context.Context) ([]models.Board, error) {
	var boards []models.Board
	err := cache.Aside(ctx, cache.BoardsGroup, cache.BoardsKey, &boards, cache.BoardsTTL, func() error {
		var err error
		boards, err = s.store.Boards().List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if boards == nil {
		boards = []models.Board{}
	}
	return boards, nil
}

// ListBoards returns all boards ordered by province abbreviation.
func (s *QueryService) ListBoards(ctx context.Context) ([]models.Board, error) {
	boards, err := s.allBoards(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(boards, func(i, j int) bool {
		return boards[i].ProvAbb < boards[j].ProvAbb
	})
	return boards, nil
}

// ListBoardsNearby returns the four boards closest to (x, y).
func (s *QueryService) ListBoardsNearby(ctx context.Context, x, y float64) ([]models.Board, error) {
	boards, err := s.allBoards(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(boards, func(i, j int) bool {
		return boards[i].Location.SquaredDistance(x, y) < boards[j].Location.SquaredDistance(x, y)
	})
	if len(boards) > nearbyBoardCount {
		boards = boards[:nearbyBoardCount]
	}
	return boards, nil
}

func (s *QueryService) ListFavoriteBoards(ctx context.Context, viewerID uint) ([]models.Board, error) {
	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return s.store.Boards().GetByIDs(ctx, viewer.Favorites)
}

// GetBoardDetail returns one page of the board's posts, newest first. Posts by authors the
// viewer reported are filtered in the query, so pages stay full.
func (s *QueryService) GetBoardDetail(ctx context.Context, viewerID, boardID uint, page int) (*BoardDetail, error) {
	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	board, err := s.store.Boards().GetByID(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	posts, err := s.store.Posts().ListByBoard(ctx, boardID, viewer.Reports, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Posts().CountByBoard(ctx, boardID, viewer.Reports)
	if err != nil {
		return nil, err
	}

	return &BoardDetail{
		Board:    *board,
		Favorite: models.SetContains(viewer.Favorites, boardID),
		Page:     page,
		PageSize: s.pageSize,
		Total:    total,
		Posts:    s.summaries(viewer, posts),
	}, nil
}

// GetPostDetail returns the post with viewer flags and its comments, oldest first.
// Comments by reported authors are dropped; a post by a reported author is not found.
func (s *QueryService) GetPostDetail(ctx context.Context, viewerID, postID uint) (*PostDetail, error) {
	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	post, err := s.store.Posts().GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if viewer.HasReported(post.UserID) {
		return nil, models.NewNotFoundError("Post", postID)
	}

	comments := make([]models.Comment, 0, len(post.Comments))
	for _, c := range post.Comments {
		if !viewer.HasReported(c.UserID) {
			comments = append(comments, c)
		}
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})

	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, CommentView{
			ID:        c.ID,
			UserID:    c.UserID,
			Content:   c.Content,
			Mine:      c.UserID == viewer.ID,
			Admin:     c.UserID == s.adminID,
			PostOwner: c.UserID == post.UserID,
			CreatedAt: formatPostTime(c.CreatedAt),
		})
	}

	return &PostDetail{
		ID:           post.ID,
		BoardID:      post.BoardID,
		UserID:       post.UserID,
		Title:        post.Title,
		Content:      post.Content,
		Mine:         post.UserID == viewer.ID,
		Admin:        post.UserID == s.adminID,
		Liked:        models.SetContains(post.Likes, viewer.ID),
		Scrapped:     models.SetContains(post.Scraps, viewer.ID),
		CommentCount: len(views),
		LikeCount:    len(post.Likes),
		ScrapCount:   len(post.Scraps),
		CreatedAt:    formatPostTime(post.CreatedAt),
		Comments:     views,
	}, nil
}

// GetUserContent lists the viewer's posts, commented posts, liked posts or scrapped posts.
// Ids whose post no longer exists are skipped.
func (s *QueryService) GetUserContent(ctx context.Context, viewerID uint, kind string) ([]PostSummary, error) {
	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	var posts []models.Post
	switch kind {
	case ContentPosts:
		posts, err = s.store.Posts().GetByIDs(ctx, viewer.Posts)
	case ContentLikes:
		posts, err = s.store.Posts().GetByIDs(ctx, viewer.Likes)
	case ContentScraps:
		posts, err = s.store.Posts().GetByIDs(ctx, viewer.Scraps)
	case ContentComments:
		posts, err = s.store.Posts().FindByCommentIDs(ctx, viewer.Comments, false)
	default:
		return nil, models.NewValidationError("kind must be one of posts, comments, likes, scraps")
	}
	if err != nil {
		return nil, err
	}
	return s.summaries(viewer, posts), nil
}

// summaries counts only the comments the viewer can see, matching GetPostDetail.
func (s *QueryService) summaries(viewer *models.User, posts []models.Post) []PostSummary {
	out := make([]PostSummary, 0, len(posts))
	for _, p := range posts {
		comments := 0
		for _, c := range p.Comments {
			if !viewer.HasReported(c.UserID) {
				comments++
			}
		}
		out = append(out, PostSummary{
			ID:           p.ID,
			BoardID:      p.BoardID,
			UserID:       p.UserID,
			Title:        p.Title,
			Mine:         p.UserID == viewer.ID,
			Admin:        p.UserID == s.adminID,
			CommentCount: comments,
			LikeCount:    len(p.Likes),
			ScrapCount:   len(p.Scraps),
			CreatedAt:    formatPostTime(p.CreatedAt),
		})
	}
	return out
}
