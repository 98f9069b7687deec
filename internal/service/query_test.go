package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lastday/internal/cache"
	"lastday/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService_ListBoards(t *testing.T) {
	f := newFixture(t)
	svc := NewQueryService(f.store, testAdminID, 20)
	ctx := context.Background()

	f.board(t, "SEO", "Jongno", 0, 0)
	f.board(t, "BUS", "Haeundae", 10, 10)
	f.board(t, "SEO", "Mapo", 1, 1)
	f.board(t, "ICN", "Jung", 3, 3)
	f.board(t, "DAE", "Yuseong", 6, 6)

	boards, err := svc.ListBoards(ctx)
	require.NoError(t, err)
	var cities []string
	for _, b := range boards {
		cities = append(cities, b.City)
	}
	assert.Equal(t, []string{"Haeundae", "Yuseong", "Jung", "Jongno", "Mapo"}, cities)

	nearby, err := svc.ListBoardsNearby(ctx, 0.9, 0.9)
	require.NoError(t, err)
	cities = cities[:0]
	for _, b := range nearby {
		cities = append(cities, b.City)
	}
	assert.Equal(t, []string{"Mapo", "Jongno", "Jung", "Yuseong"}, cities)
}

func TestQueryService_BoardCacheInvalidatedByCreatePost(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cache.NewClient(mr.Addr())
	require.NoError(t, err)
	cache.SetClient(client)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = client.Close()
	})

	f := newFixture(t)
	query := NewQueryService(f.store, testAdminID, 20)
	community := newCommunity(f, "")
	ctx := context.Background()

	author := f.user(t, "author")
	board := f.board(t, "SEO", "Jongno", 0, 0)

	_, err = query.ListBoards(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.BoardsKey))

	_, err = community.CreatePost(ctx, CreatePostInput{BoardID: board.ID, UserID: author.ID, Title: "fresh", Content: "c"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.BoardsKey))

	boards, err := query.ListBoards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, "fresh", boards[0].FirstArticle)
}

func TestQueryService_GetBoardDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.user(t, "admin")
	viewer := f.user(t, "viewer")
	muted := f.user(t, "muted")
	board := f.board(t, "SEO", "Jongno", 0, 0)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []uint
	for i := 0; i < 5; i++ {
		author := viewer.ID
		if i == 2 {
			author = testAdminID
		}
		p := &models.Post{BoardID: board.ID, UserID: author, Title: fmt.Sprintf("p%d", i), Content: "c", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if i == 4 {
			p.Likes = []uint{muted.ID}
			p.Comments = []models.Comment{
				{ID: "c0", UserID: viewer.ID, Content: "mine", CreatedAt: base},
				{ID: "c1", UserID: muted.ID, Content: "x", CreatedAt: base},
			}
		}
		require.NoError(t, f.store.Posts().Create(ctx, p))
		ids = append(ids, p.ID)
	}
	require.NoError(t, f.store.Posts().Create(ctx, &models.Post{BoardID: board.ID, UserID: muted.ID, Title: "noise", Content: "c", CreatedAt: base.Add(time.Hour)}))

	viewer.Reports = []uint{muted.ID}
	viewer.Favorites = []uint{board.ID}
	require.NoError(t, f.store.Users().Update(ctx, viewer, "reports", "favorites"))

	svc := NewQueryService(f.store, testAdminID, 10)
	detail, err := svc.GetBoardDetail(ctx, viewer.ID, board.ID, 0)
	require.NoError(t, err)
	assert.True(t, detail.Favorite)
	assert.Equal(t, 1, detail.Page)
	assert.EqualValues(t, 5, detail.Total)
	require.Len(t, detail.Posts, 5)

	for i, summary := range detail.Posts {
		assert.Equal(t, ids[4-i], summary.ID)
	}
	top := detail.Posts[0]
	assert.True(t, top.Mine)
	assert.Equal(t, 1, top.LikeCount)
	assert.Equal(t, 1, top.CommentCount)
	assert.Equal(t, "03/01 09:04", top.CreatedAt)

	postView, err := svc.GetPostDetail(ctx, viewer.ID, top.ID)
	require.NoError(t, err)
	assert.Equal(t, top.CommentCount, len(postView.Comments))
	assert.True(t, detail.Posts[2].Admin)
	assert.False(t, detail.Posts[2].Mine)

	small := NewQueryService(f.store, testAdminID, 2)
	page3, err := small.GetBoardDetail(ctx, viewer.ID, board.ID, 3)
	require.NoError(t, err)
	require.Len(t, page3.Posts, 1)
	assert.Equal(t, ids[0], page3.Posts[0].ID)

	_, err = svc.GetBoardDetail(ctx, viewer.ID, 404, 1)
	assertCode(t, err, models.CodeNotFound)
	_, err = svc.GetBoardDetail(ctx, 404, board.ID, 1)
	assertCode(t, err, models.CodeUnauthorized)
}

func TestQueryService_GetPostDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.user(t, "admin")
	owner := f.user(t, "owner")
	viewer := f.user(t, "viewer")
	muted := f.user(t, "muted")
	board := f.board(t, "SEO", "Jongno", 0, 0)

	base := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	post := &models.Post{
		BoardID: board.ID, UserID: owner.ID, Title: "t", Content: "c",
		Likes:  []uint{viewer.ID, muted.ID},
		Scraps: []uint{muted.ID},
		Comments: []models.Comment{
			{ID: "late", UserID: owner.ID, Content: "owner reply", CreatedAt: base.Add(2 * time.Minute)},
			{ID: "early", UserID: viewer.ID, Content: "first", CreatedAt: base},
			{ID: "hidden", UserID: muted.ID, Content: "spam", CreatedAt: base.Add(time.Minute)},
		},
	}
	require.NoError(t, f.store.Posts().Create(ctx, post))
	mutedPost := &models.Post{BoardID: board.ID, UserID: muted.ID, Title: "m", Content: "c"}
	require.NoError(t, f.store.Posts().Create(ctx, mutedPost))

	viewer.Reports = []uint{muted.ID}
	require.NoError(t, f.store.Users().Update(ctx, viewer, "reports"))

	svc := NewQueryService(f.store, testAdminID, 20)
	detail, err := svc.GetPostDetail(ctx, viewer.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, detail.Mine)
	assert.True(t, detail.Liked)
	assert.False(t, detail.Scrapped)
	assert.Equal(t, 2, detail.LikeCount)
	require.Len(t, detail.Comments, 2)
	assert.Equal(t, "early", detail.Comments[0].ID)
	assert.True(t, detail.Comments[0].Mine)
	assert.Equal(t, "late", detail.Comments[1].ID)
	assert.True(t, detail.Comments[1].PostOwner)
	assert.Equal(t, "03/02 00:30", detail.Comments[0].CreatedAt)

	_, err = svc.GetPostDetail(ctx, viewer.ID, mutedPost.ID)
	assertCode(t, err, models.CodeNotFound)

	ownerView, err := svc.GetPostDetail(ctx, owner.ID, mutedPost.ID)
	require.NoError(t, err)
	assert.False(t, ownerView.Mine)
}

func TestQueryService_GetUserContent(t *testing.T) {
	f := newFixture(t)
	community := newCommunity(f, "")
	svc := NewQueryService(f.store, testAdminID, 20)
	ctx := context.Background()

	f.user(t, "admin")
	me := f.user(t, "me")
	other := f.user(t, "other")
	board := f.board(t, "SEO", "Jongno", 0, 0)
	f.board(t, "BUS", "Haeundae", 0, 0)

	mine, err := community.CreatePost(ctx, CreatePostInput{BoardID: board.ID, UserID: me.ID, Title: "mine", Content: "c"})
	require.NoError(t, err)
	theirs, err := community.CreatePost(ctx, CreatePostInput{BoardID: board.ID, UserID: other.ID, Title: "theirs", Content: "c"})
	require.NoError(t, err)
	gone, err := community.CreatePost(ctx, CreatePostInput{BoardID: board.ID, UserID: other.ID, Title: "gone", Content: "c"})
	require.NoError(t, err)

	_, err = community.SetLike(ctx, me.ID, theirs.ID, true)
	require.NoError(t, err)
	_, err = community.SetLike(ctx, me.ID, gone.ID, true)
	require.NoError(t, err)
	_, err = community.CreateComment(ctx, CreateCommentInput{PostID: theirs.ID, UserID: me.ID, Content: "hi"})
	require.NoError(t, err)
	_, err = community.DeletePost(ctx, DeletePostInput{PostID: gone.ID, UserID: other.ID})
	require.NoError(t, err)
	require.NoError(t, community.SetFavorite(ctx, me.ID, board.ID, true))

	posts, err := svc.GetUserContent(ctx, me.ID, ContentPosts)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, mine.ID, posts[0].ID)

	liked, err := svc.GetUserContent(ctx, me.ID, ContentLikes)
	require.NoError(t, err)
	require.Len(t, liked, 1)
	assert.Equal(t, theirs.ID, liked[0].ID)

	commented, err := svc.GetUserContent(ctx, me.ID, ContentComments)
	require.NoError(t, err)
	require.Len(t, commented, 1)
	assert.Equal(t, theirs.ID, commented[0].ID)

	scraps, err := svc.GetUserContent(ctx, me.ID, ContentScraps)
	require.NoError(t, err)
	assert.Empty(t, scraps)

	_, err = svc.GetUserContent(ctx, me.ID, "drafts")
	assertCode(t, err, models.CodeValidation)

	favorites, err := svc.ListFavoriteBoards(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, board.ID, favorites[0].ID)
}

func TestFormatting(t *testing.T) {
	at := time.Date(2024, 12, 31, 15, 5, 0, 0, time.UTC)
	assert.Equal(t, "01/01 00:05", formatPostTime(at))
	assert.Equal(t, "2025년 1월 1일", formatHistoryDate(at))
	assert.Equal(t, "오전 12시 05분", formatHistoryTime(at))
	assert.Equal(t, "오후 1시 00분", formatHistoryTime(time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)))
}
