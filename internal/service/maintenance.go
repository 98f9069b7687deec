package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"lastday/internal/cache"
	"lastday/internal/models"
	"lastday/internal/observability"
	"lastday/internal/repository"

	"golang.org/x/sync/errgroup"
)

const (
	JobSeedNotices       = "seed_notices"
	JobUpdateBoardImages = "update_board_images"
	JobRepairConsistency = "repair_consistency"
)

// JobReport summarizes one maintenance run. Failed holds the keys of records that could
// not be handled, e.g. "post:12".
type JobReport struct {
	Processed int      `json:"processed"`
	Failed    []string `json:"failed"`

	mu sync.Mutex
}

func (r *JobReport) done() {
	r.mu.Lock()
	r.Processed++
	r.mu.Unlock()
}

func (r *JobReport) fail(key string) {
	r.mu.Lock()
	r.Failed = append(r.Failed, key)
	r.mu.Unlock()
}

// BoardImageCatalog maps a board to the number of its catalog image.
type BoardImageCatalog interface {
	ImageNumber(province, city string) (int, bool)
}

// MaintenanceService runs administrative batch jobs. Every record is handled in its own
// transaction and a failing record never stops the run.
type MaintenanceService struct {
	store       repository.Store
	community   *CommunityService
	logger      *slog.Logger
	concurrency int
	batchSize   int
}

func NewMaintenanceService(store repository.Store, community *CommunityService, logger *slog.Logger, concurrency, batchSize int) *MaintenanceService {
	if concurrency < 1 {
		concurrency = 1
	}
	if batchSize < 1 {
		batchSize = 200
	}
	return &MaintenanceService{
		store:       store,
		community:   community,
		logger:      logger,
		concurrency: concurrency,
		batchSize:   batchSize,
	}
}

// each runs fn for every item with bounded concurrency. Item errors are logged and
// recorded; only cancellation of ctx aborts the run.
func each[T any](ctx context.Context, s *MaintenanceService, jl *observability.JobLogger, report *JobReport, items []T, key func(T) string, fn func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, item := range items {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := fn(gctx, item); err != nil {
				report.fail(key(item))
				jl.ItemFailed(gctx, key(item), err)
				return nil
			}
			report.done()
			jl.ItemDone()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func boardKey(b models.Board) string { return fmt.Sprintf("board:%d", b.ID) }
func userKey(u models.User) string   { return fmt.Sprintf("user:%d", u.ID) }
func postKey(p models.Post) string   { return fmt.Sprintf("post:%d", p.ID) }

// SeedNoticePosts posts the same notice, authored by the admin, on every board.
func (s *MaintenanceService) SeedNoticePosts(ctx context.Context, title, content string) (*JobReport, error) {
	jl := observability.NewJobLogger(s.logger, JobSeedNotices)
	jl.Start(ctx, slog.String("title", title))
	report := &JobReport{}

	boards, err := s.store.Boards().List(ctx)
	if err == nil {
		err = each(ctx, s, jl, report, boards, boardKey, func(ctx context.Context, b models.Board) error {
			_, err := s.community.CreatePost(ctx, CreatePostInput{
				BoardID: b.ID,
				UserID:  s.community.adminID,
				Title:   title,
				Content: content,
			})
			return err
		})
	}

	jl.Finish(ctx, report.Processed, len(report.Failed), err)
	return report, err
}

// UpdateBoardImages points every board at <baseURL><image number>.jpg.
func (s *MaintenanceService) UpdateBoardImages(ctx context.Context, baseURL string, catalog BoardImageCatalog) (*JobReport, error) {
	jl := observability.NewJobLogger(s.logger, JobUpdateBoardImages)
	jl.Start(ctx, slog.String("base_url", baseURL))
	report := &JobReport{}

	boards, err := s.store.Boards().List(ctx)
	if err == nil {
		err = each(ctx, s, jl, report, boards, boardKey, func(ctx context.Context, b models.Board) error {
			n, ok := catalog.ImageNumber(b.Province, b.City)
			if !ok {
				return fmt.Errorf("no catalog image for %s %s", b.Province, b.City)
			}
			return s.store.Boards().SetImage(ctx, b.ID, fmt.Sprintf("%s%d.jpg", baseURL, n))
		})
		cache.InvalidateBoards(ctx)
	}

	jl.Finish(ctx, report.Processed, len(report.Failed), err)
	return report, err
}

// RepairConsistency walks users and then posts, dropping ids that point at deleted
// records and restoring the missing side of every surviving pair.
func (s *MaintenanceService) RepairConsistency(ctx context.Context) (*JobReport, error) {
	jl := observability.NewJobLogger(s.logger, JobRepairConsistency)
	jl.Start(ctx, slog.Int("batch_size", s.batchSize))
	report := &JobReport{}

	err := s.scanUsers(ctx, jl, report)
	if err == nil {
		err = s.scanPosts(ctx, jl, report)
	}

	jl.Finish(ctx, report.Processed, len(report.Failed), err)
	return report, err
}

func (s *MaintenanceService) scanUsers(ctx context.Context, jl *observability.JobLogger, report *JobReport) error {
	var after uint
	for {
		users, err := s.store.Users().ListAfter(ctx, after, s.batchSize)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return nil
		}
		after = users[len(users)-1].ID

		err = each(ctx, s, jl, report, users, userKey, func(ctx context.Context, u models.User) error {
			return s.store.Transaction(ctx, func(tx repository.Store) error {
				return repairUser(ctx, tx, u.ID)
			})
		})
		if err != nil {
			return err
		}
	}
}

func (s *MaintenanceService) scanPosts(ctx context.Context, jl *observability.JobLogger, report *JobReport) error {
	var after uint
	for {
		posts, err := s.store.Posts().ListAfter(ctx, after, s.batchSize)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			return nil
		}
		after = posts[len(posts)-1].ID

		err = each(ctx, s, jl, report, posts, postKey, func(ctx context.Context, p models.Post) error {
			return s.store.Transaction(ctx, func(tx repository.Store) error {
				return repairPost(ctx, tx, p.ID)
			})
		})
		if err != nil {
			return err
		}
	}
}

// repairUser fixes the lists of one user and adds the user to posts that lost their side
// of a like or scrap. Locks the user, then the referenced posts in id order.
func repairUser(ctx context.Context, tx repository.Store, userID uint) error {
	user, err := tx.Users().GetByIDForUpdate(ctx, userID)
	if models.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	referenced, _ := models.Dedupe(append(append(append([]uint{}, user.Posts...), user.Likes...), user.Scraps...))
	posts, err := tx.Posts().GetByIDsForUpdate(ctx, referenced)
	if err != nil {
		return err
	}
	byID := make(map[uint]*models.Post, len(posts))
	for i := range posts {
		byID[posts[i].ID] = &posts[i]
	}

	var changed []string
	exists := func(id uint) bool { return byID[id] != nil }

	var dropped bool
	if user.Posts, dropped = models.FilterSet(user.Posts, func(id uint) bool {
		return exists(id) && byID[id].UserID == user.ID
	}); dropped {
		changed = append(changed, "posts")
	}
	if user.Likes, dropped = models.FilterSet(user.Likes, exists); dropped {
		changed = append(changed, "likes")
	}
	if user.Scraps, dropped = models.FilterSet(user.Scraps, exists); dropped {
		changed = append(changed, "scraps")
	}

	if len(user.Favorites) > 0 {
		boards, err := tx.Boards().GetByIDs(ctx, user.Favorites)
		if err != nil {
			return err
		}
		known := make(map[uint]struct{}, len(boards))
		for _, b := range boards {
			known[b.ID] = struct{}{}
		}
		if user.Favorites, dropped = models.FilterSet(user.Favorites, func(id uint) bool {
			_, ok := known[id]
			return ok
		}); dropped {
			changed = append(changed, "favorites")
		}
	}

	if len(user.Reports) > 0 {
		live, err := tx.Users().ExistingIDs(ctx, user.Reports)
		if err != nil {
			return err
		}
		if user.Reports, dropped = models.FilterSet(user.Reports, func(id uint) bool {
			return models.SetContains(live, id)
		}); dropped {
			changed = append(changed, "reports")
		}
	}

	if len(user.Comments) > 0 {
		holders, err := tx.Posts().FindByCommentIDs(ctx, user.Comments, false)
		if err != nil {
			return err
		}
		live := make(map[string]struct{})
		for _, p := range holders {
			for _, id := range p.CommentIDsBy(user.ID) {
				live[id] = struct{}{}
			}
		}
		if user.Comments, dropped = models.FilterSet(user.Comments, func(id string) bool {
			_, ok := live[id]
			return ok
		}); dropped {
			changed = append(changed, "comments")
		}
	}

	if len(changed) > 0 {
		if err := tx.Users().Update(ctx, user, changed...); err != nil {
			return err
		}
	}

	for i := range posts {
		p := &posts[i]
		var cols []string
		var added bool
		if models.SetContains(user.Likes, p.ID) {
			if p.Likes, added = models.AddToSet(p.Likes, user.ID); added {
				cols = append(cols, "likes")
			}
		}
		if models.SetContains(user.Scraps, p.ID) {
			if p.Scraps, added = models.AddToSet(p.Scraps, user.ID); added {
				cols = append(cols, "scraps")
			}
		}
		if len(cols) > 0 {
			if err := tx.Posts().Update(ctx, p, cols...); err != nil {
				return err
			}
		}
	}
	return nil
}

// repairPost drops references to deleted users from one post and adds the post to the
// lists of users that lost their side. Locks the users in id order, then the post.
func repairPost(ctx context.Context, tx repository.Store, postID uint) error {
	peek, err := tx.Posts().GetByID(ctx, postID)
	if models.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	users, err := tx.Users().GetByIDsForUpdate(ctx, postUserIDs(peek))
	if err != nil {
		return err
	}
	post, err := tx.Posts().GetByIDForUpdate(ctx, postID)
	if models.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	byID := make(map[uint]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	// Users that joined the post after the unlocked read are not locked here. They went
	// through the Coordinator, so only their existence is checked and their lists are left
	// alone.
	var joined []uint
	for _, id := range postUserIDs(post) {
		if byID[id] == nil {
			joined = append(joined, id)
		}
	}
	live := make(map[uint]struct{}, len(joined))
	if len(joined) > 0 {
		ids, err := tx.Users().ExistingIDs(ctx, joined)
		if err != nil {
			return err
		}
		for _, id := range ids {
			live[id] = struct{}{}
		}
	}
	exists := func(id uint) bool {
		if byID[id] != nil {
			return true
		}
		_, ok := live[id]
		return ok
	}

	var postCols []string
	var dropped bool
	if post.Likes, dropped = models.FilterSet(post.Likes, exists); dropped {
		postCols = append(postCols, "likes")
	}
	if post.Scraps, dropped = models.FilterSet(post.Scraps, exists); dropped {
		postCols = append(postCols, "scraps")
	}
	if post.Comments, dropped = models.FilterSet(post.Comments, func(c models.Comment) bool {
		return exists(c.UserID)
	}); dropped {
		postCols = append(postCols, "comments")
	}
	if len(postCols) > 0 {
		if err := tx.Posts().Update(ctx, post, postCols...); err != nil {
			return err
		}
	}

	userCols := make(map[uint][]string)
	var added bool
	if author := byID[post.UserID]; author != nil {
		if author.Posts, added = models.AddToSet(author.Posts, post.ID); added {
			userCols[author.ID] = append(userCols[author.ID], "posts")
		}
	}
	for _, id := range post.Likes {
		u := byID[id]
		if u == nil {
			continue
		}
		if u.Likes, added = models.AddToSet(u.Likes, post.ID); added {
			userCols[id] = append(userCols[id], "likes")
		}
	}
	for _, id := range post.Scraps {
		u := byID[id]
		if u == nil {
			continue
		}
		if u.Scraps, added = models.AddToSet(u.Scraps, post.ID); added {
			userCols[id] = append(userCols[id], "scraps")
		}
	}
	for _, c := range post.Comments {
		u := byID[c.UserID]
		if u == nil {
			continue
		}
		if u.Comments, added = models.AddToSet(u.Comments, c.ID); added && !models.SetContains(userCols[u.ID], "comments") {
			userCols[u.ID] = append(userCols[u.ID], "comments")
		}
	}

	for _, u := range users {
		cols := userCols[u.ID]
		if len(cols) == 0 {
			continue
		}
		if err := tx.Users().Update(ctx, byID[u.ID], cols...); err != nil {
			return err
		}
	}
	return nil
}

// postUserIDs lists the author and every user on the post's likes, scraps and comments.
func postUserIDs(p *models.Post) []uint {
	ids := []uint{p.UserID}
	ids = append(ids, p.Likes...)
	ids = append(ids, p.Scraps...)
	for _, c := range p.Comments {
		ids = append(ids, c.UserID)
	}
	ids, _ = models.Dedupe(ids)
	return ids
}
