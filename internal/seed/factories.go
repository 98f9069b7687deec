package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"lastday/internal/middleware"
	"lastday/internal/models"
	"lastday/internal/repository"
	"lastday/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DemoPassword is the password of every generated account.
const DemoPassword = "password123"

type DemoOptions struct {
	Users       int
	Posts       int
	MaxComments int
	// SkipBcrypt stores the password unhashed; only for throwaway databases.
	SkipBcrypt bool
	Seed       int64
}

// DemoReport counts what a demo run created.
type DemoReport struct {
	Users     int
	Posts     int
	Comments  int
	Reactions int
}

// Demo fills a development database with fake users and community activity. Every
// mutation goes through the CommunityService so both sides of each relation are written.
type Demo struct {
	store     repository.Store
	community *service.CommunityService
	opts      DemoOptions
	rnd       *rand.Rand
}

func NewDemo(store repository.Store, community *service.CommunityService, opts DemoOptions) *Demo {
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	gofakeit.Seed(opts.Seed)
	return &Demo{
		store:     store,
		community: community,
		opts:      opts,
		rnd:       rand.New(rand.NewSource(opts.Seed)),
	}
}

func (d *Demo) Run(ctx context.Context) (*DemoReport, error) {
	boards, err := d.store.Boards().List(ctx)
	if err != nil {
		return nil, err
	}
	if len(boards) == 0 {
		return nil, fmt.Errorf("no boards to post on, seed the catalog first")
	}

	report := &DemoReport{}
	users, err := d.createUsers(ctx, boards)
	if err != nil {
		return report, err
	}
	report.Users = len(users)
	if len(users) == 0 {
		return report, nil
	}

	for i := 0; i < d.opts.Posts; i++ {
		author := users[d.rnd.Intn(len(users))]
		board := boards[d.rnd.Intn(len(boards))]

		post, err := d.community.CreatePost(ctx, service.CreatePostInput{
			BoardID: board.ID,
			UserID:  author.ID,
			Title:   strings.TrimSuffix(gofakeit.Sentence(5), "."),
			Content: gofakeit.Paragraph(1, 3, 8, "\n"),
		})
		if err != nil {
			return report, fmt.Errorf("create post: %w", err)
		}
		report.Posts++

		comments := 0
		if d.opts.MaxComments > 0 {
			comments = d.rnd.Intn(d.opts.MaxComments + 1)
		}
		for c := 0; c < comments; c++ {
			commenter := users[d.rnd.Intn(len(users))]
			if _, err := d.community.CreateComment(ctx, service.CreateCommentInput{
				PostID:  post.ID,
				UserID:  commenter.ID,
				Content: gofakeit.Sentence(8),
			}); err != nil {
				return report, fmt.Errorf("create comment: %w", err)
			}
			report.Comments++
		}

		for _, u := range users {
			if u.ID == author.ID {
				continue
			}
			switch d.rnd.Intn(6) {
			case 0:
				_, err = d.community.SetLike(ctx, u.ID, post.ID, true)
			case 1:
				_, err = d.community.SetScrap(ctx, u.ID, post.ID, true)
			default:
				continue
			}
			if err != nil {
				return report, fmt.Errorf("react: %w", err)
			}
			report.Reactions++
		}
	}

	middleware.Logger.InfoContext(ctx, "demo data seeded",
		slog.Int("users", report.Users),
		slog.Int("posts", report.Posts),
		slog.Int("comments", report.Comments),
		slog.Int("reactions", report.Reactions),
	)
	return report, nil
}

func (d *Demo) createUsers(ctx context.Context, boards []models.Board) ([]models.User, error) {
	password := DemoPassword
	if !d.opts.SkipBcrypt {
		hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		password = string(hashed)
	}

	users := make([]models.User, 0, d.opts.Users)
	for i := 0; i < d.opts.Users; i++ {
		first := strings.ToLower(gofakeit.FirstName())
		u := models.User{
			Username:   fmt.Sprintf("%s.%d@%s", first, i+1, gofakeit.DomainName()),
			Password:   password,
			Name:       gofakeit.Name(),
			UserType:   models.UserTypeDirect,
			IsVerified: true,
			Favorites:  d.pickFavorites(boards),
		}
		if err := d.store.Users().Create(ctx, &u); err != nil {
			if models.ErrorCode(err) == models.CodeConflict {
				continue
			}
			return users, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (d *Demo) pickFavorites(boards []models.Board) []uint {
	n := 4
	if len(boards) < n {
		n = len(boards)
	}
	favorites := make([]uint, 0, n)
	for _, i := range d.rnd.Perm(len(boards))[:n] {
		favorites = append(favorites, boards[i].ID)
	}
	return favorites
}
