package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"lastday/internal/models"
	"lastday/internal/repository"
	"lastday/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserService manages a user's own record: profile, muted users and lookup history.
type UserService struct {
	store repository.Store
	now   func() time.Time
}

type EditProfileInput struct {
	UserID          uint
	Name            *string
	CurrentPassword string
	NewPassword     string
}

type HistoryInput struct {
	SourceTitle  string `json:"source_title"`
	DestTitle    string `json:"dest_title"`
	ContentID    string `json:"content_id"`
	ContentTitle string `json:"content_title"`
	ContentType  string `json:"content_type"`
	TimeTaken    int    `json:"time_taken"`
}

// HistoryView is a history entry with Korean date and time strings.
type HistoryView struct {
	models.History
	Date string `json:"date"`
	Time string `json:"time"`
}

func NewUserService(store repository.Store) *UserService {
	return &UserService{store: store, now: time.Now}
}

func (s *UserService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	return s.store.Users().GetByID(ctx, userID)
}

// EditProfile changes the display name and/or password. A new password requires the
// current one.
func (s *UserService) EditProfile(ctx context.Context, in EditProfileInput) (*models.User, error) {
	var columns []string
	user, err := s.store.Users().GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validation.ValidateName(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Name = name
		columns = append(columns, "name")
	}

	if in.NewPassword != "" {
		if user.UserType.IsSocial() {
			return nil, models.NewValidationError("Social accounts sign in through their provider")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.CurrentPassword)); err != nil {
			return nil, models.NewUnauthorizedError("Current password is incorrect")
		}
		if err := validation.ValidatePassword(in.NewPassword); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		user.Password = string(hash)
		columns = append(columns, "password")
	}

	if len(columns) == 0 {
		return nil, models.NewValidationError("Nothing to update")
	}
	if err := s.store.Users().Update(ctx, user, columns...); err != nil {
		return nil, err
	}
	return user, nil
}

// SetReport mutes or unmutes targetID for the user. Repeating a call is a no-op.
func (s *UserService) SetReport(ctx context.Context, userID, targetID uint, present bool) error {
	if userID == targetID {
		return models.NewValidationError("You cannot report yourself")
	}
	return s.store.Transaction(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := tx.Users().GetByID(ctx, targetID); err != nil {
			return err
		}

		var changed bool
		if present {
			user.Reports, changed = models.AddToSet(user.Reports, targetID)
		} else {
			user.Reports, changed = models.RemoveFromSet(user.Reports, targetID)
		}
		if !changed {
			return nil
		}
		return tx.Users().Update(ctx, user, "reports")
	})
}

// AddHistory records a route or place lookup.
func (s *UserService) AddHistory(ctx context.Context, userID uint, in HistoryInput) (*models.History, error) {
	if strings.TrimSpace(in.SourceTitle) == "" && strings.TrimSpace(in.ContentTitle) == "" {
		return nil, models.NewValidationError("source_title or content_title is required")
	}

	entry := models.History{
		ID:           uuid.NewString(),
		SourceTitle:  in.SourceTitle,
		DestTitle:    in.DestTitle,
		ContentID:    in.ContentID,
		ContentTitle: in.ContentTitle,
		ContentType:  in.ContentType,
		TimeTaken:    in.TimeTaken,
		CreatedAt:    s.now(),
	}
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		user.Histories = append(user.Histories, entry)
		return tx.Users().Update(ctx, user, "histories")
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListHistories returns the user's histories, newest first.
func (s *UserService) ListHistories(ctx context.Context, userID uint) ([]HistoryView, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]HistoryView, 0, len(user.Histories))
	for _, h := range user.Histories {
		views = append(views, HistoryView{
			History: h,
			Date:    formatHistoryDate(h.CreatedAt),
			Time:    formatHistoryTime(h.CreatedAt),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views, nil
}

func (s *UserService) DeleteHistory(ctx context.Context, userID uint, historyID string) error {
	return s.store.Transaction(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		for i, h := range user.Histories {
			if h.ID == historyID {
				user.Histories = append(user.Histories[:i], user.Histories[i+1:]...)
				return tx.Users().Update(ctx, user, "histories")
			}
		}
		return models.NewNotFoundError("History", historyID)
	})
}
