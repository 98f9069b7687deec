package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"lastday/internal/featureflags"
	"lastday/internal/middleware"
	"lastday/internal/models"
	"lastday/internal/notifications"
	"lastday/internal/repository"
	"lastday/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID uint) (string, error)
}

// TokenRevoker blacklists a token id until it expires.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

// MailSender queues a templated mail.
type MailSender interface {
	Send(ctx context.Context, to, tmpl string, data any) error
}

// AuthService handles sign-up, sign-in and the credential flows around them.
type AuthService struct {
	store            repository.Store
	tokens           TokenIssuer
	revoker          TokenRevoker
	mail             MailSender
	flags            *featureflags.Manager
	defaultFavorites []uint
}

type RegisterInput struct {
	Username string
	Password string
	Name     string
	UserType models.UserType
}

type SNSLoginInput struct {
	Username string
	Name     string
	UserType models.UserType
}

// AuthResult is returned by every sign-in flow.
type AuthResult struct {
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
	Created bool         `json:"-"`
}

func NewAuthService(
	store repository.Store,
	tokens TokenIssuer,
	revoker TokenRevoker,
	mail MailSender,
	flags *featureflags.Manager,
	defaultFavorites []uint,
) *AuthService {
	if flags == nil {
		flags = featureflags.NewManager("")
	}
	return &AuthService{
		store:            store,
		tokens:           tokens,
		revoker:          revoker,
		mail:             mail,
		flags:            flags,
		defaultFavorites: defaultFavorites,
	}
}

// Register creates an account. Direct accounts use an email username and a password and
// receive a verification code by mail.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if in.UserType == "" {
		in.UserType = models.UserTypeDirect
	}
	if !in.UserType.Valid() {
		return nil, models.NewValidationError("Invalid user_type")
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, models.NewValidationError("Username is required")
	}

	if in.UserType == models.UserTypeDirect {
		if err := validation.ValidateEmail(in.Username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if err := validation.ValidatePassword(in.Password); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	} else if in.Password == "" {
		random, err := randomHex(16)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		in.Password = random
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(in.Username, "@")
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username:   in.Username,
		Password:   string(hash),
		Name:       name,
		UserType:   in.UserType,
		IsVerified: true,
		Favorites:  append([]uint{}, s.defaultFavorites...),
	}
	needsCode := in.UserType == models.UserTypeDirect && s.flags.Enabled(featureflags.EmailVerification, 0)
	if needsCode {
		code, err := verificationCode()
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		user.IsVerified = false
		user.VerificationToken = code
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	if needsCode {
		s.mailCode(ctx, user)
	}

	return s.signIn(user, true)
}

// Login checks the password of any account type. Unverified direct accounts may sign in;
// the returned user carries is_verified.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.store.Users().GetByUsername(ctx, strings.TrimSpace(username))
	if models.IsNotFound(err) {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return s.signIn(user, false)
}

// SNSLogin signs in a social account, creating it on first use. A username already taken by
// another account type is a conflict.
func (s *AuthService) SNSLogin(ctx context.Context, in SNSLoginInput) (*AuthResult, error) {
	if !in.UserType.IsSocial() {
		return nil, models.NewValidationError("user_type must be KAKAO, NAVER or APPLE")
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, models.NewValidationError("Username is required")
	}

	existing, err := s.store.Users().GetByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.UserType != in.UserType {
			return nil, models.NewConflictError("Username is registered with another sign-in method")
		}
		return s.signIn(existing, false)
	case !models.IsNotFound(err):
		return nil, err
	}

	return s.Register(ctx, RegisterInput{Username: username, Name: in.Name, UserType: in.UserType})
}

func (s *AuthService) signIn(user *models.User, created bool) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{Token: token, User: user, Created: created}, nil
}

// Verify marks the account verified when code matches the stored verification token.
func (s *AuthService) Verify(ctx context.Context, userID uint, code string) (*models.User, error) {
	if err := validation.ValidateVerificationCode(code); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	var user *models.User
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		user, err = tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsVerified {
			return nil
		}
		if user.VerificationToken == "" || subtle.ConstantTimeCompare([]byte(user.VerificationToken), []byte(code)) != 1 {
			return models.NewValidationError("Invalid verification code")
		}
		user.IsVerified = true
		user.VerificationToken = ""
		return tx.Users().Update(ctx, user, "is_verified", "verification_token")
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RegenerateVerificationToken replaces the code of an unverified account and mails it.
func (s *AuthService) RegenerateVerificationToken(ctx context.Context, userID uint) error {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return models.NewValidationError("Account is already verified")
	}

	code, err := verificationCode()
	if err != nil {
		return models.NewInternalError(err)
	}
	user.VerificationToken = code
	if err := s.store.Users().Update(ctx, user, "verification_token"); err != nil {
		return err
	}
	s.mailCode(ctx, user)
	return nil
}

// ForgotPassword replaces the password of a direct account with a random one and mails it.
func (s *AuthService) ForgotPassword(ctx context.Context, username string) error {
	user, err := s.store.Users().GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if user.UserType.IsSocial() {
		return models.NewValidationError("Social accounts sign in through their provider")
	}

	password, err := randomHex(8)
	if err != nil {
		return models.NewInternalError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	user.Password = string(hash)
	if err := s.store.Users().Update(ctx, user, "password"); err != nil {
		return err
	}

	if err := s.mail.Send(ctx, user.Username, notifications.TemplatePasswordReset,
		notifications.PasswordResetData{Name: user.Name, Password: password}); err != nil {
		return fmt.Errorf("queue password reset mail: %w", err)
	}
	return nil
}

// Logout revokes the token id until the token would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" || s.revoker == nil {
		return nil
	}
	if err := s.revoker.Revoke(ctx, jti, expiresAt); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *AuthService) mailCode(ctx context.Context, user *models.User) {
	err := s.mail.Send(ctx, user.Username, notifications.TemplateVerification,
		notifications.VerificationData{Name: user.Name, Code: user.VerificationToken})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "failed to queue verification mail",
			slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
	}
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
