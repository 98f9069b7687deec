package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"lastday/internal/featureflags"
	"lastday/internal/models"
	"lastday/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubTokens struct{}

func (stubTokens) Issue(userID uint) (string, error) { return fmt.Sprintf("token-%d", userID), nil }

type sentMail struct {
	to   string
	tmpl string
	data any
}

type recordingMailer struct {
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, tmpl string, data any) error {
	m.sent = append(m.sent, sentMail{to: to, tmpl: tmpl, data: data})
	return m.err
}

type recordingRevoker struct {
	jti string
	exp time.Time
}

func (r *recordingRevoker) Revoke(_ context.Context, jti string, exp time.Time) error {
	r.jti, r.exp = jti, exp
	return nil
}

func newAuth(f *fixture, mail *recordingMailer, flags string) (*AuthService, *recordingRevoker) {
	revoker := &recordingRevoker{}
	return NewAuthService(f.store, stubTokens{}, revoker, mail, featureflags.NewManager(flags), []uint{1, 2}), revoker
}

func TestAuthService_RegisterDirect(t *testing.T) {
	f := newFixture(t)
	mail := &recordingMailer{}
	svc, _ := newAuth(f, mail, "")
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Username: "kim@example.com", Password: "longenough"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, fmt.Sprintf("token-%d", res.User.ID), res.Token)
	assert.False(t, res.User.IsVerified)
	assert.Equal(t, "kim", res.User.Name)
	assert.Equal(t, []uint{1, 2}, []uint(res.User.Favorites))
	assert.NotEqual(t, "longenough", res.User.Password)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, notifications.TemplateVerification, mail.sent[0].tmpl)
	code := mail.sent[0].data.(notifications.VerificationData).Code
	assert.Len(t, code, 6)

	_, err = svc.Register(ctx, RegisterInput{Username: "kim@example.com", Password: "longenough"})
	assertCode(t, err, models.CodeConflict)

	_, err = svc.Register(ctx, RegisterInput{Username: "not-an-email", Password: "longenough"})
	assertCode(t, err, models.CodeValidation)
	_, err = svc.Register(ctx, RegisterInput{Username: "lee@example.com", Password: "short"})
	assertCode(t, err, models.CodeValidation)
	_, err = svc.Register(ctx, RegisterInput{Username: "lee@example.com", Password: "longenough", UserType: "FACEBOOK"})
	assertCode(t, err, models.CodeValidation)

	t.Run("verify", func(t *testing.T) {
		_, err := svc.Verify(ctx, res.User.ID, "abcdef")
		assertCode(t, err, models.CodeValidation)

		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		_, err = svc.Verify(ctx, res.User.ID, wrong)
		assertCode(t, err, models.CodeValidation)

		user, err := svc.Verify(ctx, res.User.ID, code)
		require.NoError(t, err)
		assert.True(t, user.IsVerified)
		assert.Empty(t, f.reloadUser(t, res.User.ID).VerificationToken)

		assertCode(t, svc.RegenerateVerificationToken(ctx, res.User.ID), models.CodeValidation)
	})
}

func TestAuthService_RegisterWithoutVerificationFlag(t *testing.T) {
	f := newFixture(t)
	mail := &recordingMailer{}
	svc, _ := newAuth(f, mail, "email_verification=off")

	res, err := svc.Register(context.Background(), RegisterInput{Username: "park@example.com", Password: "longenough", Name: "Park"})
	require.NoError(t, err)
	assert.True(t, res.User.IsVerified)
	assert.Empty(t, mail.sent)
}

func TestAuthService_RegenerateVerificationToken(t *testing.T) {
	f := newFixture(t)
	mail := &recordingMailer{}
	svc, _ := newAuth(f, mail, "")
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Username: "choi@example.com", Password: "longenough"})
	require.NoError(t, err)

	require.NoError(t, svc.RegenerateVerificationToken(ctx, res.User.ID))
	require.Len(t, mail.sent, 2)
	latest := mail.sent[1].data.(notifications.VerificationData).Code
	assert.Equal(t, latest, f.reloadUser(t, res.User.ID).VerificationToken)
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuth(f, &recordingMailer{}, "")
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "jung@example.com", Password: "longenough"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "jung@example.com", "longenough")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.User.IsVerified)

	_, err = svc.Login(ctx, "jung@example.com", "wrong-password")
	assertCode(t, err, models.CodeUnauthorized)
	_, err = svc.Login(ctx, "nobody@example.com", "longenough")
	assertCode(t, err, models.CodeUnauthorized)
}

func TestAuthService_SNSLogin(t *testing.T) {
	f := newFixture(t)
	mail := &recordingMailer{}
	svc, _ := newAuth(f, mail, "")
	ctx := context.Background()

	created, err := svc.SNSLogin(ctx, SNSLoginInput{Username: "kakao-123", Name: "Kim", UserType: models.UserTypeKakao})
	require.NoError(t, err)
	assert.True(t, created.Created)
	assert.True(t, created.User.IsVerified)
	assert.Empty(t, mail.sent)

	again, err := svc.SNSLogin(ctx, SNSLoginInput{Username: "kakao-123", UserType: models.UserTypeKakao})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, created.User.ID, again.User.ID)

	_, err = svc.SNSLogin(ctx, SNSLoginInput{Username: "kakao-123", UserType: models.UserTypeNaver})
	assertCode(t, err, models.CodeConflict)

	_, err = svc.SNSLogin(ctx, SNSLoginInput{Username: "x", UserType: models.UserTypeDirect})
	assertCode(t, err, models.CodeValidation)
}

func TestAuthService_ForgotPassword(t *testing.T) {
	f := newFixture(t)
	mail := &recordingMailer{}
	svc, _ := newAuth(f, mail, "email_verification=off")
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Username: "han@example.com", Password: "longenough"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "han@example.com"))
	require.Len(t, mail.sent, 1)
	password := mail.sent[0].data.(notifications.PasswordResetData).Password
	assert.Len(t, password, 16)

	stored := f.reloadUser(t, res.User.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte(password)))

	assertCode(t, svc.ForgotPassword(ctx, "ghost@example.com"), models.CodeNotFound)

	_, err = svc.SNSLogin(ctx, SNSLoginInput{Username: "apple-1", UserType: models.UserTypeApple})
	require.NoError(t, err)
	assertCode(t, svc.ForgotPassword(ctx, "apple-1"), models.CodeValidation)

	mail.err = errors.New("redis down")
	assert.Error(t, svc.ForgotPassword(ctx, "han@example.com"))
}

func TestAuthService_Logout(t *testing.T) {
	f := newFixture(t)
	svc, revoker := newAuth(f, &recordingMailer{}, "")
	exp := time.Now().Add(time.Hour)

	require.NoError(t, svc.Logout(context.Background(), "jti-1", exp))
	assert.Equal(t, "jti-1", revoker.jti)
	assert.Equal(t, exp, revoker.exp)

	require.NoError(t, svc.Logout(context.Background(), "", exp))
	assert.Equal(t, "jti-1", revoker.jti)
}
