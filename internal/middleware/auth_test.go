package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revokedSet map[string]bool

func (r revokedSet) IsRevoked(_ context.Context, jti string) (bool, error) {
	return r[jti], nil
}

func newAuthApp(m *TokenManager, optional bool) *fiber.App {
	app := fiber.New()
	handler := m.AuthRequired()
	if optional {
		handler = m.AuthOptional()
	}
	app.Get("/me", handler, func(c *fiber.Ctx) error {
		uid, ok := UserID(c)
		if !ok {
			return c.SendString("anonymous")
		}
		return c.JSON(fiber.Map{"id": uid})
	})
	return app
}

func TestTokenManager_IssueAndParse(t *testing.T) {
	m := NewTokenManager("test-secret-that-is-long-enough-123", time.Hour, nil)

	token, err := m.Issue(7)
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.NotEmpty(t, claims.JTI)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestTokenManager_ParseRejects(t *testing.T) {
	m := NewTokenManager("test-secret-that-is-long-enough-123", time.Hour, nil)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("another-secret-that-is-long-enough", time.Hour, nil)
		token, err := other.Issue(1)
		require.NoError(t, err)
		_, err = m.Parse(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewTokenManager("test-secret-that-is-long-enough-123", time.Hour, nil)
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := expired.Issue(1)
		require.NoError(t, err)
		_, err = m.Parse(token)
		assert.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": "1",
			"iss": tokenIssuer,
			"aud": "someone-else",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
		require.NoError(t, err)
		_, err = m.Parse(token)
		assert.Error(t, err)
	})

	t.Run("non numeric subject", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": "abc",
			"iss": tokenIssuer,
			"aud": tokenAudience,
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
		require.NoError(t, err)
		_, err = m.Parse(token)
		assert.Error(t, err)
	})
}

func TestAuthRequired(t *testing.T) {
	revoked := revokedSet{}
	m := NewTokenManager("test-secret-that-is-long-enough-123", time.Hour, revoked)
	app := newAuthApp(m, false)

	token, err := m.Issue(3)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"id":3}`, string(body))

	req = httptest.NewRequest("GET", "/me", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Token "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	revoked[claims.JTI] = true

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthOptional(t *testing.T) {
	m := NewTokenManager("test-secret-that-is-long-enough-123", time.Hour, nil)
	app := newAuthApp(m, true)

	req := httptest.NewRequest("GET", "/me", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "anonymous", string(body))

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "anonymous", string(body))
}
