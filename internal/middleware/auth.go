// Package middleware provides authentication, logging, tracing and rate limiting middleware.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer   = "lastday-api"
	tokenAudience = "lastday-client"
)

// RevocationChecker reports whether a token id has been revoked (logout).
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationChecker
	now     func() time.Time
}

// NewTokenManager creates a TokenManager. revoked may be nil.
func NewTokenManager(secret string, ttl time.Duration, revoked RevocationChecker) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

// TokenClaims are the verified claims the rest of the app cares about.
type TokenClaims struct {
	UserID    uint
	JTI       string
	ExpiresAt time.Time
}

// Issue signs a token for the user.
func (m *TokenManager) Issue(userID uint) (string, error) {
	if len(m.secret) == 0 {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := m.now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iss": tokenIssuer,
		"aud": tokenAudience,
		"exp": now.Add(m.ttl).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"jti": uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse validates signature, issuer, audience and expiry and returns the claims.
func (m *TokenManager) Parse(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("invalid token structure - missing subject")
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return nil, errors.New("invalid user ID in token")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("invalid token expiry")
	}

	jti, _ := claims["jti"].(string)

	return &TokenClaims{UserID: uint(userID), JTI: jti, ExpiresAt: exp.Time}, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

func (m *TokenManager) authenticate(c *fiber.Ctx) error {
	raw, err := bearerToken(c)
	if err != nil {
		return err
	}

	claims, err := m.Parse(raw)
	if err != nil {
		return err
	}

	if m.revoked != nil && claims.JTI != "" {
		revoked, err := m.revoked.IsRevoked(c.UserContext(), claims.JTI)
		if err != nil {
			Logger.WarnContext(c.UserContext(), "token revocation check failed", "error", err)
		} else if revoked {
			return errors.New("token has been revoked")
		}
	}

	c.Locals("userID", claims.UserID)
	c.Locals("tokenClaims", claims)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, claims.UserID))
	return nil
}

// AuthRequired rejects requests without a valid bearer token.
func (m *TokenManager) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := m.authenticate(c); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
				"code":  "UNAUTHORIZED",
			})
		}
		return c.Next()
	}
}

// AuthOptional resolves the viewer when a valid token is present and otherwise continues anonymously.
func (m *TokenManager) AuthOptional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") != "" {
			_ = m.authenticate(c)
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id stored by the auth middleware.
func UserID(c *fiber.Ctx) (uint, bool) {
	uid, ok := c.Locals("userID").(uint)
	return uid, ok && uid != 0
}

// Claims returns the verified token claims stored by the auth middleware.
func Claims(c *fiber.Ctx) (*TokenClaims, bool) {
	claims, ok := c.Locals("tokenClaims").(*TokenClaims)
	return claims, ok
}
