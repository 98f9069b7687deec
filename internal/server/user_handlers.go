package server

import (
	"log/slog"

	"lastday/internal/middleware"
	"lastday/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
// @Summary Current user profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /users/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.users.Profile(c.UserContext(), viewerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// UpdateMyProfile handles PATCH /api/users/me
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		Name            *string `json:"name"`
		CurrentPassword string  `json:"current_password"`
		NewPassword     string  `json:"new_password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.users.EditProfile(c.UserContext(), service.EditProfileInput{
		UserID:          viewerID(c),
		Name:            req.Name,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// DeleteMyAccount handles DELETE /api/users/me
func (s *Server) DeleteMyAccount(c *fiber.Ctx) error {
	if err := s.community.DeleteAccount(c.UserContext(), viewerID(c)); err != nil {
		return respondError(c, err)
	}

	// The account is gone; a revocation failure only leaves the token to expire.
	if claims, ok := middleware.Claims(c); ok {
		if err := s.auth.Logout(c.UserContext(), claims.JTI, claims.ExpiresAt); err != nil {
			middleware.Logger.WarnContext(c.UserContext(), "token revocation after account deletion failed",
				slog.String("error", err.Error()))
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RegenerateVerificationToken handles POST /api/users/me/verification-token
func (s *Server) RegenerateVerificationToken(c *fiber.Ctx) error {
	if err := s.auth.RegenerateVerificationToken(c.UserContext(), viewerID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Verification code sent"})
}

func (s *Server) ReportUser(c *fiber.Ctx) error   { return s.setReport(c, true) }
func (s *Server) UnreportUser(c *fiber.Ctx) error { return s.setReport(c, false) }

func (s *Server) setReport(c *fiber.Ctx, present bool) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.users.SetReport(c.UserContext(), viewerID(c), targetID, present); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetHistories handles GET /api/users/me/histories
func (s *Server) GetHistories(c *fiber.Ctx) error {
	histories, err := s.users.ListHistories(c.UserContext(), viewerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(histories)
}

// DeleteHistory handles DELETE /api/users/me/histories/:historyId
func (s *Server) DeleteHistory(c *fiber.Ctx) error {
	if err := s.users.DeleteHistory(c.UserContext(), viewerID(c), c.Params("historyId")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddHistory handles POST /api/recommend/histories
func (s *Server) AddHistory(c *fiber.Ctx) error {
	var req service.HistoryInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	entry, err := s.users.AddHistory(c.UserContext(), viewerID(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}
