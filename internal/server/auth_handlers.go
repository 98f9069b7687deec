package server

import (
	"lastday/internal/middleware"
	"lastday/internal/models"
	"lastday/internal/service"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Name     string          `json:"name"`
	UserType models.UserType `json:"user_type"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type snsLoginRequest struct {
	Username string          `json:"username"`
	Name     string          `json:"name"`
	UserType models.UserType `json:"user_type"`
}

// Register handles POST /api/auth/register
// @Summary Register an account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body registerRequest true "Register request"
// @Success 201 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.auth.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		UserType: req.UserType,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body loginRequest true "Login request"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.Username == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Username and password are required"))
	}

	result, err := s.auth.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// SNSLogin handles POST /api/auth/sns-login. A first sign-in creates the account and
// answers 201.
func (s *Server) SNSLogin(c *fiber.Ctx) error {
	var req snsLoginRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.auth.SNSLogin(c.UserContext(), service.SNSLoginInput{
		Username: req.Username,
		Name:     req.Name,
		UserType: req.UserType,
	})
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(result)
}

// ForgotPassword handles POST /api/auth/forgot
func (s *Server) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.Username == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Username is required"))
	}

	if err := s.auth.ForgotPassword(c.UserContext(), req.Username); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "A new password has been sent by mail"})
}

// Verify handles POST /api/auth/verify
func (s *Server) Verify(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.auth.Verify(c.UserContext(), viewerID(c), req.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// Logout handles POST /api/auth/logout
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
	}

	if err := s.auth.Logout(c.UserContext(), claims.JTI, claims.ExpiresAt); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}
