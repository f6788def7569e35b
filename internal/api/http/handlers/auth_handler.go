package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medconcierge/intake-service/internal/api/dto"
	"github.com/medconcierge/intake-service/internal/service"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

// AuthHandler serves sign-in and password endpoints.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// SignIn POST /auth/sign-in.
func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var input service.SignInInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.SignIn(c.UserContext(), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, dto.AuthResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      userResponse(result.User),
	})
}

// RequestPasswordReset POST /auth/password/reset/request.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.service.RequestPasswordReset(c.UserContext(), req.Identifier); err != nil {
		return err
	}
	return respond(c, fiber.StatusAccepted, fiber.Map{"message": "if the account exists, a reset code has been sent"})
}

// ConfirmPasswordReset POST /auth/password/reset/confirm.
func (h *AuthHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var input service.ResetConfirmInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.service.ConfirmPasswordReset(c.UserContext(), input); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// ChangePassword POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var input service.ChangePasswordInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.service.ChangePassword(c.UserContext(), actor, input); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// Me GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	user, err := h.service.Me(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, userResponse(user))
}
