package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medconcierge/intake-service/internal/api/dto"
	"github.com/medconcierge/intake-service/internal/service"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

// AdminHandler manages staff accounts.
type AdminHandler struct {
	service *service.AuthService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(authService *service.AuthService) *AdminHandler {
	return &AdminHandler{service: authService}
}

// CreateStaff POST /admin/staff.
func (h *AdminHandler) CreateStaff(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var input service.CreateStaffInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.service.CreateStaff(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, userResponse(user))
}

// ListStaff GET /admin/staff.
func (h *AdminHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	activeOnly := c.QueryBool("active", false)
	users, err := h.service.ListStaff(c.UserContext(), actor, activeOnly, c.QueryInt("limit", 0), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return respond(c, fiber.StatusOK, items)
}
