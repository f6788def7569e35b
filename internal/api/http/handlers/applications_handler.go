package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/medconcierge/intake-service/internal/api/dto"
	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/service"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

// ApplicationsHandler serves intake, listing and status endpoints.
type ApplicationsHandler struct {
	service *service.ApplicationService
}

// NewApplicationsHandler constructs handler.
func NewApplicationsHandler(applicationService *service.ApplicationService) *ApplicationsHandler {
	return &ApplicationsHandler{service: applicationService}
}

// Submit POST /applications.
func (h *ApplicationsHandler) Submit(c *fiber.Ctx) error {
	var input service.SubmitApplicationInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	app, err := h.service.Submit(c.UserContext(), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, applicationResponse(app))
}

// List GET /applications.
func (h *ApplicationsHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	input := service.ListApplicationsInput{
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := domain.ApplicationStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return apperrors.NewValidationError("invalid payload", map[string]any{"status": "unknown status"})
		}
		input.Status = &status
	}
	apps, err := h.service.List(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	items := make([]dto.ApplicationResponse, 0, len(apps))
	for i := range apps {
		items = append(items, applicationResponse(&apps[i]))
	}
	return respond(c, fiber.StatusOK, items)
}

// Get GET /applications/:id.
func (h *ApplicationsHandler) Get(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	app, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, applicationResponse(app))
}

// History GET /applications/:id/history.
func (h *ApplicationsHandler) History(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	rows, err := h.service.ListHistory(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, historyResponses(rows))
}

// UpdateStatus PATCH /applications/:id/status.
func (h *ApplicationsHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	// An unreadable body leaves the input empty so role checks still run first.
	var input service.UpdateStatusInput
	if err := c.BodyParser(&input); err != nil {
		input = service.UpdateStatusInput{}
	}
	app, err := h.service.UpdateStatus(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, applicationResponse(app))
}

// Lookups GET /lookups.
func (h *ApplicationsHandler) Lookups(c *fiber.Ctx) error {
	lookups, err := h.service.Lookups(c.UserContext())
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, dto.LookupsResponse{
		Locations:       lookupResponses(lookups.Locations),
		Insurances:      lookupResponses(lookups.Insurances),
		Services:        lookupResponses(lookups.Services),
		TravelAbilities: lookupResponses(lookups.TravelAbilities),
	})
}
