package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medconcierge/intake-service/internal/api/dto"
	"github.com/medconcierge/intake-service/internal/service"
)

// MessagesHandler serves the per-application conversation thread.
type MessagesHandler struct {
	service *service.MessageService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(messageService *service.MessageService) *MessagesHandler {
	return &MessagesHandler{service: messageService}
}

// List GET /applications/:id/messages.
func (h *MessagesHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	msgs, err := h.service.List(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, messageResponse(&msgs[i]))
	}
	return respond(c, fiber.StatusOK, items)
}

// Post POST /applications/:id/messages.
func (h *MessagesHandler) Post(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	// An unreadable body is treated as empty content so existence and access
	// checks still come first.
	var req dto.PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		req = dto.PostMessageRequest{}
	}
	msg, err := h.service.Post(c.UserContext(), actor, c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, messageResponse(msg))
}

// MarkRead PATCH /applications/:id/messages/read.
func (h *MessagesHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if _, err := h.service.MarkRead(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// UnreadCounts GET /applications/unread-counts.
func (h *MessagesHandler) UnreadCounts(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	counts, err := h.service.UnreadCounts(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, counts)
}
