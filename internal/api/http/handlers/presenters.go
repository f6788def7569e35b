package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medconcierge/intake-service/internal/api/dto"
	"github.com/medconcierge/intake-service/internal/auth"
	"github.com/medconcierge/intake-service/internal/domain"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

func respond(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": data})
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return domain.Actor{}, apperrors.NewUnauthorized("session required")
	}
	return principal.Actor(), nil
}

func userResponse(u *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func lookupResponse(l domain.Lookup) dto.LookupResponse {
	return dto.LookupResponse{ID: l.ID, Code: l.Code, Name: l.Name}
}

func lookupResponses(items []domain.Lookup) []dto.LookupResponse {
	out := make([]dto.LookupResponse, 0, len(items))
	for _, l := range items {
		out = append(out, lookupResponse(l))
	}
	return out
}

func applicationResponse(app *domain.ApplicationDetail) dto.ApplicationResponse {
	return dto.ApplicationResponse{
		ID:     app.ID,
		UserID: app.UserID,
		Status: app.Status,
		Notes:  app.Notes,
		Owner: dto.OwnerResponse{
			ID:        app.Owner.ID,
			FirstName: app.Owner.FirstName,
			LastName:  app.Owner.LastName,
			Email:     app.Owner.Email,
			Phone:     app.Owner.Phone,
		},
		Location:      lookupResponse(app.Location),
		Insurance:     lookupResponse(app.Insurance),
		TravelAbility: lookupResponse(app.TravelAbility),
		Services:      lookupResponses(app.Services),
		CreatedAt:     app.CreatedAt,
		UpdatedAt:     app.UpdatedAt,
	}
}

func historyResponses(rows []domain.ApplicationStatusHistory) []dto.StatusHistoryResponse {
	out := make([]dto.StatusHistoryResponse, 0, len(rows))
	for _, h := range rows {
		out = append(out, dto.StatusHistoryResponse{
			ID:            h.ID,
			ApplicationID: h.ApplicationID,
			OldStatus:     h.OldStatus,
			NewStatus:     h.NewStatus,
			ChangedBy:     h.ChangedBy,
			Comment:       h.Comment,
			CreatedAt:     h.CreatedAt,
		})
	}
	return out
}

func messageResponse(m *domain.Message) dto.MessageResponse {
	resp := dto.MessageResponse{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		SenderID:      m.SenderID,
		SenderRole:    m.SenderRole,
		Content:       m.Content,
		IsRead:        m.IsRead,
		CreatedAt:     m.CreatedAt,
	}
	if m.Sender != nil {
		resp.Sender = &dto.MessageSenderResponse{
			ID:        m.Sender.ID,
			FirstName: m.Sender.FirstName,
			LastName:  m.Sender.LastName,
			Role:      m.Sender.Role,
		}
	}
	return resp
}
