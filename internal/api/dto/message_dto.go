package dto

import (
	"time"

	"github.com/medconcierge/intake-service/internal/domain"
)

// PostMessageRequest payload.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// MessageSenderResponse is the display identity of a sender.
type MessageSenderResponse struct {
	ID        string      `json:"id"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Role      domain.Role `json:"role"`
}

// MessageResponse is one thread entry.
type MessageResponse struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"applicationId"`
	SenderID      string                 `json:"senderId"`
	SenderRole    domain.Role            `json:"senderRole"`
	Content       string                 `json:"content"`
	IsRead        bool                   `json:"isRead"`
	CreatedAt     time.Time              `json:"createdAt"`
	Sender        *MessageSenderResponse `json:"sender,omitempty"`
}
