package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/medconcierge/intake-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventApplicationSubmitted     EventType = "application_submitted"
	EventApplicationStatusChanged EventType = "application_status_changed"
	EventMessagePosted            EventType = "message_posted"
	EventPasswordResetRequested   EventType = "password_reset_requested"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id,omitempty"`
	Role domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	ApplicationID string      `json:"applicationId,omitempty"`
	Actor         Actor       `json:"actor"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, applicationID string, actor domain.Actor, payload interface{}) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		ApplicationID: applicationID,
		Actor:         Actor{ID: actor.ID, Role: actor.Role},
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
}

// Recipient is who an event notification is addressed to.
type Recipient struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
}

// ApplicationSubmittedPayload payload.
type ApplicationSubmittedPayload struct {
	Owner      Recipient `json:"owner"`
	NewAccount bool      `json:"newAccount"`
	ServiceIDs []string  `json:"serviceIds"`
}

// ApplicationStatusChangedPayload payload.
type ApplicationStatusChangedPayload struct {
	Owner     Recipient                `json:"owner"`
	OldStatus domain.ApplicationStatus `json:"oldStatus"`
	NewStatus domain.ApplicationStatus `json:"newStatus"`
	Comment   string                   `json:"comment,omitempty"`
}

// MessagePostedPayload payload.
type MessagePostedPayload struct {
	Owner       Recipient   `json:"owner"`
	MessageID   string      `json:"messageId"`
	SenderRole  domain.Role `json:"senderRole"`
	BodyPreview string      `json:"bodyPreview"`
}

// PasswordResetRequestedPayload payload. It carries the code and is never
// forwarded to webhooks.
type PasswordResetRequestedPayload struct {
	Recipient Recipient `json:"recipient"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}
