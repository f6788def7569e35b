package dto

import (
	"time"

	"github.com/medconcierge/intake-service/internal/domain"
)

// LookupResponse is one selectable reference entry.
type LookupResponse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// LookupsResponse groups the intake form's reference lists.
type LookupsResponse struct {
	Locations       []LookupResponse `json:"locations"`
	Insurances      []LookupResponse `json:"insurances"`
	Services        []LookupResponse `json:"services"`
	TravelAbilities []LookupResponse `json:"travelAbilities"`
}

// OwnerResponse identifies the client behind an application.
type OwnerResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// ApplicationResponse is an application with its related entities.
type ApplicationResponse struct {
	ID            string                   `json:"id"`
	UserID        string                   `json:"userId"`
	Status        domain.ApplicationStatus `json:"status"`
	Notes         string                   `json:"notes,omitempty"`
	Owner         OwnerResponse            `json:"user"`
	Location      LookupResponse           `json:"location"`
	Insurance     LookupResponse           `json:"insurance"`
	TravelAbility LookupResponse           `json:"travelAbility"`
	Services      []LookupResponse         `json:"services"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// StatusHistoryResponse is one audit row.
type StatusHistoryResponse struct {
	ID            string                   `json:"id"`
	ApplicationID string                   `json:"applicationId"`
	OldStatus     domain.ApplicationStatus `json:"oldStatus"`
	NewStatus     domain.ApplicationStatus `json:"newStatus"`
	ChangedBy     string                   `json:"changedBy"`
	Comment       *string                  `json:"comment"`
	CreatedAt     time.Time                `json:"createdAt"`
}
