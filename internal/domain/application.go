package domain

import "time"

// ApplicationStatus enumerates lifecycle states for an application.
type ApplicationStatus string

const (
	StatusNew       ApplicationStatus = "NEW"
	StatusInReview  ApplicationStatus = "IN_REVIEW"
	StatusContacted ApplicationStatus = "CONTACTED"
	StatusCompleted ApplicationStatus = "COMPLETED"
	StatusCancelled ApplicationStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInReview, StatusContacted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Application is a client's request for concierge services.
type Application struct {
	ID              string
	UserID          string
	Status          ApplicationStatus
	LocationID      string
	InsuranceID     string
	TravelAbilityID string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ApplicationOwner is the subset of the owning user shown with an application.
type ApplicationOwner struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// ApplicationDetail is an application with its related entities loaded.
type ApplicationDetail struct {
	Application
	Owner         ApplicationOwner
	Location      Lookup
	Insurance     Lookup
	TravelAbility Lookup
	Services      []Lookup
}

// ApplicationStatusHistory is an immutable audit row for one status change.
type ApplicationStatusHistory struct {
	ID            string
	ApplicationID string
	OldStatus     ApplicationStatus
	NewStatus     ApplicationStatus
	ChangedBy     string
	Comment       *string
	CreatedAt     time.Time
}
