package domain

import "time"

// Role enumerates who a user is to the agency.
type Role string

const (
	RoleClient  Role = "CLIENT"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r belongs to the agency side of a thread.
func (r Role) IsStaff() bool {
	return r == RoleManager || r == RoleAdmin
}

// StaffRoles lists the roles on the agency side.
func StaffRoles() []Role {
	return []Role{RoleManager, RoleAdmin}
}

// User is an account: a client who submitted an application or a staff member.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// Actor returns the identity of u as an actor.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
