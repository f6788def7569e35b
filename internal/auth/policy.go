package auth

import (
	"github.com/medconcierge/intake-service/internal/domain"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

// Permission is a single action on an application.
type Permission uint8

const (
	PermView Permission = 1 << iota
	PermViewHistory
	PermListMessages
	PermPostMessage
	PermMarkRead
	PermUpdateStatus
)

// PermissionSet is the set of actions an actor may take on one application.
type PermissionSet uint8

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	return PermissionSet(p)&s != 0
}

// Require returns a Forbidden error unless p is in the set.
func (s PermissionSet) Require(p Permission) error {
	if !s.Has(p) {
		return apperrors.NewForbidden("not allowed to access this application")
	}
	return nil
}

const (
	ownerPermissions = PermissionSet(PermView | PermViewHistory | PermListMessages | PermPostMessage | PermMarkRead)
	staffPermissions = ownerPermissions | PermissionSet(PermUpdateStatus)
)

// Permissions evaluates what actor may do with app. Staff may act on every
// application; a client only on applications they own and never on status.
func Permissions(actor domain.Actor, app *domain.Application) PermissionSet {
	switch {
	case actor.Role.IsStaff():
		return staffPermissions
	case actor.Role == domain.RoleClient && app != nil && app.UserID == actor.ID:
		return ownerPermissions
	}
	return 0
}

// RequireStaff returns a Forbidden error unless actor is MANAGER or ADMIN.
func RequireStaff(actor domain.Actor) error {
	if !actor.Role.IsStaff() {
		return apperrors.NewForbidden("staff role required")
	}
	return nil
}
