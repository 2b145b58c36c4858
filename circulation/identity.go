package circulation

import (
	"github.com/google/uuid"
)

// Role describes what an actor may do. Staff-only operations check the role
// before taking any lock.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
)

// Actor is the explicit caller identity threaded into every engine operation.
// There is no ambient session state: whoever calls the engine says who they
// are, and the engine decides what they may do.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// StaffActor builds an actor with staff privileges.
func StaffActor(userID uuid.UUID) Actor {
	return Actor{UserID: userID, Role: RoleStaff}
}

// UserActor builds an actor with regular user privileges.
func UserActor(userID uuid.UUID) Actor {
	return Actor{UserID: userID, Role: RoleUser}
}

// IsStaff reports whether the actor may perform staff-only operations.
func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff
}
