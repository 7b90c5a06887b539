// Package users provides account administration for staff: listing member
// accounts and changing their roles. Credentials are never exposed here;
// the listing only carries profile fields and the verification flag.
package users

import (
	"time"

	"github.com/carelinkhealth/portal/internal/plugins/auth"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// UserSummary is one row of the administration listing.
type UserSummary struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Role            rbac.Role `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`

	// Status is the derived account state at listing time. LockedUntil is
	// set only while a lockout is running.
	Status      auth.StatusKind `json:"status"`
	LockedUntil *time.Time      `json:"lockedUntil,omitempty"`
}

func summaryOf(u *auth.User, now time.Time) UserSummary {
	status := auth.StatusOf(u, now)
	return UserSummary{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
		Status:          status.Kind,
		LockedUntil:     status.Until,
	}
}

// UserPage is one page of the listing.
type UserPage struct {
	Users   []UserSummary `json:"users"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"perPage"`
}

// ChangeRoleRequest is the body of PATCH /api/users/:id/role.
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// RoleChange describes an applied role change.
type RoleChange struct {
	User UserSummary `json:"user"`
	From rbac.Role   `json:"from"`
	To   rbac.Role   `json:"to"`
}
