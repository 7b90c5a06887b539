package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carelinkhealth/portal/internal/apperror"
	"github.com/carelinkhealth/portal/internal/plugins/auth"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// perPage is the number of accounts per listing page.
const perPage = 25

// AccountStore is the slice of the credential store this plugin needs.
// Satisfied by auth.UserRepository.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]auth.User, int, error)
	UpdateRole(ctx context.Context, id string, role rbac.Role) error
}

// UserService handles account administration.
type UserService interface {
	List(ctx context.Context, page int) (*UserPage, error)

	// ChangeRole assigns role to the target account on behalf of actor.
	// Actors cannot change their own role, cannot touch accounts ranked
	// above them, and cannot grant a role above their own.
	ChangeRole(ctx context.Context, actor *auth.Session, targetID, role string) (*RoleChange, error)
}

type userService struct {
	store AccountStore
	now   func() time.Time
}

// NewUserService creates a new user administration service. now may be nil
// to use the wall clock.
func NewUserService(store AccountStore, now func() time.Time) UserService {
	if now == nil {
		now = time.Now
	}
	return &userService{store: store, now: now}
}

// List returns one page of accounts, newest first.
func (s *userService) List(ctx context.Context, page int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}

	rows, total, err := s.store.ListUsers(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing users: %w", err))
	}

	now := s.now().UTC()
	out := make([]UserSummary, 0, len(rows))
	for i := range rows {
		out = append(out, summaryOf(&rows[i], now))
	}
	return &UserPage{Users: out, Total: total, Page: page, PerPage: perPage}, nil
}

// ChangeRole validates and applies a role change. The change is visible on
// the target's next request because sessions resolve the live role.
func (s *userService) ChangeRole(ctx context.Context, actor *auth.Session, targetID, role string) (*RoleChange, error) {
	if actor == nil {
		return nil, apperror.NewUnauthorized("authentication required")
	}

	newRole, ok := rbac.ParseRole(role)
	if !ok {
		return nil, apperror.NewValidation("Invalid role").WithMeta("roles", rbac.Roles())
	}
	if targetID == actor.UserID {
		return nil, apperror.NewBadRequest("cannot change your own role")
	}
	if !rbac.HasAtLeastRole(actor.Role, newRole) {
		return nil, apperror.NewForbidden("cannot grant a role above your own")
	}

	target, err := s.store.FindByID(ctx, targetID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("User not found")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if !rbac.HasAtLeastRole(actor.Role, target.Role) {
		return nil, apperror.NewForbidden("cannot change the role of a higher-ranked user")
	}

	from := target.Role
	if from != newRole {
		if err := s.store.UpdateRole(ctx, target.ID, newRole); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("updating role: %w", err))
		}
		target.Role = newRole

		slog.Info("user role changed",
			slog.String("user_id", target.ID),
			slog.String("actor_id", actor.UserID),
			slog.String("from", string(from)),
			slog.String("to", string(newRole)),
		)
	}

	return &RoleChange{User: summaryOf(target, s.now().UTC()), From: from, To: newRole}, nil
}
