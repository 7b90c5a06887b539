package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carelinkhealth/portal/internal/apperror"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// memoryUserRepository is a process-local UserRepository. One mutex guards
// every record, which gives each method the same single-record atomicity the
// SQL implementation gets from one UPDATE statement. Used by tests.
type memoryUserRepository struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryUserRepository creates an empty in-memory repository.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// clone copies a record so callers never share memory with the store.
// Pointer fields are only ever replaced, never written through, so a
// shallow copy is enough.
func clone(u *User) *User {
	c := *u
	return &c
}

func (r *memoryUserRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return apperror.NewConflict("Email already in use")
	}
	stored := clone(user)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	r.byID[user.ID] = stored
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *memoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, apperror.NewNotFound("user not found")
	}
	return clone(u), nil
}

func (r *memoryUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, apperror.NewNotFound("user not found")
	}
	return clone(r.byID[id]), nil
}

func (r *memoryUserRepository) FindByResetTokenHash(_ context.Context, tokenHash string, now time.Time) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.ResetHash != nil && *u.ResetHash == tokenHash &&
			u.ResetExpires != nil && u.ResetExpires.After(now) {
			return clone(u), nil
		}
	}
	return nil, apperror.NewNotFound("reset token not found")
}

// mutate runs fn on the stored record under the lock.
func (r *memoryUserRepository) mutate(id string, fn func(u *User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return apperror.NewNotFound("user not found")
	}
	fn(u)
	return nil
}

func (r *memoryUserRepository) RecordFailure(_ context.Context, id string, track Track, policy LockoutPolicy, now time.Time) error {
	return r.mutate(id, func(u *User) { applyFailure(u, track, policy, now) })
}

func (r *memoryUserRepository) ClearFailures(_ context.Context, id string, track Track) error {
	return r.mutate(id, func(u *User) { applyClear(u, track) })
}

func (r *memoryUserRepository) SetVerificationSecret(_ context.Context, id, codeHash string, expires time.Time) error {
	return r.mutate(id, func(u *User) {
		u.VerificationHash = &codeHash
		u.VerificationExpires = &expires
	})
}

func (r *memoryUserRepository) MarkEmailVerified(_ context.Context, id string) error {
	return r.mutate(id, func(u *User) {
		u.IsEmailVerified = true
		u.VerificationHash = nil
		u.VerificationExpires = nil
		applyClear(u, TrackVerification)
	})
}

func (r *memoryUserRepository) SetResetSecret(_ context.Context, id, tokenHash string, expires time.Time) error {
	return r.mutate(id, func(u *User) {
		u.ResetHash = &tokenHash
		u.ResetExpires = &expires
	})
}

func (r *memoryUserRepository) CompletePasswordReset(_ context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok || u.ResetHash == nil || *u.ResetHash != tokenHash ||
		u.ResetExpires == nil || !u.ResetExpires.After(now) {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.SessionEpoch++
	u.ResetHash = nil
	u.ResetExpires = nil
	return true, nil
}

func (r *memoryUserRepository) BumpSessionEpoch(_ context.Context, id string) error {
	return r.mutate(id, func(u *User) { u.SessionEpoch++ })
}

func (r *memoryUserRepository) ListUsers(_ context.Context, offset, limit int) ([]User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]User, 0, len(r.byID))
	for _, u := range r.byID {
		all = append(all, User{
			ID:              u.ID,
			Name:            u.Name,
			Email:           u.Email,
			Role:            u.Role,
			IsEmailVerified: u.IsEmailVerified,
			CreatedAt:       u.CreatedAt,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memoryUserRepository) UpdateRole(_ context.Context, id string, role rbac.Role) error {
	return r.mutate(id, func(u *User) { u.Role = role })
}

func (r *memoryUserRepository) DeleteUnverifiedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, u := range r.byID {
		if !u.IsEmailVerified && u.CreatedAt.Before(cutoff) {
			delete(r.byID, id)
			delete(r.byEmail, u.Email)
			n++
		}
	}
	return n, nil
}
