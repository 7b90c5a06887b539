// Package auth handles member accounts and their credential lifecycle:
// registration, email verification, login with lockout, logout, password
// reset, and session credentials. Session credentials are HS256 JWTs bound
// to an HttpOnly cookie and revoked in bulk by bumping the account's
// session epoch.
package auth

import (
	"time"

	"github.com/carelinkhealth/portal/internal/rbac"
)

// User is one portal account. Database scanning uses this struct directly;
// API responses go through PublicUser so credential state never leaks.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         rbac.Role

	IsEmailVerified bool

	// Only hashes of one-time secrets are stored.
	VerificationHash    *string
	VerificationExpires *time.Time
	ResetHash           *string
	ResetExpires        *time.Time

	// SessionEpoch is embedded in every session credential. Bumping it
	// revokes all credentials issued before the bump.
	SessionEpoch int64

	LoginFailedAttempts  int
	LoginLockedUntil     *time.Time
	VerifyFailedAttempts int
	VerifyLockedUntil    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the profile returned to clients.
type PublicUser struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  rbac.Role `json:"role"`
}

// Public strips credential and counter state from the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyEmailRequest is the body of POST /api/auth/verify-email.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// EmailRequest is the body of the resend-verification and forgot-password
// endpoints.
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /api/auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the input for creating a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput is the input for authenticating an account.
type LoginInput struct {
	Email    string
	Password string
}

// --- Session ---

// Session is the identity a request carries after its credential has been
// resolved. Role is the account's live role, not the issuance snapshot.
type Session struct {
	UserID string
	Role   rbac.Role
	Epoch  int64

	// ExpiresAt is when the presented credential stops being valid.
	ExpiresAt time.Time
}

// IssuedSession is a freshly minted credential.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User    PublicUser
	Session IssuedSession
}
