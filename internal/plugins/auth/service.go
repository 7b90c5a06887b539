package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carelinkhealth/portal/internal/apperror"
	"github.com/carelinkhealth/portal/internal/rbac"
	"github.com/carelinkhealth/portal/internal/sanitize"
)

// verificationCodeLength is the number of digits in an emailed code.
const verificationCodeLength = 6

// maxNameLength caps stored display names, in characters.
const maxNameLength = 100

// Generic acknowledgements for the anti-enumeration endpoints. The same
// text is returned whether or not the account exists.
const (
	ForgotPasswordMessage     = "If that email exists, a reset link was sent"
	ResendVerificationMessage = "If that email exists and is unverified, a new code was sent"
)

// dummyPassword is hashed once at startup so the unknown-email login path
// pays the same bcrypt cost as a wrong password.
const dummyPassword = "not-a-real-password-Aa1!"

// AuthService defines the business logic contract for the credential
// lifecycle. Handlers call these methods -- they never touch the repository
// directly.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*PublicUser, error)

	// VerifyEmail returns alreadyVerified=true when the account had been
	// verified before this call; the code is not checked in that case.
	VerifyEmail(ctx context.Context, email, code string) (alreadyVerified bool, err error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)

	// Logout ends the caller's session. session may be nil when the request
	// carried no valid credential; logout still succeeds.
	Logout(ctx context.Context, session *Session) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error

	// ResolveSession turns a presented credential back into an identity,
	// checking it against the account's live session epoch.
	ResolveSession(ctx context.Context, token string) (*Session, error)
	Me(ctx context.Context, userID string) (*PublicUser, error)

	// PurgeUnverified deletes accounts left unverified for longer than
	// olderThan.
	PurgeUnverified(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ServiceConfig tunes the flows. Zero values fall back to the defaults in
// NewAuthService.
type ServiceConfig struct {
	BcryptCost          int
	LoginPolicy         LockoutPolicy
	VerifyPolicy        LockoutPolicy
	VerificationCodeTTL time.Duration
	ResetTokenTTL       time.Duration
	LogoutEverywhere    bool
}

// authService implements AuthService with bcrypt hashing and JWT sessions.
type authService struct {
	repo      UserRepository
	sessions  *SessionIssuer
	notifier  Notifier
	cfg       ServiceConfig
	now       func() time.Time
	dummyHash string
}

// NewAuthService creates a new auth service with the given dependencies.
// now may be nil to use the wall clock.
func NewAuthService(repo UserRepository, sessions *SessionIssuer, notifier Notifier, cfg ServiceConfig, now func() time.Time) (AuthService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cfg.BcryptCost)
	}
	if cfg.LoginPolicy.Threshold == 0 {
		cfg.LoginPolicy = DefaultLockoutPolicy
	}
	if cfg.VerifyPolicy.Threshold == 0 {
		cfg.VerifyPolicy = DefaultLockoutPolicy
	}
	if cfg.VerificationCodeTTL == 0 {
		cfg.VerificationCodeTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	if now == nil {
		now = time.Now
	}

	dummy, err := HashPassword(dummyPassword, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &authService{
		repo:      repo,
		sessions:  sessions,
		notifier:  notifier,
		cfg:       cfg,
		now:       now,
		dummyHash: dummy,
	}, nil
}

// clock returns the current time in UTC.
func (s *authService) clock() time.Time {
	return s.now().UTC()
}

// Register creates an unverified account and emails it a verification code.
// No session is issued.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*PublicUser, error) {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, apperror.NewValidation("name, email, and password are required")
	}

	email := NormalizeEmail(input.Email)
	if !IsValidEmail(email) {
		return nil, apperror.NewValidation("Invalid email")
	}
	if problems := PasswordProblems(input.Password); len(problems) > 0 {
		return nil, apperror.NewValidation("Password is too weak: needs "+strings.Join(problems, ", ")).
			WithMeta("problems", problems)
	}

	name := sanitize.DisplayName(input.Name, maxNameLength)
	if name == "" {
		return nil, apperror.NewValidation("name, email, and password are required")
	}

	// Check before the expensive hash. The unique index still decides races.
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, apperror.NewConflict("Email already in use")
	} else if !apperror.IsNotFound(err) {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}

	hash, err := HashPassword(input.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	code, err := GenerateNumericCode(verificationCodeLength)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	codeHash := HashOneTimeSecret(code)

	now := s.clock()
	expires := now.Add(s.cfg.VerificationCodeTTL)

	user := &User{
		ID:                  uuid.NewString(),
		Name:                name,
		Email:               email,
		PasswordHash:        hash,
		Role:                rbac.RoleUser,
		IsEmailVerified:     false,
		VerificationHash:    &codeHash,
		VerificationExpires: &expires,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if apperror.IsType(err, apperror.TypeConflict) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	s.notifier.Notify(ctx, Event{Kind: EventVerificationCode, To: user.Email, Name: user.Name, Code: code})

	slog.Info("user registered", slog.String("user_id", user.ID))

	pub := user.Public()
	return &pub, nil
}

// VerifyEmail checks an emailed code. Unknown account, missing secret,
// expired secret and wrong code all fail with the same error; an active
// lockout fails first regardless of the code.
func (s *authService) VerifyEmail(ctx context.Context, email, code string) (bool, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" {
		return false, apperror.NewValidation("email and code are required")
	}

	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if apperror.IsNotFound(err) {
			return false, apperror.NewInvalidOrExpiredCode()
		}
		return false, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if user.IsEmailVerified {
		return true, nil
	}

	now := s.clock()
	if left := LockedFor(user.VerifyLockedUntil, now); left > 0 {
		return false, apperror.NewTooManyAttempts(RemainingMinutes(left))
	}

	if user.VerificationHash == nil || user.VerificationExpires == nil || !user.VerificationExpires.After(now) {
		return false, apperror.NewInvalidOrExpiredCode()
	}

	if !secretsEqual(HashOneTimeSecret(strings.TrimSpace(code)), *user.VerificationHash) {
		if err := s.repo.RecordFailure(ctx, user.ID, TrackVerification, s.cfg.VerifyPolicy, now); err != nil {
			return false, apperror.NewInternal(err)
		}
		return false, apperror.NewInvalidOrExpiredCode()
	}

	if err := s.repo.MarkEmailVerified(ctx, user.ID); err != nil {
		return false, apperror.NewInternal(fmt.Errorf("marking verified: %w", err))
	}

	slog.Info("email verified", slog.String("user_id", user.ID))
	return false, nil
}

// ResendVerification issues a fresh code to an unverified account. Unknown
// and already-verified addresses succeed silently.
func (s *authService) ResendVerification(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return apperror.NewValidation("email is required")
	}

	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if user.IsEmailVerified {
		return nil
	}

	code, err := GenerateNumericCode(verificationCodeLength)
	if err != nil {
		return apperror.NewInternal(err)
	}

	expires := s.clock().Add(s.cfg.VerificationCodeTTL)
	if err := s.repo.SetVerificationSecret(ctx, user.ID, HashOneTimeSecret(code), expires); err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return apperror.NewInternal(fmt.Errorf("storing verification code: %w", err))
	}

	s.notifier.Notify(ctx, Event{Kind: EventVerificationCode, To: user.Email, Name: user.Name, Code: code})
	return nil
}

// Login checks credentials under the login lockout and issues a session.
// A correct password clears the login track even when the account is still
// unverified.
func (s *authService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, apperror.NewValidation("email and password are required")
	}

	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(input.Email))
	if err != nil {
		if apperror.IsNotFound(err) {
			VerifyPassword(input.Password, s.dummyHash)
			return nil, apperror.NewInvalidCredentials()
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	now := s.clock()
	if left := LockedFor(user.LoginLockedUntil, now); left > 0 {
		return nil, apperror.NewTooManyAttempts(RemainingMinutes(left))
	}

	if !VerifyPassword(input.Password, user.PasswordHash) {
		if err := s.repo.RecordFailure(ctx, user.ID, TrackLogin, s.cfg.LoginPolicy, now); err != nil {
			return nil, apperror.NewInternal(err)
		}
		return nil, apperror.NewInvalidCredentials()
	}

	if err := s.repo.ClearFailures(ctx, user.ID, TrackLogin); err != nil {
		return nil, apperror.NewInternal(err)
	}

	if !user.IsEmailVerified {
		return nil, apperror.NewEmailNotVerified()
	}

	issued, err := s.sessions.Issue(user)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))

	return &LoginResult{User: user.Public(), Session: issued}, nil
}

// Logout always succeeds for the caller. With LogoutEverywhere enabled it
// also revokes every other credential for the account.
func (s *authService) Logout(ctx context.Context, session *Session) error {
	if session == nil || !s.cfg.LogoutEverywhere {
		return nil
	}

	if err := s.repo.BumpSessionEpoch(ctx, session.UserID); err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return apperror.NewInternal(fmt.Errorf("bumping session epoch: %w", err))
	}
	return nil
}

// ForgotPassword emails a reset link if the account exists. The outcome is
// invisible to the caller.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return apperror.NewValidation("email is required")
	}

	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	token, err := GenerateOpaqueToken()
	if err != nil {
		return apperror.NewInternal(err)
	}

	expires := s.clock().Add(s.cfg.ResetTokenTTL)
	if err := s.repo.SetResetSecret(ctx, user.ID, HashOneTimeSecret(token), expires); err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return apperror.NewInternal(fmt.Errorf("storing reset token: %w", err))
	}

	s.notifier.Notify(ctx, Event{Kind: EventPasswordReset, To: user.Email, Name: user.Name, Token: token})

	slog.Info("password reset requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword redeems a reset token. The new hash, the epoch bump and the
// token's removal land in one store update, so every earlier session dies
// with the old password.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" || newPassword == "" {
		return apperror.NewValidation("token and new password are required")
	}
	if problems := PasswordProblems(newPassword); len(problems) > 0 {
		return apperror.NewValidation("Password is too weak: needs "+strings.Join(problems, ", ")).
			WithMeta("problems", problems)
	}

	now := s.clock()
	tokenHash := HashOneTimeSecret(strings.TrimSpace(token))

	user, err := s.repo.FindByResetTokenHash(ctx, tokenHash, now)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewInvalidOrExpiredToken()
		}
		return apperror.NewInternal(fmt.Errorf("finding reset token: %w", err))
	}

	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return apperror.NewInternal(err)
	}

	ok, err := s.repo.CompletePasswordReset(ctx, user.ID, tokenHash, hash, now)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if !ok {
		// Redeemed or replaced between lookup and update.
		return apperror.NewInvalidOrExpiredToken()
	}

	slog.Info("password reset completed", slog.String("user_id", user.ID))
	return nil
}

// ResolveSession verifies the credential, then re-reads the account. The
// returned role is the account's current role.
func (s *authService) ResolveSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperror.NewUnauthorized("authentication required")
	}

	claims, err := s.sessions.Parse(token)
	if err != nil {
		return nil, apperror.NewInvalidToken()
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewStaleSession()
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading session user: %w", err))
	}

	if user.SessionEpoch != claims.Epoch {
		return nil, apperror.NewStaleSession()
	}

	return &Session{
		UserID:    user.ID,
		Role:      user.Role,
		Epoch:     user.SessionEpoch,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Me returns the public profile of the given account.
func (s *authService) Me(ctx context.Context, userID string) (*PublicUser, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("User not found")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	pub := user.Public()
	return &pub, nil
}

// PurgeUnverified removes accounts that never finished verification.
func (s *authService) PurgeUnverified(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock().Add(-olderThan)
	n, err := s.repo.DeleteUnverifiedBefore(ctx, cutoff)
	if err != nil {
		return 0, apperror.NewInternal(err)
	}
	return n, nil
}
