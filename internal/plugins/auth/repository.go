package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/carelinkhealth/portal/internal/apperror"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// mysqlDuplicateEntry is the MariaDB/MySQL error number for a unique key
// violation.
const mysqlDuplicateEntry = 1062

// UserRepository defines the data access contract for accounts.
// All SQL lives in the concrete implementation -- no SQL leaks out.
//
// Every mutation is a single-row, field-targeted update so concurrent
// requests against the same account never lose each other's writes.
type UserRepository interface {
	// Create inserts a new account. A duplicate email fails with a 409.
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByResetTokenHash finds the account holding this reset secret if it
	// has not expired at now.
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*User, error)

	// RecordFailure atomically increments a track's counter. Reaching the
	// policy threshold starts a lockout window and resets the counter.
	RecordFailure(ctx context.Context, id string, track Track, policy LockoutPolicy, now time.Time) error

	// ClearFailures resets a track's counter and lockout.
	ClearFailures(ctx context.Context, id string, track Track) error

	SetVerificationSecret(ctx context.Context, id, codeHash string, expires time.Time) error

	// MarkEmailVerified sets the verified flag and clears the verification
	// secret and counters.
	MarkEmailVerified(ctx context.Context, id string) error

	SetResetSecret(ctx context.Context, id, tokenHash string, expires time.Time) error

	// CompletePasswordReset replaces the password hash, bumps the session
	// epoch and clears the reset secret, but only if tokenHash is still the
	// account's unexpired reset secret. Returns false when it was not.
	CompletePasswordReset(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error)

	BumpSessionEpoch(ctx context.Context, id string) error

	// Admin operations.
	ListUsers(ctx context.Context, offset, limit int) ([]User, int, error)
	UpdateRole(ctx context.Context, id string, role rbac.Role) error

	// DeleteUnverifiedBefore purges accounts still unverified that were
	// created before cutoff. Returns the number removed.
	DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// userColumns is the SELECT list shared by every full-row lookup. Order
// must match scanUser.
const userColumns = `id, name, email, password_hash, role, is_email_verified,
	verification_hash, verification_expires, reset_hash, reset_expires,
	session_epoch, login_failed_attempts, login_locked_until,
	verify_failed_attempts, verify_locked_until, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsEmailVerified,
		&u.VerificationHash, &u.VerificationExpires, &u.ResetHash, &u.ResetExpires,
		&u.SessionEpoch, &u.LoginFailedAttempts, &u.LoginLockedUntil,
		&u.VerifyFailedAttempts, &u.VerifyLockedUntil, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new user row into the users table.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, name, email, password_hash, role, is_email_verified,
	                             verification_hash, verification_expires, session_epoch,
	                             created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsEmailVerified,
		user.VerificationHash,
		user.VerificationExpires,
		user.SessionEpoch,
		user.CreatedAt,
		user.CreatedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return apperror.NewConflict("Email already in use")
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}

	return user, nil
}

// FindByEmail retrieves a user by their normalized email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}

	return user, nil
}

// FindByResetTokenHash looks up the account by its indexed reset hash.
func (r *userRepository) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	          WHERE reset_hash = ? AND reset_expires > ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, tokenHash, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("reset token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by reset token: %w", err)
	}

	return user, nil
}

// trackColumns returns the counter and lockout column names for a track.
func trackColumns(track Track) (counter, until string, err error) {
	switch track {
	case TrackLogin:
		return "login_failed_attempts", "login_locked_until", nil
	case TrackVerification:
		return "verify_failed_attempts", "verify_locked_until", nil
	default:
		return "", "", fmt.Errorf("unknown lockout track %q", track)
	}
}

// RecordFailure increments the counter in one UPDATE. MariaDB evaluates
// single-table SET assignments left to right, so the lockout column is
// computed from the pre-increment counter before the counter is rewritten.
func (r *userRepository) RecordFailure(ctx context.Context, id string, track Track, policy LockoutPolicy, now time.Time) error {
	counter, until, err := trackColumns(track)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE users SET
	          %[2]s = IF(%[1]s + 1 >= ?, ?, %[2]s),
	          %[1]s = IF(%[1]s + 1 >= ?, 0, %[1]s + 1)
	          WHERE id = ?`, counter, until)

	_, err = r.db.ExecContext(ctx, query,
		policy.Threshold, now.Add(policy.Duration),
		policy.Threshold,
		id,
	)
	if err != nil {
		return fmt.Errorf("recording %s failure: %w", track, err)
	}
	return nil
}

// ClearFailures resets a track.
func (r *userRepository) ClearFailures(ctx context.Context, id string, track Track) error {
	counter, until, err := trackColumns(track)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE users SET %s = 0, %s = NULL WHERE id = ?`, counter, until)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clearing %s failures: %w", track, err)
	}
	return nil
}

// SetVerificationSecret replaces the pending verification code hash.
func (r *userRepository) SetVerificationSecret(ctx context.Context, id, codeHash string, expires time.Time) error {
	query := `UPDATE users SET verification_hash = ?, verification_expires = ? WHERE id = ?`
	return r.execOne(ctx, "setting verification secret", query, codeHash, expires, id)
}

// MarkEmailVerified completes verification.
func (r *userRepository) MarkEmailVerified(ctx context.Context, id string) error {
	query := `UPDATE users SET is_email_verified = TRUE,
	                 verification_hash = NULL, verification_expires = NULL,
	                 verify_failed_attempts = 0, verify_locked_until = NULL
	          WHERE id = ?`
	return r.execOne(ctx, "marking email verified", query, id)
}

// SetResetSecret replaces the pending password reset token hash.
func (r *userRepository) SetResetSecret(ctx context.Context, id, tokenHash string, expires time.Time) error {
	query := `UPDATE users SET reset_hash = ?, reset_expires = ? WHERE id = ?`
	return r.execOne(ctx, "setting reset secret", query, tokenHash, expires, id)
}

// CompletePasswordReset is a compare-and-set on the reset hash, so a token
// can be redeemed at most once even under concurrent submissions.
func (r *userRepository) CompletePasswordReset(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error) {
	query := `UPDATE users SET password_hash = ?, session_epoch = session_epoch + 1,
	                 reset_hash = NULL, reset_expires = NULL
	          WHERE id = ? AND reset_hash = ? AND reset_expires > ?`

	result, err := r.db.ExecContext(ctx, query, passwordHash, id, tokenHash, now)
	if err != nil {
		return false, fmt.Errorf("completing password reset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("completing password reset: %w", err)
	}
	return n == 1, nil
}

// BumpSessionEpoch revokes every outstanding session credential.
func (r *userRepository) BumpSessionEpoch(ctx context.Context, id string) error {
	query := `UPDATE users SET session_epoch = session_epoch + 1 WHERE id = ?`
	return r.execOne(ctx, "bumping session epoch", query, id)
}

// --- Admin Operations ---

// ListUsers returns a paginated list of all users ordered by creation date.
// Also returns the total count for pagination.
func (r *userRepository) ListUsers(ctx context.Context, offset, limit int) ([]User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	// Deliberately exclude credential columns. Admin list views don't need
	// them.
	query := `SELECT id, name, email, role, is_email_verified, created_at
	          FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.IsEmailVerified, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}

	return users, total, rows.Err()
}

// UpdateRole sets a user's role.
func (r *userRepository) UpdateRole(ctx context.Context, id string, role rbac.Role) error {
	query := `UPDATE users SET role = ? WHERE id = ?`
	return r.execOne(ctx, "updating role", query, role, id)
}

// DeleteUnverifiedBefore removes stale unverified accounts.
func (r *userRepository) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM users WHERE is_email_verified = FALSE AND created_at < ?`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting unverified users: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting unverified users: %w", err)
	}
	return n, nil
}

// execOne runs a single-row UPDATE whose last argument is the user id and
// maps a missing row to NotFound. MariaDB reports changed rows, not matched
// rows, so a zero count is confirmed with an existence check.
func (r *userRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: reading rows affected: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	id := args[len(args)-1]
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return apperror.NewNotFound("user not found")
	}
	return nil
}
