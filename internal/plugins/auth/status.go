package auth

import "time"

// StatusKind enumerates the derived account states.
type StatusKind string

const (
	StatusPending      StatusKind = "pending_verification"
	StatusActive       StatusKind = "active"
	StatusLocked       StatusKind = "locked"
	StatusResetPending StatusKind = "reset_pending"
)

// AccountStatus is the account's state computed from its fields. Until is
// set only for StatusLocked and carries the later of the two lockout
// deadlines.
type AccountStatus struct {
	Kind  StatusKind
	Until *time.Time
}

// StatusOf derives the account state at now. A lockout overlays any other
// state; an unverified account is pending; a verified account with an
// unexpired reset secret is reset-pending; otherwise it is active.
func StatusOf(u *User, now time.Time) AccountStatus {
	var until *time.Time
	for _, t := range []*time.Time{u.LoginLockedUntil, u.VerifyLockedUntil} {
		if LockedFor(t, now) > 0 && (until == nil || t.After(*until)) {
			until = t
		}
	}
	if until != nil {
		return AccountStatus{Kind: StatusLocked, Until: until}
	}

	if !u.IsEmailVerified {
		return AccountStatus{Kind: StatusPending}
	}
	if u.ResetHash != nil && u.ResetExpires != nil && u.ResetExpires.After(now) {
		return AccountStatus{Kind: StatusResetPending}
	}
	return AccountStatus{Kind: StatusActive}
}
