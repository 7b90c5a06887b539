package auth

import (
	"math"
	"time"
)

// Track names one of the two independent failure counters on an account.
type Track string

const (
	TrackLogin        Track = "login"
	TrackVerification Track = "verification"
)

// LockoutPolicy is how many consecutive failures a track tolerates and how
// long it stays locked afterwards.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy is 5 failures, then 10 minutes.
var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Duration: 10 * time.Minute}

// lockedUntil returns the lockout deadline for the given track.
func (u *User) lockedUntil(track Track) *time.Time {
	if track == TrackVerification {
		return u.VerifyLockedUntil
	}
	return u.LoginLockedUntil
}

// failedAttempts returns the current counter for the given track.
func (u *User) failedAttempts(track Track) int {
	if track == TrackVerification {
		return u.VerifyFailedAttempts
	}
	return u.LoginFailedAttempts
}

// LockedFor returns how much of a lockout window remains at now, or zero if
// the track is open.
func LockedFor(until *time.Time, now time.Time) time.Duration {
	if until == nil || !until.After(now) {
		return 0
	}
	return until.Sub(now)
}

// RemainingMinutes rounds a remaining lockout up to whole minutes.
func RemainingMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d.Milliseconds()) / 60000))
}

// applyFailure is the in-memory form of the store's atomic failure update:
// increment, and at the threshold start a lockout window and reset the
// counter.
func applyFailure(u *User, track Track, policy LockoutPolicy, now time.Time) {
	count := u.failedAttempts(track) + 1
	var until *time.Time
	if count >= policy.Threshold {
		t := now.Add(policy.Duration)
		until = &t
		count = 0
	}

	switch track {
	case TrackVerification:
		u.VerifyFailedAttempts = count
		if until != nil {
			u.VerifyLockedUntil = until
		}
	default:
		u.LoginFailedAttempts = count
		if until != nil {
			u.LoginLockedUntil = until
		}
	}
}

// applyClear resets a track's counter and lockout.
func applyClear(u *User, track Track) {
	switch track {
	case TrackVerification:
		u.VerifyFailedAttempts = 0
		u.VerifyLockedUntil = nil
	default:
		u.LoginFailedAttempts = 0
		u.LoginLockedUntil = nil
	}
}
