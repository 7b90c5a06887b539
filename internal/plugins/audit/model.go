// Package audit records site-wide security events: logins, lockouts,
// verifications, password resets and role changes. Events are append-only
// and readable by administrators.
//
// The plugin only observes. Nothing in the credential flows depends on an
// event being written.
package audit

import "time"

// --- Event Type Constants ---
// Each event type follows the "resource.verb" pattern for consistent
// filtering.

const (
	EventLoginSuccess           = "login.success"
	EventLoginFailed            = "login.failed"
	EventLoginLocked            = "login.locked"
	EventLogout                 = "logout"
	EventUserRegistered         = "user.registered"
	EventEmailVerified          = "email.verified"
	EventPasswordResetRequested = "password.reset_requested"
	EventPasswordResetCompleted = "password.reset_completed"
	EventRoleChanged            = "role.changed"
)

// eventTypes lists every known type, in display order.
var eventTypes = []string{
	EventLoginSuccess,
	EventLoginFailed,
	EventLoginLocked,
	EventLogout,
	EventUserRegistered,
	EventEmailVerified,
	EventPasswordResetRequested,
	EventPasswordResetCompleted,
	EventRoleChanged,
}

// EventTypes returns the known event types.
func EventTypes() []string {
	out := make([]string, len(eventTypes))
	copy(out, eventTypes)
	return out
}

// IsKnownEventType reports whether t is one of the event type constants.
func IsKnownEventType(t string) bool {
	for _, et := range eventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// SecurityEvent is one recorded event. UserID is the account the event is
// about; ActorID is the administrator who caused it, when different.
type SecurityEvent struct {
	ID        int64          `json:"id"`
	EventType string         `json:"eventType"`
	UserID    string         `json:"userId,omitempty"`
	ActorID   string         `json:"actorId,omitempty"`
	IPAddress string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// EventPage is one page of the event listing.
type EventPage struct {
	Events  []SecurityEvent `json:"events"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"perPage"`
}
