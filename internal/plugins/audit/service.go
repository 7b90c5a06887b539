package audit

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/carelinkhealth/portal/internal/apperror"
)

// perPage is the number of events returned per page.
const perPage = 50

// maxUserAgentLength matches the security_events.user_agent column.
const maxUserAgentLength = 500

// SecurityService records and lists security events.
type SecurityService interface {
	// LogEvent records a security event. Failures are logged here, so
	// callers may discard the error.
	LogEvent(ctx context.Context, eventType, userID, actorID, ip, userAgent string, details map[string]any) error

	// ListEvents returns one page of events, optionally filtered by type.
	ListEvents(ctx context.Context, eventType string, page int) (*EventPage, error)
}

// securityService implements SecurityService.
type securityService struct {
	repo SecurityEventRepository
}

// NewSecurityService creates a new security service.
func NewSecurityService(repo SecurityEventRepository) SecurityService {
	return &securityService{repo: repo}
}

// LogEvent validates and persists a security event.
func (s *securityService) LogEvent(ctx context.Context, eventType, userID, actorID, ip, userAgent string, details map[string]any) error {
	if eventType == "" {
		return apperror.NewBadRequest("event type is required")
	}

	userAgent = truncateUTF8(userAgent, maxUserAgentLength)

	event := &SecurityEvent{
		EventType: eventType,
		UserID:    userID,
		ActorID:   actorID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   details,
	}

	if err := s.repo.Log(ctx, event); err != nil {
		slog.Error("failed to log security event",
			slog.String("event_type", eventType),
			slog.String("ip", ip),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("logging security event: %w", err))
	}

	return nil
}

// ListEvents returns paginated security events. Unknown type filters are
// rejected so a typo does not look like an empty log.
func (s *securityService) ListEvents(ctx context.Context, eventType string, page int) (*EventPage, error) {
	if eventType != "" && !IsKnownEventType(eventType) {
		return nil, apperror.NewBadRequest("unknown event type")
	}
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * perPage
	events, total, err := s.repo.List(ctx, eventType, perPage, offset)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing security events: %w", err))
	}
	if events == nil {
		events = []SecurityEvent{}
	}

	return &EventPage{Events: events, Total: total, Page: page, PerPage: perPage}, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a character.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
