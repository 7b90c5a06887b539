package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SecurityEventRepository defines the data access contract for security
// events.
type SecurityEventRepository interface {
	// Log inserts a new event and sets its ID.
	Log(ctx context.Context, event *SecurityEvent) error

	// List returns events most recent first, with the total matching count.
	// An empty eventType matches every type.
	List(ctx context.Context, eventType string, limit, offset int) ([]SecurityEvent, int, error)
}

// securityEventRepository implements SecurityEventRepository with MariaDB.
type securityEventRepository struct {
	db *sql.DB
}

// NewSecurityEventRepository creates a new repository backed by the given DB.
func NewSecurityEventRepository(db *sql.DB) SecurityEventRepository {
	return &securityEventRepository{db: db}
}

// Log inserts a new security event. Details are serialized to JSON.
func (r *securityEventRepository) Log(ctx context.Context, event *SecurityEvent) error {
	query := `INSERT INTO security_events (event_type, user_id, actor_id, ip_address, user_agent, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if len(event.Details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling security event details: %w", err)
		}
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// NULL rather than '' so the user foreign keys stay satisfiable.
	var userID, actorID any
	if event.UserID != "" {
		userID = event.UserID
	}
	if event.ActorID != "" {
		actorID = event.ActorID
	}

	result, err := r.db.ExecContext(ctx, query,
		event.EventType, userID, actorID,
		event.IPAddress, event.UserAgent,
		detailsJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}

	id, _ := result.LastInsertId()
	event.ID = id
	return nil
}

// List returns paginated security events.
func (r *securityEventRepository) List(ctx context.Context, eventType string, limit, offset int) ([]SecurityEvent, int, error) {
	where := ""
	var args []any
	if eventType != "" {
		where = ` WHERE event_type = ?`
		args = append(args, eventType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting security events: %w", err)
	}

	query := `SELECT id, event_type, COALESCE(user_id, ''), COALESCE(actor_id, ''),
	                 ip_address, COALESCE(user_agent, ''), details, created_at
	          FROM security_events` + where + `
	          ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing security events: %w", err)
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var e SecurityEvent
		var detailsJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.UserID, &e.ActorID,
			&e.IPAddress, &e.UserAgent, &detailsJSON, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning security event: %w", err)
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			if jsonErr := json.Unmarshal([]byte(detailsJSON.String), &e.Details); jsonErr != nil {
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating security events: %w", err)
	}

	return events, total, nil
}

// memorySecurityEventRepository keeps events in process memory. Used by
// tests.
type memorySecurityEventRepository struct {
	mu     sync.Mutex
	nextID int64
	events []SecurityEvent
}

// NewMemorySecurityEventRepository creates an empty in-memory repository.
func NewMemorySecurityEventRepository() SecurityEventRepository {
	return &memorySecurityEventRepository{}
}

func (r *memorySecurityEventRepository) Log(_ context.Context, event *SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.nextID++
	event.ID = r.nextID
	r.events = append(r.events, *event)
	return nil
}

func (r *memorySecurityEventRepository) List(_ context.Context, eventType string, limit, offset int) ([]SecurityEvent, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []SecurityEvent
	for _, e := range r.events {
		if eventType == "" || e.EventType == eventType {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
