package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pavelanni/evalhub/internal/model"
)

// AppendAssignmentEvent records a proctoring event.
func (s *Store) AppendAssignmentEvent(ctx context.Context, e model.AssignmentEvent) error {
	var details *string
	if len(e.Details) > 0 {
		d := string(e.Details)
		details = &d
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignment_events (id, assignment_id, event_type, severity, details, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.AssignmentID, e.EventType, e.Severity, details, e.Timestamp)
	return err
}

// ListAssignmentEvents returns an assignment's events in time order.
func (s *Store) ListAssignmentEvents(ctx context.Context, assignmentID string) ([]model.AssignmentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assignment_id, event_type, severity, details, occurred_at
		 FROM assignment_events WHERE assignment_id = $1
		 ORDER BY occurred_at, id`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.AssignmentEvent
	for rows.Next() {
		var (
			e       model.AssignmentEvent
			details sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AssignmentID, &e.EventType, &e.Severity, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		if details.Valid {
			e.Details = []byte(details.String)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// LogEntry is one row of the notification log.
type LogEntry struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppendEventLog appends a notification to the event log.
func (s *Store) AppendEventLog(ctx context.Context, typ, key string, data []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1, $2, $3, $4)`,
		typ, key, string(data), at)
	return err
}

// EventLogSince returns log entries with a sequence number greater than
// after, oldest first.
func (s *Store) EventLogSince(ctx context.Context, after int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, typ, key, data, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
