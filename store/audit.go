package store

import (
	"context"
	"time"
)

// event is an audit record of a domain-level action.
type event struct {
	typ      string
	domain   string
	selector string
	detail   string
	failed   bool
}

// logEvent records an audit event. Non-blocking: errors are logged but never
// propagate, so a failing audit write cannot block a mark operation.
func (s *Store) logEvent(ctx context.Context, e event) {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO events (event_id, event_type, domain, selector, detail, success, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		s.newID(), e.typ, e.domain, e.selector, e.detail, boolInt(!e.failed), time.Now().Unix())
	if err != nil {
		s.logger.Error("store: audit event log failed", "error", err, "event_type", e.typ)
	}
}

// AuditEvent is a recorded audit row.
type AuditEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Domain    string `json:"domain,omitempty"`
	Selector  string `json:"selector,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Success   bool   `json:"success"`
	CreatedAt int64  `json:"createdAt"`
}

// RecentEvents returns the latest audit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT event_id, event_type, domain, selector, detail, success, created_at
		FROM events ORDER BY created_at DESC, event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var success int
		if err := rows.Scan(&e.ID, &e.Type, &e.Domain, &e.Selector, &e.Detail, &success, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Success = success != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
