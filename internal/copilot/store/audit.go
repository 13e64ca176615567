package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	Actor        string
	RoomID       string
	Category     string
	Action       string
	Target       string
	Result       string
	Message      string
	ErrorMessage string
}

// WriteAudit appends e. Timestamp defaults to now.
func (s *Store) WriteAudit(ctx context.Context, e AuditEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor, room_id, category, action, target, result, message, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ts, e.TraceID, e.Actor, nullable(e.RoomID), e.Category, nullable(e.Action), nullable(e.Target),
		e.Result, nullable(e.Message), nullable(e.ErrorMessage))
	if err != nil {
		return fmt.Errorf("store: write audit: %w", err)
	}
	return nil
}

// GetAuditLog returns the most recent entries, newest first.
func (s *Store) GetAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, actor, room_id, category, action, target, result, message, error_message
		FROM audit_log
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
}

// GetAuditByTrace returns every entry of one turn in insertion order.
func (s *Store) GetAuditByTrace(ctx context.Context, traceID string) ([]AuditEntry, error) {
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, actor, room_id, category, action, target, result, message, error_message
		FROM audit_log
		WHERE trace_id = ?
		ORDER BY id ASC
	`, traceID)
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e                                      AuditEntry
			room, action, target, msg, errorString sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Actor, &room, &e.Category,
			&action, &target, &e.Result, &msg, &errorString); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		e.RoomID, e.Action, e.Target = room.String, action.String, target.String
		e.Message, e.ErrorMessage = msg.String, errorString.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit log: %w", err)
	}
	return entries, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
