package store

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// ConversationMessage is one logged user message or copilot reply.
type ConversationMessage struct {
	ID             int64
	Timestamp      time.Time
	ConversationID string
	TraceID        string
	RoomID         string
	Sender         string
	Role           string
	Content        string
}

// AppendConversation logs m. Timestamp defaults to now.
func (s *Store) AppendConversation(ctx context.Context, m ConversationMessage) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_log (ts, conversation_id, trace_id, room_id, sender, role, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ts, m.ConversationID, m.TraceID, m.RoomID, m.Sender, m.Role, m.Content)
	if err != nil {
		return fmt.Errorf("store: append conversation: %w", err)
	}
	return nil
}

// GetConversation returns the messages of one conversation, oldest first.
func (s *Store) GetConversation(ctx context.Context, conversationID string) ([]ConversationMessage, error) {
	return s.queryConversation(ctx, `
		SELECT id, ts, conversation_id, trace_id, room_id, sender, role, content
		FROM conversation_log
		WHERE conversation_id = ?
		ORDER BY id ASC
	`, conversationID)
}

// GetRoomConversationLog returns the last limit messages logged in roomID,
// oldest first.
func (s *Store) GetRoomConversationLog(ctx context.Context, roomID string, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := s.queryConversation(ctx, `
		SELECT id, ts, conversation_id, trace_id, room_id, sender, role, content
		FROM conversation_log
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *Store) queryConversation(ctx context.Context, query string, args ...any) ([]ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query conversation log: %w", err)
	}
	defer rows.Close()

	var msgs []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.ConversationID, &m.TraceID, &m.RoomID,
			&m.Sender, &m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("store: scan conversation message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate conversation log: %w", err)
	}
	return msgs, nil
}
