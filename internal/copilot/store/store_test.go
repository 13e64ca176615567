package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/parallels/devops-copilot/internal/copilot/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "copilot-test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.db")
	for i := 0; i < 2; i++ {
		s, err := store.New(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		var n int
		if err := s.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if n != 2 {
			t.Errorf("open %d: got %d applied migrations, want 2", i, n)
		}
		s.Close()
	}
}

func TestAudit_WriteAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []store.AuditEntry{
		{TraceID: "t_1", Actor: "@alice:test", RoomID: "!ops:test", Category: "SET", Action: "stop", Target: "demo1", Result: "success", Message: "The virtual machine demo1 was stopped."},
		{TraceID: "t_1", Actor: "@alice:test", Category: "SET", Action: "stop", Target: "demo2", Result: "failed", Message: "The virtual machine demo2 is paused, please resume it before stopping."},
		{TraceID: "t_2", Actor: "cli", Category: "extract", Result: "error", ErrorMessage: "intent: malformed payload"},
	}
	for _, e := range entries {
		if err := s.WriteAudit(ctx, e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}

	recent, err := s.GetAuditLog(ctx, 2)
	if err != nil {
		t.Fatalf("GetAuditLog: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if recent[0].TraceID != "t_2" || recent[0].ErrorMessage != "intent: malformed payload" {
		t.Errorf("newest entry: got %+v", recent[0])
	}

	turn, err := s.GetAuditByTrace(ctx, "t_1")
	if err != nil {
		t.Fatalf("GetAuditByTrace: %v", err)
	}
	if len(turn) != 2 {
		t.Fatalf("got %d entries for t_1, want 2", len(turn))
	}
	if turn[0].Target != "demo1" || turn[0].RoomID != "!ops:test" {
		t.Errorf("first entry: got %+v", turn[0])
	}
	if turn[1].RoomID != "" || turn[1].Result != "failed" {
		t.Errorf("second entry: got %+v", turn[1])
	}
}

func TestConversationLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msgs := []store.ConversationMessage{
		{ConversationID: "c1", TraceID: "t_1", RoomID: "!ops:test", Sender: "@alice:test", Role: "user", Content: "stop demo1"},
		{ConversationID: "c1", TraceID: "t_1", RoomID: "!ops:test", Sender: "@alice:test", Role: "assistant", Content: "The virtual machine demo1 was stopped."},
		{ConversationID: "c2", TraceID: "t_2", RoomID: "!dev:test", Sender: "@bob:test", Role: "user", Content: "how many are running?"},
		{ConversationID: "c1", TraceID: "t_3", RoomID: "!ops:test", Sender: "@alice:test", Role: "user", Content: "start it again"},
	}
	for _, m := range msgs {
		if err := s.AppendConversation(ctx, m); err != nil {
			t.Fatalf("AppendConversation: %v", err)
		}
	}

	convo, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	var got []string
	for _, m := range convo {
		got = append(got, m.Role+": "+m.Content)
	}
	want := []string{"user: stop demo1", "assistant: The virtual machine demo1 was stopped.", "user: start it again"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetConversation mismatch (-want +got):\n%s", diff)
	}

	room, err := s.GetRoomConversationLog(ctx, "!ops:test", 2)
	if err != nil {
		t.Fatalf("GetRoomConversationLog: %v", err)
	}
	if len(room) != 2 || room[0].Role != "assistant" || room[1].Content != "start it again" {
		t.Errorf("room log: got %+v", room)
	}
}
