package config_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/parallels/devops-copilot/internal/copilot/config"
	appstore "github.com/parallels/devops-copilot/internal/copilot/store"
)

func newTestStore(t *testing.T) config.Store {
	t.Helper()
	s, err := appstore.New(filepath.Join(t.TempDir(), "copilot-config-test.db"))
	if err != nil {
		t.Fatalf("appstore.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return config.New(s)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing.key")
	if !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestSetGetOverwriteDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, config.KeyModel, "gpt-4o"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, config.KeyModel, "gpt-4o-mini"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := s.Get(ctx, config.KeyModel)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "gpt-4o-mini" {
		t.Errorf("got %q, want %q", got, "gpt-4o-mini")
	}

	if err := s.Delete(ctx, config.KeyModel); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, config.KeyModel); err != nil {
		t.Fatalf("Delete should be idempotent: %v", err)
	}
	if _, err := s.Get(ctx, config.KeyModel); !errors.Is(err, config.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if all == nil || len(all) != 0 {
		t.Fatalf("expected empty non-nil map, got %v", all)
	}

	s.Set(ctx, config.KeyEndpoint, "http://localhost:11434/v1")
	s.Set(ctx, config.KeyHistoryExchanges, "5")
	all, _ = s.List(ctx)
	if len(all) != 2 || all[config.KeyHistoryExchanges] != "5" {
		t.Errorf("List: got %v", all)
	}
}

func TestTypedHelpers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if got := config.StringOr(ctx, s, config.KeyModel, "default"); got != "default" {
		t.Errorf("StringOr unset: got %q", got)
	}
	if got := config.StringOr(ctx, nil, config.KeyModel, "default"); got != "default" {
		t.Errorf("StringOr nil store: got %q", got)
	}

	s.Set(ctx, config.KeyHistoryExchanges, "4")
	if got := config.IntOr(ctx, s, config.KeyHistoryExchanges, 3); got != 4 {
		t.Errorf("IntOr: got %d, want 4", got)
	}
	s.Set(ctx, config.KeyHistoryExchanges, "lots")
	if got := config.IntOr(ctx, s, config.KeyHistoryExchanges, 3); got != 3 {
		t.Errorf("IntOr invalid: got %d, want 3", got)
	}
}
