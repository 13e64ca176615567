package environment_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/parallels/devops-copilot/common/environment"
)

func TestKey(t *testing.T) {
	if got := environment.Key("LLM_MODEL"); got != "COPILOT_LLM_MODEL" {
		t.Errorf("Key: got %q, want %q", got, "COPILOT_LLM_MODEL")
	}
}

func TestStringOr(t *testing.T) {
	t.Setenv("COPILOT_TEST_STRING", "  hello ")
	if got := environment.StringOr("COPILOT_TEST_STRING", "default"); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	if got := environment.StringOr("COPILOT_TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("got %q, want %q", got, "default")
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("COPILOT_TEST_REQUIRED", "value")
	v, err := environment.RequiredString("COPILOT_TEST_REQUIRED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "value" {
		t.Errorf("got %q, want %q", v, "value")
	}
	if _, err := environment.RequiredString("COPILOT_TEST_REQUIRED_MISSING"); err == nil {
		t.Error("expected error for missing variable")
	}
}

func TestParsedHelpers(t *testing.T) {
	t.Setenv("COPILOT_TEST_BOOL", "true")
	t.Setenv("COPILOT_TEST_INT", "42")
	t.Setenv("COPILOT_TEST_INT_BAD", "forty-two")
	t.Setenv("COPILOT_TEST_DURATION", "90s")

	if !environment.BoolOr("COPILOT_TEST_BOOL", false) {
		t.Error("BoolOr: expected true")
	}
	if got := environment.IntOr("COPILOT_TEST_INT", 0); got != 42 {
		t.Errorf("IntOr: got %d, want 42", got)
	}
	if got := environment.IntOr("COPILOT_TEST_INT_BAD", 7); got != 7 {
		t.Errorf("IntOr bad value: got %d, want fallback 7", got)
	}
	if got := environment.DurationOr("COPILOT_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("DurationOr: got %v, want 90s", got)
	}
	if got := environment.DurationOr("COPILOT_TEST_DURATION_MISSING", time.Second); got != time.Second {
		t.Errorf("DurationOr missing: got %v, want 1s", got)
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("COPILOT_TEST_SLICE", " a, b ,,c ")
	got := environment.StringSliceOr("COPILOT_TEST_SLICE", nil)
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("StringSliceOr mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("COPILOT_TEST_SLICE_EMPTY", " , ")
	fallback := []string{"x"}
	if diff := cmp.Diff(fallback, environment.StringSliceOr("COPILOT_TEST_SLICE_EMPTY", fallback)); diff != "" {
		t.Errorf("StringSliceOr blank list mismatch (-want +got):\n%s", diff)
	}
}
