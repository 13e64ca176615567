// Package environment reads copilot process settings from environment
// variables.
//
// Every helper returns the parsed value or the supplied fallback; a value that
// is present but unparseable also yields the fallback. Required lookups return
// an error instead of exiting so the decision stays with cmd/.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Prefix is prepended by Key. Daemon and CLI share it so one exported
// environment configures both.
const Prefix = "COPILOT_"

// Key returns the prefixed variable name for a setting, e.g. Key("LLM_MODEL")
// returns "COPILOT_LLM_MODEL".
func Key(name string) string {
	return Prefix + name
}

// String returns the raw value and whether the variable is set at all.
func String(name string) (string, bool) {
	return os.LookupEnv(name)
}

// StringOr returns the value of name, or fallback when unset or empty.
func StringOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

// RequiredString returns the value of name or an error when it is unset or
// empty.
func RequiredString(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("environment: required variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses name with strconv.ParseBool.
func BoolOr(name string, fallback bool) bool {
	return parseOr(name, fallback, strconv.ParseBool)
}

// IntOr parses name as a base-10 integer.
func IntOr(name string, fallback int) int {
	return parseOr(name, fallback, strconv.Atoi)
}

// DurationOr parses name with time.ParseDuration ("30s", "5m").
func DurationOr(name string, fallback time.Duration) time.Duration {
	return parseOr(name, fallback, time.ParseDuration)
}

// StringSliceOr splits name on commas, trimming blanks. An empty result falls
// back as well.
func StringSliceOr(name string, fallback []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func parseOr[T any](name string, fallback T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	parsed, err := parse(v)
	if err != nil {
		return fallback
	}
	return parsed
}
