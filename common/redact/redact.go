// Package redact strips credentials from strings before they reach a log line,
// an audit row or a chat room.
//
// The copilot handles two kinds of secrets: the completion endpoint API key
// and the Matrix access token. Catalog provider connection strings may also
// embed user:password pairs. Redaction is best-effort and string based.
package redact

import (
	"net/url"
	"strings"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s. Values
// shorter than 4 characters are ignored.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Connection masks the password in a provider connection string such as
// "host=user:pass@catalog.example.com". Strings that do not carry userinfo
// are returned unchanged.
func Connection(conn string) string {
	prefix, rest := "", conn
	if i := strings.Index(conn, "="); i >= 0 && !strings.Contains(conn[:i], "/") {
		prefix, rest = conn[:i+1], conn[i+1:]
	}

	if strings.Contains(rest, "://") {
		if u, err := url.Parse(rest); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), placeholder)
				return prefix + strings.Replace(u.String(), url.QueryEscape(placeholder), placeholder, 1)
			}
		}
		return conn
	}

	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return conn
	}
	user, _, found := strings.Cut(rest[:at], ":")
	if !found {
		return conn
	}
	return prefix + user + ":" + placeholder + rest[at:]
}

// Map returns a shallow copy of m where string values under secret-looking
// keys are replaced.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if str, ok := v.(string); ok && str != "" && isSensitiveKey(k) {
			out[k] = placeholder
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "key", "credential", "auth"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
