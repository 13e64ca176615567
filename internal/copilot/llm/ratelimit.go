package llm

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the number of chat turns a sender may start per
	// window when no limit is configured.
	DefaultRateLimit = 20

	defaultRateLimitWindow = time.Minute
)

// RateLimiter is a per-sender sliding-window limiter for chat turns. Each
// turn costs between one and three completions, so limiting turns bounds
// spend. Safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	calls  map[string][]time.Time // sender → turn timestamps inside the window
}

// NewRateLimiter allows limit turns per sender within window. Non-positive
// values select DefaultRateLimit and one minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		calls:  make(map[string][]time.Time),
	}
}

// Allow records a turn for sender and reports whether it is within quota.
// Rejected turns are not recorded.
func (r *RateLimiter) Allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.prune(sender, now)
	if len(valid) >= r.limit {
		return false
	}
	r.calls[sender] = append(valid, now)
	return true
}

// Remaining returns how many more turns sender may start in the current
// window.
func (r *RateLimiter) Remaining(sender string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return max(r.limit-len(r.prune(sender, r.now())), 0)
}

// prune drops timestamps older than the window. Must be called with mu held.
func (r *RateLimiter) prune(sender string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	existing := r.calls[sender]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(r.calls, sender)
		return nil
	}
	r.calls[sender] = valid
	return valid
}
