// Package memory keeps short-term conversation history per room and sender so
// follow-up requests ("start it too") can be interpreted in context.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parallels/devops-copilot/internal/copilot/llm"
)

// TrackerConfig holds configuration for the Tracker.
type TrackerConfig struct {
	// Cooldown is the inactivity after which the next message starts a new
	// conversation. Default: 15 minutes.
	Cooldown time.Duration

	// MaxMessages bounds the buffer; the oldest messages are dropped first.
	// Default: 50.
	MaxMessages int

	// MaxTokens is a rough token budget for the buffer. Default: 8000.
	MaxTokens int
}

// DefaultTrackerConfig returns a TrackerConfig with the documented defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Cooldown:    15 * time.Minute,
		MaxMessages: 50,
		MaxTokens:   8000,
	}
}

// Conversation is the running exchange between the copilot and one sender in
// one room.
type Conversation struct {
	ID        string
	RoomID    string
	SenderID  string
	Messages  []llm.Message
	StartedAt time.Time
	LastMsgAt time.Time
}

// Tracker manages active conversations. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	config TrackerConfig
	now    func() time.Time
	convos map[string]*Conversation // key: roomID + ":" + senderID
}

// NewTracker creates a Tracker; zero fields of cfg take their defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	def := DefaultTrackerConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Tracker{
		config: cfg,
		now:    time.Now,
		convos: make(map[string]*Conversation),
	}
}

// Record appends a message to the conversation of roomID+senderID, starting
// a new one when the previous conversation has gone stale. It returns the
// conversation ID.
func (t *Tracker) Record(roomID, senderID string, msg llm.Message) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := sessionKey(roomID, senderID)
	c := t.convos[key]
	if c == nil || now.Sub(c.LastMsgAt) > t.config.Cooldown {
		c = &Conversation{
			ID:        uuid.New().String(),
			RoomID:    roomID,
			SenderID:  senderID,
			StartedAt: now,
		}
		t.convos[key] = c
	}

	c.Messages = append(c.Messages, msg)
	c.LastMsgAt = now
	t.enforceBufferLimits(c)
	return c.ID
}

// History returns a copy of the active conversation's messages, oldest first.
// A stale or missing conversation yields nil.
func (t *Tracker) History(roomID, senderID string) []llm.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.convos[sessionKey(roomID, senderID)]
	if c == nil || t.now().Sub(c.LastMsgAt) > t.config.Cooldown {
		return nil
	}
	out := make([]llm.Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// Forget drops the conversation of roomID+senderID.
func (t *Tracker) Forget(roomID, senderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.convos, sessionKey(roomID, senderID))
}

// Expire removes conversations idle for longer than the cooldown and reports
// how many were removed.
func (t *Tracker) Expire() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	n := 0
	for key, c := range t.convos {
		if now.Sub(c.LastMsgAt) > t.config.Cooldown {
			delete(t.convos, key)
			n++
		}
	}
	return n
}

// Active reports the number of live conversations.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.convos)
}

// enforceBufferLimits trims the oldest messages. Must be called with mu held.
func (t *Tracker) enforceBufferLimits(c *Conversation) {
	if len(c.Messages) > t.config.MaxMessages {
		c.Messages = c.Messages[len(c.Messages)-t.config.MaxMessages:]
	}
	for len(c.Messages) > 1 && estimateTokens(c.Messages) > t.config.MaxTokens {
		c.Messages = c.Messages[1:]
	}
}

// estimateTokens assumes ~4 characters per token plus a small per-message
// overhead for role framing.
func estimateTokens(msgs []llm.Message) int {
	const charsPerToken = 4
	const perMessageOverhead = 4

	total := 0
	for _, m := range msgs {
		total += len(m.Content)/charsPerToken + perMessageOverhead
	}
	return total
}

func sessionKey(roomID, senderID string) string {
	return roomID + ":" + senderID
}
