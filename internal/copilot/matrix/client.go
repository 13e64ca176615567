// Package matrix connects the copilot to Matrix rooms.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/parallels/devops-copilot/common/redact"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// AdminRooms are the rooms the copilot listens in.
	AdminRooms []string
	// AllowedSenders restricts who may issue requests. Empty means anyone in
	// an admin room.
	AllowedSenders []string
	// DB persists the sync token across restarts. When nil an in-memory
	// store is used and room history replays on every start.
	DB *sql.DB
}

// Message is an accepted text message.
type Message struct {
	RoomID  string
	Sender  string
	EventID string
	Body    string
}

// MessageHandler processes accepted messages.
type MessageHandler func(ctx context.Context, msg Message)

// Client wraps the mautrix client.
type Client struct {
	client     *mautrix.Client
	config     *Config
	stopCh     chan struct{}
	msgHandler MessageHandler
}

// New creates a client; it does not contact the homeserver.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}

	c := &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
	}

	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("matrix: using persistent sync store")
	} else {
		slog.Warn("matrix: no DB configured, using in-memory sync store (history will replay on restart)")
	}
	slog.Debug("matrix: client configured",
		"homeserver", config.Homeserver,
		"user", config.UserID,
		"token", redact.String(config.AccessToken, config.AccessToken))

	return c, nil
}

// Start joins the admin rooms and begins syncing in the background. handler
// is called for every accepted message on the sync goroutine.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.msgHandler = handler

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for _, roomID := range c.config.AdminRooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join admin room %s: %w", roomID, err)
		}
	}

	go c.syncLoop(ctx)
	return nil
}

// syncLoop keeps /sync running, reconnecting with exponential back-off.
func (c *Client) syncLoop(ctx context.Context) {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		started := time.Now()
		err := c.client.SyncWithContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}

		// A sync that ran for a while before failing was healthy.
		if time.Since(started) > backoffMax {
			backoff = backoffMin
		}
		slog.Error("matrix: sync stopped, reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop stops syncing. It must be called at most once.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// SendMessage sends a text message to a room.
func (c *Client) SendMessage(ctx context.Context, roomID, message string) error {
	if _, err := c.client.SendText(ctx, id.RoomID(roomID), message); err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	return nil
}

// ReplyTo sends message as a reply to eventID.
func (c *Client) ReplyTo(ctx context.Context, roomID, eventID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    message,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(eventID)},
		},
	}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send reply: %w", err)
	}
	return nil
}

// SendNotice sends a notice, used for progress notes.
func (c *Client) SendNotice(ctx context.Context, roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}

// SetTyping sets or clears the typing indicator.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	if _, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout); err != nil {
		return fmt.Errorf("matrix: set typing: %w", err)
	}
	return nil
}

// IsAdminRoom reports whether roomID is one of the configured admin rooms.
func (c *Client) IsAdminRoom(roomID string) bool {
	return slices.Contains(c.config.AdminRooms, roomID)
}

// IsAllowedSender reports whether sender may issue requests.
func (c *Client) IsAllowedSender(sender string) bool {
	return len(c.config.AllowedSenders) == 0 || slices.Contains(c.config.AllowedSenders, sender)
}

// accept filters an incoming event down to a Message.
func (c *Client) accept(evt *event.Event) (Message, bool) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return Message{}, false
	}
	if !c.IsAdminRoom(evt.RoomID.String()) {
		return Message{}, false
	}
	if !c.IsAllowedSender(evt.Sender.String()) {
		slog.Warn("matrix: ignoring message from sender not on the allowlist", "sender", evt.Sender, "room", evt.RoomID)
		return Message{}, false
	}
	body := strings.TrimSpace(content.Body)
	if body == "" {
		return Message{}, false
	}
	return Message{
		RoomID:  evt.RoomID.String(),
		Sender:  evt.Sender.String(),
		EventID: evt.ID.String(),
		Body:    body,
	}, true
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	msg, ok := c.accept(evt)
	if !ok || c.msgHandler == nil {
		return
	}
	c.msgHandler(ctx, msg)
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	if _, err := c.client.JoinRoomByID(ctx, roomID); err != nil {
		// Homeservers answer M_FORBIDDEN when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: join room forbidden, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

// UserID returns the client's own user ID.
func (c *Client) UserID() string {
	return c.config.UserID
}
