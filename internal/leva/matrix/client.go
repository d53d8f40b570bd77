// Package matrix connects Leva to a Matrix homeserver.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms restricts the bot to these room IDs. Empty means every room the
	// bot is in.
	Rooms []string
	// DB persists the sync token and DM rooms. When nil, an in-memory store
	// is used and room history replays on every restart.
	DB *sql.DB
}

// MessageHandler processes incoming text messages.
type MessageHandler func(ctx context.Context, evt *event.Event)

// JoinHandler is called when another user joins a room the bot is in.
type JoinHandler func(ctx context.Context, roomID id.RoomID, userID id.UserID)

// Client wraps the mautrix client.
type Client struct {
	client *mautrix.Client
	config *Config
	store  *DBSyncStore
	stopCh chan struct{}
	stop   sync.Once

	msgHandler  MessageHandler
	joinHandler JoinHandler

	dmMu    sync.Mutex
	dmRooms map[id.UserID]id.RoomID
}

// New creates a client. It does not contact the homeserver.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}

	c := &Client{
		client:  client,
		config:  config,
		stopCh:  make(chan struct{}),
		dmRooms: make(map[id.UserID]id.RoomID),
	}
	if config.DB != nil {
		c.store = newDBSyncStore(config.DB)
		client.Store = c.store
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}
	return c, nil
}

// Start registers the handlers, joins the configured rooms and syncs in the
// background until Stop.
func (c *Client) Start(ctx context.Context, onMessage MessageHandler, onJoin JoinHandler) error {
	c.msgHandler = onMessage
	c.joinHandler = onJoin

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMember)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join room %s: %w", roomID, err)
		}
	}

	go c.syncLoop()
	return nil
}

// syncLoop restarts Sync with exponential back-off after homeserver errors.
func (c *Client) syncLoop() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		started := time.Now()
		err := c.client.Sync()
		if err == nil {
			return // StopSync
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		if time.Since(started) > backoffMax {
			backoff = backoffMin
		}
		slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop stops syncing. It is safe to call more than once.
func (c *Client) Stop() {
	c.stop.Do(func() {
		close(c.stopCh)
		c.client.StopSync()
	})
}

// UserID returns the bot's user ID.
func (c *Client) UserID() id.UserID { return id.UserID(c.config.UserID) }

// SendText sends a plain text message and returns its event ID.
func (c *Client) SendText(ctx context.Context, roomID, text string) (string, error) {
	resp, err := c.client.SendText(ctx, id.RoomID(roomID), text)
	if err != nil {
		return "", fmt.Errorf("matrix: send message: %w", err)
	}
	return resp.EventID.String(), nil
}

// SendNotice sends a notice (rendered less prominently by clients).
func (c *Client) SendNotice(ctx context.Context, roomID, text string) error {
	content := event.MessageEventContent{MsgType: event.MsgNotice, Body: text}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}

// Reply sends text as a reply to eventID.
func (c *Client) Reply(ctx context.Context, roomID, eventID, text string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(eventID)},
		},
	}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send reply: %w", err)
	}
	return nil
}

// React annotates eventID with key, usually an emoji.
func (c *Client) React(ctx context.Context, roomID, eventID, key string) error {
	if _, err := c.client.SendReaction(ctx, id.RoomID(roomID), id.EventID(eventID), key); err != nil {
		return fmt.Errorf("matrix: send reaction: %w", err)
	}
	return nil
}

// Redact removes eventID from the room.
func (c *Client) Redact(ctx context.Context, roomID, eventID, reason string) error {
	if _, err := c.client.RedactEvent(ctx, id.RoomID(roomID), id.EventID(eventID), mautrix.ReqRedact{Reason: reason}); err != nil {
		return fmt.Errorf("matrix: redact event: %w", err)
	}
	return nil
}

// SetTyping shows or clears the typing indicator.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	if _, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout); err != nil {
		return fmt.Errorf("matrix: set typing: %w", err)
	}
	return nil
}

// SendDM sends text in a direct-message room with userID, creating the room
// on first use.
func (c *Client) SendDM(ctx context.Context, userID, text string) error {
	roomID, err := c.dmRoom(ctx, id.UserID(userID))
	if err != nil {
		return err
	}
	_, err = c.SendText(ctx, roomID.String(), text)
	return err
}

func (c *Client) dmRoom(ctx context.Context, peer id.UserID) (id.RoomID, error) {
	c.dmMu.Lock()
	defer c.dmMu.Unlock()

	if roomID, ok := c.dmRooms[peer]; ok {
		return roomID, nil
	}
	if c.store != nil {
		roomID, err := c.store.loadDMRoom(ctx, c.UserID(), peer)
		if err != nil {
			return "", fmt.Errorf("matrix: load dm room: %w", err)
		}
		if roomID != "" {
			c.dmRooms[peer] = roomID
			return roomID, nil
		}
	}

	resp, err := c.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Invite:   []id.UserID{peer},
		IsDirect: true,
		Preset:   "trusted_private_chat",
	})
	if err != nil {
		return "", fmt.Errorf("matrix: create dm room: %w", err)
	}
	c.dmRooms[peer] = resp.RoomID
	if c.store != nil {
		if err := c.store.saveDMRoom(ctx, c.UserID(), peer, resp.RoomID); err != nil {
			slog.Warn("matrix: could not persist dm room", "peer", peer, "room", resp.RoomID, "err", err)
		}
	}
	slog.Info("matrix: created dm room", "peer", peer, "room", resp.RoomID)
	return resp.RoomID, nil
}

// IsAllowedRoom reports whether the bot acts on events from roomID.
func (c *Client) IsAllowedRoom(roomID string) bool {
	return len(c.config.Rooms) == 0 || slices.Contains(c.config.Rooms, roomID)
}

func (c *Client) isDMRoom(roomID id.RoomID) bool {
	c.dmMu.Lock()
	defer c.dmMu.Unlock()
	for _, r := range c.dmRooms {
		if r == roomID {
			return true
		}
	}
	return false
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.UserID() {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}
	if !c.IsAllowedRoom(evt.RoomID.String()) && !c.isDMRoom(evt.RoomID) {
		return
	}
	if c.msgHandler != nil {
		c.msgHandler(ctx, evt)
	}
}

// handleMember reports joins of other users and accepts invites to
// allowed rooms.
func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	if evt.StateKey == nil {
		return
	}
	target := id.UserID(*evt.StateKey)
	member := evt.Content.AsMember()

	if target == c.UserID() {
		if member.Membership == event.MembershipInvite && c.IsAllowedRoom(evt.RoomID.String()) {
			if err := c.joinRoom(ctx, evt.RoomID); err != nil {
				slog.Warn("matrix: could not accept invite", "room", evt.RoomID, "err", err)
			}
		}
		return
	}

	if member.Membership != event.MembershipJoin {
		return
	}
	if prev := evt.Unsigned.PrevContent; prev != nil && prev.AsMember().Membership == event.MembershipJoin {
		return // profile change, not a join
	}
	if !c.IsAllowedRoom(evt.RoomID.String()) || c.joinHandler == nil {
		return
	}
	c.joinHandler(ctx, evt.RoomID, target)
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
