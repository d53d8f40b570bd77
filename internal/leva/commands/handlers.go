package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/leva/common/trace"
	"github.com/bdobrica/leva/common/version"
	"github.com/bdobrica/leva/internal/leva/chat"
	"github.com/bdobrica/leva/internal/leva/observability"
	"github.com/bdobrica/leva/internal/leva/persona"
)

// DefaultRecallLimit is how many summaries the memory command shows.
const DefaultRecallLimit = 5

// Replier produces chat replies; chat.Responder implements it.
type Replier interface {
	Respond(ctx context.Context, userID, prompt string) (string, error)
}

// MemoryControl is the user-facing part of memory.Coordinator.
type MemoryControl interface {
	ResetShortTerm(ctx context.Context, userID string) error
	ResetLongTerm(ctx context.Context, userID string) error
	RecentSummaries(ctx context.Context, userID string, limit int) ([]string, error)
}

// RoleStore keeps role membership; store.Store implements it.
type RoleStore interface {
	AssignRole(ctx context.Context, role, userID, grantedBy string) (bool, error)
	RemoveRole(ctx context.Context, role, userID string) (bool, error)
	HasRole(ctx context.Context, role, userID string) (bool, error)
}

// Messenger sends what a plain room reply cannot express; matrix.Client
// implements it.
type Messenger interface {
	SendText(ctx context.Context, roomID, text string) (eventID string, err error)
	Reply(ctx context.Context, roomID, eventID, text string) error
	React(ctx context.Context, roomID, eventID, key string) error
	SendDM(ctx context.Context, userID, text string) error
}

// HandlersConfig wires Handlers.
type HandlersConfig struct {
	Persona     *persona.Persona
	Chat        Replier
	Memory      MemoryControl
	Roles       RoleStore
	Messenger   Messenger
	RecallLimit int
	Logger      *slog.Logger
}

// Handlers holds all command handlers and their dependencies.
type Handlers struct {
	cfg     HandlersConfig
	prefix  string
	started time.Time
}

// NewHandlers creates a Handlers instance.
func NewHandlers(cfg HandlersConfig) *Handlers {
	if cfg.Persona == nil {
		cfg.Persona = persona.Default()
	}
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = DefaultRecallLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handlers{cfg: cfg, started: time.Now()}
}

// Register adds every handler to r.
func (h *Handlers) Register(r *Router) {
	h.prefix = r.Prefix()
	r.Register("help", h.HandleHelp)
	r.Register("hello", h.HandleHello)
	r.Register("version", h.HandleVersion)
	r.Register("ping", h.HandlePing)
	r.Register("ai", h.HandleAI)
	r.Register("memory", h.HandleMemory)
	r.Register("memory.forget", h.HandleMemoryForget)
	r.Register("memory.wipe", h.HandleMemoryWipe)
	r.Register("assign", h.HandleAssign)
	r.Register("remove", h.HandleRemove)
	r.Register("secret", h.HandleSecret)
	r.Register("dm", h.HandleDM)
	r.Register("reply", h.HandleReply)
	r.Register("poll", h.HandlePoll)
}

// HandleHelp lists the commands.
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	p := h.prefix
	lines := []string{
		fmt.Sprintf("%s commands:", h.cfg.Persona.Name),
		p + "ai <message> - talk to me",
		p + "memory - what I remember about you",
		p + "memory forget - forget our recent conversation",
		p + "memory wipe - forget everything I remember about you",
		p + "hello - say hello",
		p + "assign / " + p + "remove - join or leave " + h.cfg.Persona.SecretRole.Name,
		p + "secret - members only",
		p + "dm <text> - I'll message you privately",
		p + "reply - I'll reply to your message",
		p + "poll <question> - start a poll",
		p + "ping / " + p + "version",
	}
	return strings.Join(lines, "\n"), nil
}

// HandleHello greets the sender.
func (h *Handlers) HandleHello(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	return persona.Fill(h.cfg.Persona.Greeting, "user", evt.Sender.String()), nil
}

// HandleVersion shows build information.
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	return version.Info(), nil
}

// HandlePing is a liveness check from inside the room.
func (h *Handlers) HandlePing(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	uptime := time.Since(h.started).Round(time.Second)
	if id := trace.FromContext(ctx); id != "" {
		return fmt.Sprintf("pong (up %s, trace %s)", uptime, id), nil
	}
	return fmt.Sprintf("pong (up %s)", uptime), nil
}

// HandleAI sends the rest of the message to the chat backend. Backend
// failures produce the persona's failure reply, not an error.
func (h *Handlers) HandleAI(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if cmd.Rest == "" {
		return fmt.Sprintf("Usage: %sai <message>", h.prefix), nil
	}
	reply, err := h.cfg.Chat.Respond(ctx, evt.Sender.String(), cmd.Rest)
	switch {
	case err == nil:
		return reply, nil
	case errors.Is(err, chat.ErrEmptyPrompt):
		return fmt.Sprintf("Usage: %sai <message>", h.prefix), nil
	default:
		observability.LoggerWithTrace(ctx, h.cfg.Logger).Warn("ai command failed",
			"sender", evt.Sender.String(), "err", err)
		return h.cfg.Persona.FailureReply, nil
	}
}

// HandleMemory shows the sender's most recent summaries.
func (h *Handlers) HandleMemory(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	summaries, err := h.cfg.Memory.RecentSummaries(ctx, evt.Sender.String(), h.cfg.RecallLimit)
	if err != nil {
		return "", fmt.Errorf("recall memory: %w", err)
	}
	if len(summaries) == 0 {
		return "I don't remember anything about you yet.", nil
	}
	var b strings.Builder
	b.WriteString("What I remember about you:")
	for i, s := range summaries {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s)
	}
	return b.String(), nil
}

// HandleMemoryForget clears the sender's short-term memory.
func (h *Handlers) HandleMemoryForget(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if err := h.cfg.Memory.ResetShortTerm(ctx, evt.Sender.String()); err != nil {
		return "", fmt.Errorf("reset short-term memory: %w", err)
	}
	return "Forgot our recent conversation.", nil
}

// HandleMemoryWipe clears the sender's long-term memory.
func (h *Handlers) HandleMemoryWipe(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if err := h.cfg.Memory.ResetLongTerm(ctx, evt.Sender.String()); err != nil {
		return "", fmt.Errorf("reset long-term memory: %w", err)
	}
	return "Everything I remembered about you is gone.", nil
}

// HandleAssign gives the sender the secret role.
func (h *Handlers) HandleAssign(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	role := h.cfg.Persona.SecretRole
	sender := evt.Sender.String()
	if _, err := h.cfg.Roles.AssignRole(ctx, role.Name, sender, sender); err != nil {
		return "", err
	}
	return persona.Fill(role.Assigned, "user", sender, "role", role.Name), nil
}

// HandleRemove takes the secret role away from the sender.
func (h *Handlers) HandleRemove(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	role := h.cfg.Persona.SecretRole
	sender := evt.Sender.String()
	if _, err := h.cfg.Roles.RemoveRole(ctx, role.Name, sender); err != nil {
		return "", err
	}
	return persona.Fill(role.Removed, "user", sender, "role", role.Name), nil
}

// HandleSecret answers members of the secret role only.
func (h *Handlers) HandleSecret(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	role := h.cfg.Persona.SecretRole
	ok, err := h.cfg.Roles.HasRole(ctx, role.Name, evt.Sender.String())
	if err != nil {
		return "", err
	}
	if !ok {
		return role.Denied, nil
	}
	return role.Welcome, nil
}

// HandleDM echoes the text back in a direct message.
func (h *Handlers) HandleDM(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if cmd.Rest == "" {
		return fmt.Sprintf("Usage: %sdm <text>", h.prefix), nil
	}
	msg := persona.Fill(h.cfg.Persona.DMEcho, "text", cmd.Rest)
	if err := h.cfg.Messenger.SendDM(ctx, evt.Sender.String(), msg); err != nil {
		return "", fmt.Errorf("send dm: %w", err)
	}
	return "", nil
}

// HandleReply answers as a threaded reply to the command message.
func (h *Handlers) HandleReply(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	err := h.cfg.Messenger.Reply(ctx, evt.RoomID.String(), evt.ID.String(), h.cfg.Persona.ReplyText)
	if err != nil {
		return "", fmt.Errorf("send reply: %w", err)
	}
	return "", nil
}

// HandlePoll posts the question and seeds it with the vote reactions.
func (h *Handlers) HandlePoll(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if cmd.Rest == "" {
		return fmt.Sprintf("Usage: %spoll <question>", h.prefix), nil
	}
	poll := h.cfg.Persona.Poll
	eventID, err := h.cfg.Messenger.SendText(ctx, evt.RoomID.String(), poll.Title+"\n"+cmd.Rest)
	if err != nil {
		return "", fmt.Errorf("send poll: %w", err)
	}
	for _, key := range poll.Reactions {
		if err := h.cfg.Messenger.React(ctx, evt.RoomID.String(), eventID, key); err != nil {
			return "", fmt.Errorf("add poll reaction %s: %w", key, err)
		}
	}
	return "", nil
}
