// Package commands provides prefix command parsing and routing for Leva.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"maunium.net/go/mautrix/event"
)

// Command is a parsed command message.
type Command struct {
	Name       string
	Subcommand string
	Args       []string
	Flags      map[string]string
	// Rest is the trimmed text after the command name. Free-text
	// commands such as ai, dm and poll read it instead of Args.
	Rest    string
	RawText string
}

// ErrNotACommand is returned by Parse when the message does not start with
// the command prefix.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// ErrUnknownCommand is returned by Route when no handler matches.
var ErrUnknownCommand = errors.New("unknown command")

// ErrEmptyCommand is returned for a bare prefix or a prefix followed by
// whitespace.
var ErrEmptyCommand = errors.New("empty command")

// Handler handles one command. A non-empty reply is posted to the room the
// command came from.
type Handler func(ctx context.Context, cmd *Command, evt *event.Event) (string, error)

// Router routes commands to handlers.
type Router struct {
	handlers map[string]Handler
	prefix   string
}

// NewRouter creates a router for messages starting with prefix.
func NewRouter(prefix string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string { return r.prefix }

// Register registers handler under "name" or "name.subcommand".
func (r *Router) Register(command string, handler Handler) {
	r.handlers[command] = handler
}

// Commands returns the registered keys, sorted.
func (r *Router) Commands() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse parses a message into a command. The command name directly follows
// the prefix: "!ai hello" is the ai command.
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.prefix) {
		return nil, ErrNotACommand
	}

	text = strings.TrimPrefix(text, r.prefix)
	if text == "" || unicode.IsSpace(rune(text[0])) {
		return nil, ErrEmptyCommand
	}

	name := strings.Fields(text)[0]
	rest := text[len(name):]
	cmd := &Command{
		Name:    strings.ToLower(name),
		Args:    []string{},
		Flags:   make(map[string]string),
		Rest:    strings.TrimSpace(rest),
		RawText: text,
	}

	parts := strings.Fields(cmd.Rest)
	if len(parts) > 0 && !strings.HasPrefix(parts[0], "-") {
		cmd.Subcommand = strings.ToLower(parts[0])
		parts = parts[1:]
	}
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if strings.HasPrefix(part, "--") {
			flagName := strings.TrimPrefix(part, "--")
			if i+1 < len(parts) && !strings.HasPrefix(parts[i+1], "--") {
				cmd.Flags[flagName] = parts[i+1]
				i++
			} else {
				cmd.Flags[flagName] = "true"
			}
			continue
		}
		cmd.Args = append(cmd.Args, part)
	}

	return cmd, nil
}

// Route parses text and calls the handler for "name.subcommand", falling
// back to "name".
func (r *Router) Route(ctx context.Context, text string, evt *event.Event) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}

	handler, ok := r.handlers[cmd.Key()]
	if !ok {
		handler, ok = r.handlers[cmd.Name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
		}
	}
	return handler(ctx, cmd, evt)
}

// Key returns the handler key, "name" or "name.subcommand".
func (c *Command) Key() string {
	if c.Subcommand != "" {
		return c.Name + "." + c.Subcommand
	}
	return c.Name
}

// GetFlag returns a flag value with a default.
func (c *Command) GetFlag(name, defaultValue string) string {
	if val, ok := c.Flags[name]; ok {
		return val
	}
	return defaultValue
}

// GetArg returns an argument by index.
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}
