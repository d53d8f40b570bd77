// Package llm talks to the inference backends Leva uses for chat replies and
// for memory summaries.
//
// Every backend is reduced to a Provider: an ordered message list in, the
// assistant's text out. Failures are classified with the sentinels below so
// callers can tell a dead backend from a slow one without knowing which
// backend is configured.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider is implemented by every inference backend. Implementations must be
// safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
}

// ErrBackendUnavailable covers transport failures, non-success HTTP statuses
// and responses that cannot be decoded.
var ErrBackendUnavailable = errors.New("llm: backend unavailable")

// ErrTimeout is returned when a call exceeds the configured request timeout.
// errors.Is(err, ErrBackendUnavailable) also holds for it.
var ErrTimeout = fmt.Errorf("%w: request timed out", ErrBackendUnavailable)

// unavailable wraps err so that it matches ErrBackendUnavailable.
func unavailable(backend, action string, err error) error {
	return fmt.Errorf("%w: %s: %s: %w", ErrBackendUnavailable, backend, action, err)
}

// unavailablef builds a fresh ErrBackendUnavailable with a formatted reason.
func unavailablef(backend, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrBackendUnavailable, backend, fmt.Sprintf(format, args...))
}
