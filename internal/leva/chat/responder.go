// Package chat produces Leva's replies: it assembles the prompt from the
// user's memory, calls the backend and records the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/leva/internal/leva/llm"
	"github.com/bdobrica/leva/internal/leva/memory"
	"github.com/bdobrica/leva/internal/leva/observability"
)

// ErrReplyFailed is returned when no reply could be produced. Nothing is
// recorded in memory in that case.
var ErrReplyFailed = errors.New("chat: reply failed")

// ErrEmptyPrompt is returned for a prompt that is blank after trimming.
var ErrEmptyPrompt = errors.New("chat: empty prompt")

// Memory is the part of memory.Coordinator the responder needs.
type Memory interface {
	BuildContext(ctx context.Context, userID string) ([]string, []memory.Turn, error)
	RecordExchange(ctx context.Context, userID string, userTurn, assistantTurn memory.Turn) error
}

// Observer receives one call per Respond.
type Observer interface {
	ObserveReply(outcome string, elapsed time.Duration)
}

// Reply outcomes reported to an Observer.
const (
	OutcomeOK          = "ok"
	OutcomeFailed      = "failed"
	OutcomeFlushFailed = "ok_flush_failed"
)

// Config wires a Responder.
type Config struct {
	Provider     llm.Provider
	Memory       Memory
	SystemPrompt string
	MemoryNote   string
	Observer     Observer
	Logger       *slog.Logger
}

// Responder answers chat prompts. It is safe for concurrent use.
type Responder struct {
	cfg Config
}

// NewResponder returns a Responder for cfg.
func NewResponder(cfg Config) *Responder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Responder{cfg: cfg}
}

// Respond answers prompt for userID. On backend failure it returns an error
// matching ErrReplyFailed and leaves memory untouched. A failed memory flush
// after a successful reply is logged and does not fail the reply.
func (r *Responder) Respond(ctx context.Context, userID, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	log := observability.LoggerWithTrace(ctx, r.cfg.Logger).With("user_id", userID)
	start := time.Now()

	summaries, turns, err := r.cfg.Memory.BuildContext(ctx, userID)
	if err != nil {
		r.observe(OutcomeFailed, start)
		return "", fmt.Errorf("%w: load memory: %w", ErrReplyFailed, err)
	}

	reply, err := llm.Chat(ctx, r.cfg.Provider, llm.ChatRequest{
		SystemPrompt: r.cfg.SystemPrompt,
		MemoryNote:   r.cfg.MemoryNote,
		Summaries:    summaries,
		History:      memory.Messages(turns),
		Prompt:       prompt,
	})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		r.observe(OutcomeFailed, start)
		log.Warn("chat: completion failed", "err", err, "timeout", errors.Is(err, llm.ErrTimeout))
		return "", fmt.Errorf("%w: %w", ErrReplyFailed, err)
	}

	outcome := OutcomeOK
	if err := r.cfg.Memory.RecordExchange(ctx, userID, memory.UserTurn(prompt), memory.AssistantTurn(reply)); err != nil {
		outcome = OutcomeFlushFailed
		log.Warn("chat: reply sent but memory flush failed; will retry", "err", err)
	}
	r.observe(outcome, start)

	log.Info("chat: replied",
		"summaries", len(summaries),
		"history", len(turns),
		"prompt_len", len(prompt),
		"reply_len", len(reply),
		"elapsed", time.Since(start).String(),
	)
	return reply, nil
}

func (r *Responder) observe(outcome string, start time.Time) {
	if r.cfg.Observer != nil {
		r.cfg.Observer.ObserveReply(outcome, time.Since(start))
	}
}
