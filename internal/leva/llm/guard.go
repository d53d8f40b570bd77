package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/leva/common/redact"
	"github.com/bdobrica/leva/common/retry"
)

// DefaultTimeout matches the request timeout of the original Ollama bot.
const DefaultTimeout = 120 * time.Second

// GuardConfig controls the policy Guard applies around a backend.
type GuardConfig struct {
	// Name labels log lines, e.g. "ollama".
	Name string
	// Timeout bounds a whole Complete call, retries included. Zero uses
	// DefaultTimeout.
	Timeout time.Duration
	// Retry is applied to ErrBackendUnavailable failures other than
	// timeouts. MaxAttempts 0 or 1 disables retries.
	Retry retry.Config
	// Secrets are scrubbed from logged errors.
	Secrets []string
	Logger  *slog.Logger
}

// Guarded is a Provider wrapped with a uniform timeout, retry and error
// classification. Both chat replies and memory summaries go through one.
type Guarded struct {
	next Provider
	cfg  GuardConfig
}

// Guard wraps next with cfg.
func Guard(next Provider, cfg GuardConfig) *Guarded {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Guarded{next: next, cfg: cfg}
}

// Complete calls the wrapped backend. Every returned error matches
// ErrBackendUnavailable; deadline overruns additionally match ErrTimeout.
func (g *Guarded) Complete(ctx context.Context, msgs []Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	rcfg := g.cfg.Retry
	rcfg.ShouldRetry = func(err error) bool {
		return callCtx.Err() == nil && !errors.Is(err, ErrTimeout)
	}

	var out string
	err := retry.Do(callCtx, rcfg, func() error {
		text, err := g.next.Complete(callCtx, msgs)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err == nil {
		g.cfg.Logger.Debug("llm: completion ok",
			"backend", g.cfg.Name,
			"messages", len(msgs),
			"reply_len", len(out),
			"elapsed", time.Since(start).String(),
		)
		return out, nil
	}

	err = g.classify(ctx, callCtx, err)
	g.cfg.Logger.Warn("llm: completion failed",
		"backend", g.cfg.Name,
		"elapsed", time.Since(start).String(),
		"timeout", errors.Is(err, ErrTimeout),
		"err", redact.Error(err, g.cfg.Secrets...),
	)
	return "", err
}

// classify maps err onto the package sentinels. A deadline hit by callCtx
// while the caller's ctx is still live is a timeout.
func (g *Guarded) classify(parent, callCtx context.Context, err error) error {
	if errors.Is(err, ErrTimeout) {
		return err
	}
	if parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, g.cfg.Timeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return unavailable(g.cfg.Name, "complete", err)
}

var _ Provider = (*Guarded)(nil)
