package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/leva/internal/leva/llm"
)

// DefaultSummariserPrompt asks for facts about the user rather than a recap
// of the dialogue.
const DefaultSummariserPrompt = "You maintain long-term notes about a chat user. " +
	"Produce a short factual summary of what the following conversation reveals about the user: " +
	"preferences, plans, facts they shared. Reply with the summary only, in one or two sentences."

// ErrEmptySummary is returned when the backend answers with blank text.
var ErrEmptySummary = errors.New("memory: summariser returned an empty summary")

// Summariser condenses a sequence of turns into one summary string.
type Summariser interface {
	Summarise(ctx context.Context, turns []Turn) (string, error)
}

// SummariserFunc adapts a function to Summariser.
type SummariserFunc func(ctx context.Context, turns []Turn) (string, error)

// Summarise calls f.
func (f SummariserFunc) Summarise(ctx context.Context, turns []Turn) (string, error) {
	return f(ctx, turns)
}

// LLMSummariser summarises with a chat backend. Wrap the provider in
// llm.Guard so summaries get the same timeout as chat replies.
type LLMSummariser struct {
	provider llm.Provider
	prompt   string
}

// NewLLMSummariser returns a Summariser using p. An empty prompt uses
// DefaultSummariserPrompt.
func NewLLMSummariser(p llm.Provider, prompt string) *LLMSummariser {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSummariserPrompt
	}
	return &LLMSummariser{provider: p, prompt: prompt}
}

// Summarise sends the transcript as a single user message under the
// summariser system prompt.
func (s *LLMSummariser) Summarise(ctx context.Context, turns []Turn) (string, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: s.prompt},
		{Role: llm.RoleUser, Content: formatTranscript(turns)},
	}
	out, err := s.provider.Complete(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("memory: summarise: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptySummary
	}
	return out, nil
}

// formatTranscript renders turns one per line as "role: content".
func formatTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

var _ Summariser = (*LLMSummariser)(nil)
