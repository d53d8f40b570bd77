package llm

import (
	"context"
	"strings"
)

// DefaultMemoryNote introduces the long-term summaries in the system note.
const DefaultMemoryNote = "Things you remember about this user from earlier conversations:"

// ChatRequest holds everything that goes into one chat completion.
type ChatRequest struct {
	SystemPrompt string
	// MemoryNote heads the long-term memory system message. Empty uses
	// DefaultMemoryNote.
	MemoryNote string
	Summaries  []string
	History    []Message
	Prompt     string
}

// BuildMessages lays out a chat request as the backend sees it: the system
// prompt, a long-term memory note when there are summaries, the prior turns,
// then the new user prompt.
func BuildMessages(req ChatRequest) []Message {
	msgs := make([]Message, 0, len(req.History)+3)
	msgs = append(msgs, Message{Role: RoleSystem, Content: strings.TrimSpace(req.SystemPrompt)})

	if len(req.Summaries) > 0 {
		note := req.MemoryNote
		if note == "" {
			note = DefaultMemoryNote
		}
		var b strings.Builder
		b.WriteString(note)
		for _, s := range req.Summaries {
			b.WriteString("\n- ")
			b.WriteString(s)
		}
		msgs = append(msgs, Message{Role: RoleSystem, Content: b.String()})
	}

	msgs = append(msgs, req.History...)
	msgs = append(msgs, Message{Role: RoleUser, Content: req.Prompt})
	return msgs
}

// Chat sends req to p and returns the reply text.
func Chat(ctx context.Context, p Provider, req ChatRequest) (string, error) {
	return p.Complete(ctx, BuildMessages(req))
}
