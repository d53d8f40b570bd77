// Package memory keeps Leva's two-tier per-user conversation memory.
//
// The short-term tier is a bounded ring of recent turns held in process. The
// long-term tier is a durable, append-only list of summaries per user. When a
// user's ring fills up, the Coordinator asks a Summariser to compact it, writes
// the summary through to the LongTermStore and drops the summarised turns.
package memory

import "github.com/bdobrica/leva/internal/leva/llm"

// Role is the author of a Turn. It shares its values with llm.Role so turns
// can be replayed to a backend without translation.
type Role = llm.Role

const (
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
	RoleSystem    = llm.RoleSystem
)

// Turn is one message in a conversation. Turns are values and are never
// modified after they are recorded.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn and AssistantTurn are shorthands for the common roles.
func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Messages converts turns into backend messages.
func Messages(turns []Turn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return out
}
