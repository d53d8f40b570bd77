package llm

import (
	"context"
	"strings"
	"testing"
)

func TestBuildMessages_Order(t *testing.T) {
	msgs := BuildMessages(ChatRequest{
		SystemPrompt: "  You are Leva.  ",
		Summaries:    []string{"likes tea", "works nights"},
		History: []Message{
			{Role: RoleUser, Content: "u1"},
			{Role: RoleAssistant, Content: "a1"},
		},
		Prompt: "u2",
	})

	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != "You are Leva." {
		t.Errorf("unexpected system message: %+v", msgs[0])
	}
	if msgs[1].Role != RoleSystem || !strings.HasPrefix(msgs[1].Content, DefaultMemoryNote) {
		t.Errorf("expected memory note second, got %+v", msgs[1])
	}
	if !strings.Contains(msgs[1].Content, "- likes tea\n- works nights") {
		t.Errorf("summaries should be listed oldest first: %q", msgs[1].Content)
	}
	if msgs[2].Content != "u1" || msgs[3].Content != "a1" {
		t.Errorf("history out of order: %+v", msgs[2:4])
	}
	if msgs[4].Role != RoleUser || msgs[4].Content != "u2" {
		t.Errorf("expected new prompt last, got %+v", msgs[4])
	}
}

func TestBuildMessages_NoMemoryNoteWithoutSummaries(t *testing.T) {
	msgs := BuildMessages(ChatRequest{SystemPrompt: "sys", Prompt: "hi"})
	if len(msgs) != 2 {
		t.Fatalf("expected system + user only, got %+v", msgs)
	}
}

func TestChat_PassesAssembledMessages(t *testing.T) {
	var seen []Message
	p := funcProvider(func(_ context.Context, msgs []Message) (string, error) {
		seen = msgs
		return "reply", nil
	})

	got, err := Chat(context.Background(), p, ChatRequest{SystemPrompt: "sys", MemoryNote: "Known:", Summaries: []string{"x"}, Prompt: "hi"})
	if err != nil || got != "reply" {
		t.Fatalf("Chat() = %q, %v", got, err)
	}
	if len(seen) != 3 || seen[1].Content != "Known:\n- x" {
		t.Errorf("unexpected messages: %+v", seen)
	}
}
