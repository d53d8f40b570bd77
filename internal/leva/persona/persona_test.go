package persona

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	p := Default()
	if p.Name != "Leva" {
		t.Errorf("Name = %q", p.Name)
	}
	if !strings.Contains(p.SystemPrompt, "UMP45") {
		t.Errorf("SystemPrompt = %q", p.SystemPrompt)
	}
	if p.SecretRole.Name != "Le Epic Gamer" {
		t.Errorf("SecretRole.Name = %q", p.SecretRole.Name)
	}
	if len(p.Moderation.Words) == 0 || len(p.Poll.Reactions) != 2 {
		t.Errorf("moderation=%v poll=%v", p.Moderation.Words, p.Poll.Reactions)
	}
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.SystemPrompt != Default().SystemPrompt {
		t.Error("empty path should load the embedded persona")
	}
}

func TestLoad_FillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	data := "name: Nine\nsystem_prompt: You are Nine.\nmoderation:\n  words: []\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "Nine" || p.SystemPrompt != "You are Nine." {
		t.Errorf("overrides lost: %+v", p)
	}
	if p.FailureReply != "AI error." {
		t.Errorf("FailureReply = %q, want default", p.FailureReply)
	}
	if p.Moderation.Words == nil || len(p.Moderation.Words) != 0 {
		t.Errorf("explicit empty word list should disable the filter, got %v", p.Moderation.Words)
	}
	if p.Moderation.Warning == "" {
		t.Error("Warning should fall back to the default")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "missing system prompt", data: "name: Leva\n", wantErr: ErrNoSystemPrompt},
		{name: "blank system prompt", data: "system_prompt: '   '\n", wantErr: ErrNoSystemPrompt},
		{name: "unknown key", data: "system_prompt: x\nsystem_promt: y\n"},
		{name: "bad yaml", data: "system_prompt: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFill(t *testing.T) {
	got := Fill("{user} is now assigned to {role}", "user", "@a:x", "role", "Le Epic Gamer")
	if got != "@a:x is now assigned to Le Epic Gamer" {
		t.Errorf("Fill = %q", got)
	}
	if Fill("no placeholders") != "no placeholders" {
		t.Error("Fill without pairs should be identity")
	}
}
