// Package persona loads the bot's wording: the chat system prompt, the
// summariser instruction and every canned reply.
package persona

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_persona.yaml
var defaultYAML []byte

// Persona is the parsed persona file. Reply templates use {user}, {name},
// {role} and {text} placeholders; see Fill.
type Persona struct {
	Name             string     `yaml:"name"`
	SystemPrompt     string     `yaml:"system_prompt"`
	SummariserPrompt string     `yaml:"summariser_prompt"`
	MemoryNote       string     `yaml:"memory_note"`
	Greeting         string     `yaml:"greeting"`
	Welcome          string     `yaml:"welcome"`
	FailureReply     string     `yaml:"failure_reply"`
	Moderation       Moderation `yaml:"moderation"`
	SecretRole       SecretRole `yaml:"secret_role"`
	ReplyText        string     `yaml:"reply_text"`
	DMEcho           string     `yaml:"dm_echo"`
	Poll             Poll       `yaml:"poll"`
}

// Moderation is the word filter configuration.
type Moderation struct {
	Words   []string `yaml:"words"`
	Warning string   `yaml:"warning"`
}

// SecretRole is the self-assignable role and its messages.
type SecretRole struct {
	Name     string `yaml:"name"`
	Welcome  string `yaml:"welcome"`
	Assigned string `yaml:"assigned"`
	Removed  string `yaml:"removed"`
	Denied   string `yaml:"denied"`
}

// Poll configures the poll command.
type Poll struct {
	Title     string   `yaml:"title"`
	Reactions []string `yaml:"reactions"`
}

// ErrNoSystemPrompt is returned for a persona without a system prompt.
var ErrNoSystemPrompt = errors.New("persona: system_prompt is required")

// Default returns the embedded persona.
func Default() *Persona {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads a persona file. An empty path returns Default.
func Load(path string) (*Persona, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("persona: %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes data and fills fields it leaves empty from the embedded
// default. Unknown keys are rejected.
func Parse(data []byte) (*Persona, error) {
	var p Persona
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return nil, ErrNoSystemPrompt
	}
	var def Persona
	if err := yaml.Unmarshal(defaultYAML, &def); err != nil {
		return nil, fmt.Errorf("parse default persona: %w", err)
	}
	p.fillFrom(&def)
	p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	p.SummariserPrompt = strings.TrimSpace(p.SummariserPrompt)
	return &p, nil
}

func (p *Persona) fillFrom(def *Persona) {
	str := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	str(&p.Name, def.Name)
	str(&p.SummariserPrompt, def.SummariserPrompt)
	str(&p.MemoryNote, def.MemoryNote)
	str(&p.Greeting, def.Greeting)
	str(&p.Welcome, def.Welcome)
	str(&p.FailureReply, def.FailureReply)
	str(&p.Moderation.Warning, def.Moderation.Warning)
	str(&p.SecretRole.Name, def.SecretRole.Name)
	str(&p.SecretRole.Welcome, def.SecretRole.Welcome)
	str(&p.SecretRole.Assigned, def.SecretRole.Assigned)
	str(&p.SecretRole.Removed, def.SecretRole.Removed)
	str(&p.SecretRole.Denied, def.SecretRole.Denied)
	str(&p.ReplyText, def.ReplyText)
	str(&p.DMEcho, def.DMEcho)
	str(&p.Poll.Title, def.Poll.Title)
	if p.Moderation.Words == nil {
		p.Moderation.Words = def.Moderation.Words
	}
	if len(p.Poll.Reactions) == 0 {
		p.Poll.Reactions = def.Poll.Reactions
	}
}

// Fill replaces {key} placeholders in tmpl. kv alternates keys and values.
func Fill(tmpl string, kv ...string) string {
	if len(kv) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
