package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures any OpenAI-compatible chat completions endpoint
// (OpenAI itself, OpenRouter, vLLM, Ollama's /v1 shim).
type OpenAIConfig struct {
	APIKey string
	// BaseURL defaults to the SDK's public endpoint when empty.
	BaseURL string
	Model   string
}

// OpenAIProvider implements Provider with the official openai-go SDK.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAI returns an OpenAIProvider. SDK retries are disabled; retry policy
// lives in Guard.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}
}

// Complete sends msgs as a single non-streaming chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, msgs []Message) (string, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(params),
		Model:    openai.F(p.model),
	})
	if err != nil {
		return "", unavailable("openai", "chat completion", err)
	}
	if len(completion.Choices) == 0 {
		return "", unavailablef("openai", "no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

var _ Provider = (*OpenAIProvider)(nil)
