package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaBase  = "http://localhost:11434"
	defaultOllamaModel = "qwen2.5:1.5b"
)

// OllamaConfig configures the Ollama /api/chat backend.
type OllamaConfig struct {
	// BaseURL is the Ollama server root, without the /api suffix.
	BaseURL string
	// APIKey is sent as a bearer token when non-empty (hosted Ollama proxies).
	APIKey string
	Model  string
	// HTTPClient defaults to a client without a timeout; the Guard owns
	// request deadlines.
	HTTPClient *http.Client
}

// OllamaProvider implements Provider against Ollama's native chat endpoint.
type OllamaProvider struct {
	cfg    OllamaConfig
	client *http.Client
}

// NewOllama returns an OllamaProvider. It is safe for concurrent use.
func NewOllama(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaProvider{cfg: cfg, client: client}
}

type ollamaRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaResponse struct {
	Message *Message `json:"message"`
	Done    bool     `json:"done"`
	Error   string   `json:"error,omitempty"`
}

// Complete posts msgs to {base}/api/chat with streaming disabled.
func (o *OllamaProvider) Complete(ctx context.Context, msgs []Message) (string, error) {
	data, err := json.Marshal(ollamaRequest{Model: o.cfg.Model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("ollama: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", unavailable("ollama", "http request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", unavailable("ollama", "read response body", err)
	}

	var out ollamaResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != "" {
			return "", unavailablef("ollama", "HTTP %d: %s", resp.StatusCode, out.Error)
		}
		return "", unavailablef("ollama", "unexpected HTTP status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", unavailable("ollama", "decode response", decodeErr)
	}
	if out.Error != "" {
		return "", unavailablef("ollama", "API error: %s", out.Error)
	}
	if out.Message == nil {
		return "", unavailablef("ollama", "response has no message")
	}
	return out.Message.Content, nil
}

var _ Provider = (*OllamaProvider)(nil)
