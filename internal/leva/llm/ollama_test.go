package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllama_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/chat" {
			t.Errorf("expected /api/chat, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ollama-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "qwen2.5:1.5b" {
			t.Errorf("expected default model, got %q", req.Model)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[1].Content != "hi" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollamaResponse{
			Message: &Message{Role: RoleAssistant, Content: "Hmph. Hello."},
			Done:    true,
		})
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL + "/", APIKey: "ollama-key"})
	got, err := p.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are Leva."},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "Hmph. Hello." {
		t.Errorf("Complete() = %q", got)
	}
}

func TestOllama_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":"model not found"}`))
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{not json`))
			},
		},
		{
			name: "missing message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"done":true}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewOllama(OllamaConfig{BaseURL: srv.URL})
			_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
			if !errors.Is(err, ErrBackendUnavailable) {
				t.Fatalf("expected ErrBackendUnavailable, got %v", err)
			}
		})
	}
}

func TestOllama_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: url})
	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
