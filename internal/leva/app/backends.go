package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/leva/common/retry"
	"github.com/bdobrica/leva/internal/leva/llm"
	"github.com/bdobrica/leva/internal/leva/memory"
)

// newProvider builds the configured completion backend wrapped in llm.Guard.
func newProvider(cfg LLMConfig, logger *slog.Logger) (llm.Provider, error) {
	var backend llm.Provider
	switch cfg.Backend {
	case backendOllama:
		backend = llm.NewOllama(llm.OllamaConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model})
	case backendOpenAI:
		backend = llm.NewOpenAI(llm.OpenAIConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model})
	case backendClaude:
		backend = llm.NewAnthropic(llm.AnthropicConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("app: unknown llm backend %q", cfg.Backend)
	}
	return llm.Guard(backend, llm.GuardConfig{
		Name:    cfg.Backend,
		Timeout: cfg.Timeout,
		Retry: retry.Config{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
		},
		Secrets: []string{cfg.APIKey},
		Logger:  logger,
	}), nil
}

// newLongTermStore opens the configured long-term backend. It does not load
// it; Run does that under the corrupt-snapshot policy.
func newLongTermStore(cfg MemoryConfig, db *sql.DB, logger *slog.Logger) (memory.LongTermStore, error) {
	switch cfg.Backend {
	case ltmFile:
		return memory.NewFileStore(memory.FileStoreConfig{Path: cfg.SnapshotPath, Logger: logger}), nil
	case ltmSQLite:
		return memory.NewSQLiteStore(db, logger), nil
	case ltmRedis:
		s, err := memory.NewRedisStore(memory.RedisStoreConfig{URL: cfg.RedisURL, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown long-term memory backend %q", cfg.Backend)
	}
}

func corruptPolicy(cfg MemoryConfig) memory.CorruptPolicy {
	if cfg.StartEmptyOnCorrupt {
		return memory.StartEmptyOnCorrupt
	}
	return memory.FailOnCorrupt
}
