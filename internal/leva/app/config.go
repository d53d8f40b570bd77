package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/bdobrica/leva/common/environment"
	"github.com/bdobrica/leva/internal/leva/chat"
	"github.com/bdobrica/leva/internal/leva/commands"
	"github.com/bdobrica/leva/internal/leva/llm"
	"github.com/bdobrica/leva/internal/leva/matrix"
	"github.com/bdobrica/leva/internal/leva/memory"
)

// Config holds application configuration.
type Config struct {
	DatabasePath string
	Matrix       matrix.Config
	// HTTPAddr is the address of the health/metrics server. Empty disables it.
	HTTPAddr string
	// PersonaFile overrides the embedded persona when set.
	PersonaFile   string
	CommandPrefix string
	// Workers bounds the number of messages handled at once.
	Workers int
	// MessageChunk is the maximum length of one outbound message.
	MessageChunk int
	LogLevel     string
	LogFormat    string

	LLM    LLMConfig
	Memory MemoryConfig
}

// LLMConfig selects and configures the completion backend.
type LLMConfig struct {
	// Backend is one of "ollama", "openai" or "anthropic".
	Backend     string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
}

// MemoryConfig configures the two memory tiers.
type MemoryConfig struct {
	Capacity int
	// Backend is one of "file", "sqlite" or "redis".
	Backend             string
	SnapshotPath        string
	RedisURL            string
	StartEmptyOnCorrupt bool
	RecallLimit         int
}

const (
	defaultWorkers = 8
	backendOllama  = "ollama"
	backendOpenAI  = "openai"
	backendClaude  = "anthropic"
	ltmFile        = "file"
	ltmSQLite      = "sqlite"
	ltmRedis       = "redis"
)

// LoadConfig reads the configuration from the environment. Call
// environment.Load first to honour a .env file.
func LoadConfig() (*Config, error) {
	var errs []error
	required := func(name string) string {
		v, err := environment.RequiredString(name)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./leva.db"),
		Matrix: matrix.Config{
			Homeserver:  required("MATRIX_HOMESERVER"),
			UserID:      required("MATRIX_USER_ID"),
			AccessToken: required("MATRIX_ACCESS_TOKEN"),
			Rooms:       environment.StringSliceOr("MATRIX_ROOMS", nil),
		},
		HTTPAddr:      environment.StringOr("LEVA_HTTP_ADDR", ":8080"),
		PersonaFile:   environment.StringOr("LEVA_PERSONA_FILE", ""),
		CommandPrefix: environment.StringOr("LEVA_COMMAND_PREFIX", "!"),
		Workers:       environment.IntOr("LEVA_WORKERS", defaultWorkers),
		MessageChunk:  environment.IntOr("LEVA_MESSAGE_CHUNK", chat.DefaultChunkSize),
		LogLevel:      environment.StringOr("LEVA_LOG_LEVEL", "info"),
		LogFormat:     environment.StringOr("LEVA_LOG_FORMAT", "text"),
		LLM: LLMConfig{
			Backend:     environment.StringOr("LLM_BACKEND", backendOllama),
			BaseURL:     environment.StringOr("LLM_BASE_URL", ""),
			APIKey:      environment.StringOr("LLM_API_KEY", ""),
			Model:       environment.StringOr("LLM_MODEL", ""),
			Timeout:     environment.DurationOr("LLM_TIMEOUT", llm.DefaultTimeout),
			MaxAttempts: environment.IntOr("LLM_MAX_ATTEMPTS", 1),
		},
		Memory: MemoryConfig{
			Capacity:            environment.IntOr("MEMORY_STM_CAPACITY", memory.DefaultCapacity),
			Backend:             environment.StringOr("MEMORY_LTM_BACKEND", ltmFile),
			SnapshotPath:        environment.StringOr("MEMORY_SNAPSHOT_PATH", "./memory.json"),
			RedisURL:            environment.StringOr("MEMORY_REDIS_URL", ""),
			StartEmptyOnCorrupt: environment.BoolOr("MEMORY_START_EMPTY_ON_CORRUPT", false),
			RecallLimit:         environment.IntOr("MEMORY_RECALL_LIMIT", commands.DefaultRecallLimit),
		},
	}
	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Backend {
	case backendOllama, backendOpenAI, backendClaude:
	default:
		return fmt.Errorf("LLM_BACKEND %q: want ollama, openai or anthropic", c.LLM.Backend)
	}
	switch c.Memory.Backend {
	case ltmFile, ltmSQLite:
	case ltmRedis:
		if c.Memory.RedisURL == "" {
			return errors.New("MEMORY_REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("MEMORY_LTM_BACKEND %q: want file, sqlite or redis", c.Memory.Backend)
	}
	if c.Memory.Capacity < 1 {
		return fmt.Errorf("MEMORY_STM_CAPACITY must be positive, got %d", c.Memory.Capacity)
	}
	if c.Workers < 1 {
		c.Workers = defaultWorkers
	}
	if c.MessageChunk < 1 {
		c.MessageChunk = chat.DefaultChunkSize
	}
	return nil
}
