package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "leva:ltm:"

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	// URL is a redis:// or rediss:// URL as accepted by redis.ParseURL.
	URL string
	// KeyPrefix namespaces the per-user lists. Defaults to "leva:ltm:".
	KeyPrefix string
	Logger    *slog.Logger
}

// RedisStore implements LongTermStore with one Redis list per user. RPUSH is
// acknowledged by the server before Append returns; durability beyond that
// follows the server's persistence settings.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore parses cfg.URL and returns a store. No connection is made
// until Load.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("memory: parse redis url: %w", err)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = redisKeyPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		prefix: cfg.KeyPrefix,
		logger: cfg.Logger,
	}, nil
}

func (s *RedisStore) key(userID string) string { return s.prefix + userID }

// Load pings the server.
func (s *RedisStore) Load(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return persistErr("redis", "ping", err)
	}
	s.logger.Info("memory: redis store connected", "prefix", s.prefix)
	return nil
}

// Append pushes summary onto the user's list.
func (s *RedisStore) Append(ctx context.Context, userID, summary string) error {
	n, err := s.client.RPush(ctx, s.key(userID), summary).Result()
	if err != nil {
		return persistErr("redis", "rpush", err)
	}
	s.logger.Debug("memory: summary persisted", "user_id", userID, "summaries", n, "summary_len", len(summary))
	return nil
}

// Get returns the tail of the user's list.
func (s *RedisStore) Get(ctx context.Context, userID string, limit int) ([]string, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	out, err := s.client.LRange(ctx, s.key(userID), start, -1).Result()
	if err != nil {
		return nil, persistErr("redis", "lrange", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// Clear deletes the user's list.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return persistErr("redis", "del", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ LongTermStore = (*RedisStore)(nil)
