package memory

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/google/uuid"
)

// newRedisStore connects to LEVA_TEST_REDIS_URL or skips the test. Keys are
// namespaced per test so runs do not interfere.
func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("LEVA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LEVA_TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(RedisStoreConfig{URL: url, KeyPrefix: "leva-test:" + uuid.NewString() + ":"})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestRedisStore_AppendGetClear(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	t.Cleanup(func() { s.Clear(ctx, "@u:x") })

	for _, summary := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, "@u:x", summary); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := s.Get(ctx, "@u:x", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("Get(2) = %v", got)
	}
	if err := s.Clear(ctx, "@u:x"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := s.Get(ctx, "@u:x", 0); len(got) != 0 {
		t.Errorf("after Clear = %v", got)
	}
}

func TestNewRedisStore_BadURL(t *testing.T) {
	if _, err := NewRedisStore(RedisStoreConfig{URL: "http://not-redis"}); err == nil {
		t.Fatal("expected error for non-redis URL")
	}
}

func TestRedisStore_UnreachableIsPersistenceError(t *testing.T) {
	s, err := NewRedisStore(RedisStoreConfig{URL: "redis://127.0.0.1:1/0"})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer s.Close()
	if err := s.Load(context.Background()); !errors.Is(err, ErrPersistence) {
		t.Fatalf("Load = %v, want ErrPersistence", err)
	}
}
