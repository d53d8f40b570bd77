package memory

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(FileStoreConfig{Path: filepath.Join(t.TempDir(), "memory.json")})
}

func TestFileStore_MissingSnapshotIsEmpty(t *testing.T) {
	s := newFileStore(t)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := s.Get(context.Background(), "@u:x", 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("Get = %v, %v; want empty", got, err)
	}
}

func TestFileStore_RoundTripAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "memory.json")

	s := NewFileStore(FileStoreConfig{Path: path})
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"likes tea", "works nights", "has a cat named Nine"}
	for _, summary := range want {
		if err := s.Append(ctx, "@u:x", summary); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Append(ctx, "@v:x", "other user"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	restarted := NewFileStore(FileStoreConfig{Path: path})
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("Load after restart: %v", err)
	}
	got, _ := restarted.Get(ctx, "@u:x", 0)
	if !slices.Equal(got, want) {
		t.Errorf("after restart = %v, want %v", got, want)
	}
	other, _ := restarted.Get(ctx, "@v:x", 0)
	if !slices.Equal(other, []string{"other user"}) {
		t.Errorf("other user = %v", other)
	}
}

func TestFileStore_SnapshotIsVersioned(t *testing.T) {
	s := newFileStore(t)
	if err := s.Append(context.Background(), "@u:x", "likes tea"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var doc snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("snapshot is not JSON: %v", err)
	}
	if doc.Version != snapshotVersion {
		t.Errorf("version = %d, want %d", doc.Version, snapshotVersion)
	}
	if !slices.Equal(doc.Users["@u:x"], []string{"likes tea"}) {
		t.Errorf("users = %v", doc.Users)
	}
}

func TestFileStore_GetLimit(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	for _, summary := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		if err := s.Append(ctx, "@u:x", summary); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{limit: 5, want: []string{"c", "d", "e", "f", "g"}},
		{limit: 1, want: []string{"g"}},
		{limit: 0, want: []string{"a", "b", "c", "d", "e", "f", "g"}},
		{limit: 50, want: []string{"a", "b", "c", "d", "e", "f", "g"}},
	}
	for _, tt := range tests {
		got, err := s.Get(ctx, "@u:x", tt.limit)
		if err != nil {
			t.Fatalf("Get(%d): %v", tt.limit, err)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("Get(%d) = %v, want %v", tt.limit, got, tt.want)
		}
	}
}

func TestFileStore_ClearPersistsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	s.Append(ctx, "@u:x", "likes tea")
	s.Append(ctx, "@v:x", "likes coffee")

	for i := 0; i < 2; i++ {
		if err := s.Clear(ctx, "@u:x"); err != nil {
			t.Fatalf("Clear #%d: %v", i+1, err)
		}
	}

	reloaded := NewFileStore(FileStoreConfig{Path: s.Path()})
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, _ := reloaded.Get(ctx, "@u:x", 0); len(got) != 0 {
		t.Errorf("cleared user survived restart: %v", got)
	}
	if got, _ := reloaded.Get(ctx, "@v:x", 0); len(got) != 1 {
		t.Errorf("other user lost: %v", got)
	}
}

func TestFileStore_BackupHoldsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	s.Append(ctx, "@u:x", "first")
	s.Append(ctx, "@u:x", "second")

	data, err := os.ReadFile(s.Path() + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	users, _, err := decodeSnapshot(data)
	if err != nil {
		t.Fatalf("backup is not a valid snapshot: %v", err)
	}
	if !slices.Equal(users["@u:x"], []string{"first"}) {
		t.Errorf("backup = %v, want [first]", users["@u:x"])
	}
}

func TestFileStore_FailedWriteDoesNotAdvanceMemory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(FileStoreConfig{Path: filepath.Join(blocker, "memory.json")})
	err := s.Append(ctx, "@u:x", "likes tea")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Append error = %v, want ErrPersistence", err)
	}
	if got, _ := s.Get(ctx, "@u:x", 0); len(got) != 0 {
		t.Errorf("memory ahead of disk: %v", got)
	}
}

func TestFileStore_ClosedRejectsWrites(t *testing.T) {
	s := newFileStore(t)
	s.Close()
	if err := s.Append(context.Background(), "@u:x", "x"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("Append after Close = %v, want ErrPersistence", err)
	}
}

func TestFileStore_LegacySnapshotAccepted(t *testing.T) {
	s := newFileStore(t)
	legacy := `{"@u:x": ["likes tea", "plays chess"], "@v:x": []}`
	if err := os.WriteFile(s.Path(), []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load legacy: %v", err)
	}
	got, _ := s.Get(context.Background(), "@u:x", 0)
	if !slices.Equal(got, []string{"likes tea", "plays chess"}) {
		t.Errorf("legacy users = %v", got)
	}
}

func TestFileStore_CorruptSnapshot(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "truncated json", data: `{"version": 1, "users": {"@u:x": ["likes`},
		{name: "empty file", data: ``},
		{name: "not an object", data: `["likes tea"]`},
		{name: "non-string summary", data: `{"@u:x": [42]}`},
		{name: "unknown version", data: `{"version": 2, "users": {}}`},
		{name: "extra envelope field", data: `{"version": 1, "users": {}, "extra": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFileStore(t)
			if err := os.WriteFile(s.Path(), []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			err := s.Load(context.Background())
			if !errors.Is(err, ErrCorruptSnapshot) {
				t.Fatalf("Load = %v, want ErrCorruptSnapshot", err)
			}
			if !errors.Is(err, ErrPersistence) {
				t.Fatalf("ErrCorruptSnapshot should match ErrPersistence: %v", err)
			}
		})
	}
}

func TestLoadStore_CorruptPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("fail by default", func(t *testing.T) {
		s := newFileStore(t)
		os.WriteFile(s.Path(), []byte("{oops"), 0o600)

		if err := LoadStore(ctx, s, FailOnCorrupt, nil); !errors.Is(err, ErrCorruptSnapshot) {
			t.Fatalf("LoadStore = %v, want ErrCorruptSnapshot", err)
		}
		if _, err := os.Stat(s.Path()); err != nil {
			t.Errorf("corrupt file must stay in place: %v", err)
		}
	})

	t.Run("start empty moves file aside", func(t *testing.T) {
		s := newFileStore(t)
		os.WriteFile(s.Path(), []byte("{oops"), 0o600)

		if err := LoadStore(ctx, s, StartEmptyOnCorrupt, nil); err != nil {
			t.Fatalf("LoadStore: %v", err)
		}
		if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
			t.Errorf("corrupt file should have been moved: %v", err)
		}
		matches, _ := filepath.Glob(s.Path() + ".corrupt-*")
		if len(matches) != 1 {
			t.Fatalf("quarantined files = %v", matches)
		}
		data, _ := os.ReadFile(matches[0])
		if !strings.Contains(string(data), "oops") {
			t.Errorf("quarantined content = %q", data)
		}

		if err := s.Append(ctx, "@u:x", "fresh"); err != nil {
			t.Fatalf("Append after quarantine: %v", err)
		}
	})
}
