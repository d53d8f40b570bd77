package memory

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const snapshotVersion = 1

//go:embed snapshot.schema.json
var snapshotSchemaJSON string

var snapshotSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("snapshot.schema.json", bytes.NewReader([]byte(snapshotSchemaJSON))); err != nil {
		return nil, err
	}
	return c.Compile("snapshot.schema.json")
})

// snapshot is the on-disk document. Files written before the version field
// existed hold the bare users mapping and are still accepted by Load.
type snapshot struct {
	Version int                 `json:"version"`
	Users   map[string][]string `json:"users"`
}

// Quarantiner is implemented by stores whose corrupt state can be moved
// aside so the process can start empty.
type Quarantiner interface {
	Quarantine() (string, error)
}

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Path is the snapshot file. Its directory is created on first write.
	Path   string
	Logger *slog.Logger
}

// FileStore is a LongTermStore kept in memory and mirrored to a single JSON
// snapshot. Every mutation rewrites the whole file through a temp file and a
// rename, after copying the previous snapshot to Path+".bak". The in-memory
// mapping only changes once the new file is in place.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	users  map[string][]string
	closed bool
	logger *slog.Logger
}

// NewFileStore returns an empty FileStore. Call Load to read the snapshot.
func NewFileStore(cfg FileStoreConfig) *FileStore {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FileStore{
		path:   cfg.Path,
		users:  make(map[string][]string),
		logger: cfg.Logger,
	}
}

// Path returns the snapshot location.
func (s *FileStore) Path() string { return s.path }

// Load replaces the in-memory state with the snapshot on disk. A missing
// file leaves the store empty.
func (s *FileStore) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("memory: no snapshot found, starting empty", "path", s.path)
		s.mu.Lock()
		s.users = make(map[string][]string)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return persistErr("file", "read snapshot", err)
	}

	users, legacy, err := decodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptSnapshot, s.path, err)
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	total := 0
	for _, list := range users {
		total += len(list)
	}
	s.logger.Info("memory: snapshot loaded",
		"path", s.path,
		"users", len(users),
		"summaries", total,
		"legacy_format", legacy,
	)
	return nil
}

// decodeSnapshot validates data against the snapshot schema and returns the
// users mapping. legacy reports a bare mapping without the version envelope.
func decodeSnapshot(data []byte) (users map[string][]string, legacy bool, err error) {
	schema, err := snapshotSchema()
	if err != nil {
		return nil, false, fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("parse: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, false, fmt.Errorf("validate: %w", err)
	}

	obj := doc.(map[string]any)
	if _, versioned := obj["version"].(float64); versioned {
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, false, fmt.Errorf("decode: %w", err)
		}
		if snap.Users == nil {
			snap.Users = make(map[string][]string)
		}
		return snap.Users, false, nil
	}

	users = make(map[string][]string, len(obj))
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, true, fmt.Errorf("decode legacy: %w", err)
	}
	return users, true, nil
}

// Append adds summary to the user's list and rewrites the snapshot.
func (s *FileStore) Append(ctx context.Context, userID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.users)
	next[userID] = append(slices.Clip(s.users[userID]), summary)
	if err := s.commit(next); err != nil {
		return err
	}
	s.logger.Debug("memory: summary persisted",
		"user_id", userID,
		"summaries", len(next[userID]),
		"summary_len", len(summary),
	)
	return nil
}

// Get returns the user's last limit summaries.
func (s *FileStore) Get(ctx context.Context, userID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.users[userID], limit), nil
}

// Clear removes the user and rewrites the snapshot. Clearing an unknown user
// does not touch the file.
func (s *FileStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		if s.closed {
			return persistErr("file", "clear", errStoreClosed)
		}
		return nil
	}
	next := maps.Clone(s.users)
	delete(next, userID)
	return s.commit(next)
}

// Close stops further mutations. The snapshot is always current, so there is
// nothing to flush.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Quarantine renames the snapshot to Path+".corrupt-<unix>" and empties the
// store. It returns the new location.
func (s *FileStore) Quarantine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, dest); err != nil {
		return "", persistErr("file", "quarantine snapshot", err)
	}
	s.users = make(map[string][]string)
	return dest, nil
}

var errStoreClosed = errors.New("store closed")

// commit writes next to disk and, on success, makes it the live mapping.
// Callers hold s.mu.
func (s *FileStore) commit(next map[string][]string) error {
	if s.closed {
		return persistErr("file", "write snapshot", errStoreClosed)
	}
	data, err := json.MarshalIndent(snapshot{Version: snapshotVersion, Users: next}, "", "  ")
	if err != nil {
		return persistErr("file", "marshal snapshot", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return persistErr("file", "create snapshot dir", err)
	}
	if err := s.backup(); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return persistErr("file", "write snapshot", err)
	}
	s.users = next
	return nil
}

// backup copies the current snapshot, if any, to Path+".bak".
func (s *FileStore) backup() error {
	prev, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return persistErr("file", "read snapshot for backup", err)
	}
	if err := writeFileAtomic(s.path+".bak", prev, 0o600); err != nil {
		return persistErr("file", "write backup", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in path's directory, syncs it
// and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

var (
	_ LongTermStore = (*FileStore)(nil)
	_ Quarantiner   = (*FileStore)(nil)
)
