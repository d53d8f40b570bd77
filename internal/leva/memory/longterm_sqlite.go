package memory

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore implements LongTermStore on the memory_summaries table of the
// bot database. Each summary is one row; insertion order is kept by the
// autoincrement seq column. Rows are committed before Append returns.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	closed atomic.Bool
}

// NewSQLiteStore returns a SQLiteStore on db. The memory_summaries table is
// created by the store package migrations. If logger is nil, the default
// slog logger is used.
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{db: db, logger: logger}
}

// Load checks that the table is readable and logs its size.
func (s *SQLiteStore) Load(ctx context.Context) error {
	var users, total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id), COUNT(*) FROM memory_summaries`,
	).Scan(&users, &total)
	if err != nil {
		return persistErr("sqlite", "count summaries", err)
	}
	s.logger.Info("memory: sqlite store loaded", "users", users, "summaries", total)
	return nil
}

// Append inserts one summary row for the user.
func (s *SQLiteStore) Append(ctx context.Context, userID, summary string) error {
	if s.closed.Load() {
		return persistErr("sqlite", "insert summary", errStoreClosed)
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_summaries (id, user_id, summary, created_at)
		VALUES (?, ?, ?, ?)`,
		id, userID, summary, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return persistErr("sqlite", "insert summary", err)
	}
	s.logger.Debug("memory: summary persisted", "user_id", userID, "id", id, "summary_len", len(summary))
	return nil
}

// Get returns the user's last limit summaries, oldest first.
func (s *SQLiteStore) Get(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT summary FROM (
			SELECT seq, summary FROM memory_summaries
			WHERE user_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC`,
		userID, limit,
	)
	if err != nil {
		return nil, persistErr("sqlite", "query summaries", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, persistErr("sqlite", "scan summary", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("sqlite", "iterate summaries", err)
	}
	return out, nil
}

// Clear deletes every row of the user.
func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	if s.closed.Load() {
		return persistErr("sqlite", "delete summaries", errStoreClosed)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_summaries WHERE user_id = ?`, userID)
	if err != nil {
		return persistErr("sqlite", "delete summaries", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("memory: summaries cleared", "user_id", userID, "rows", n)
	return nil
}

// Close stops further mutations. The database handle is owned by the caller.
func (s *SQLiteStore) Close() error {
	s.closed.Store(true)
	return nil
}

var _ LongTermStore = (*SQLiteStore)(nil)
