package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrPersistence marks failures to read or write durable memory. A
// LongTermStore that returns it from Append or Clear has not applied the
// mutation.
var ErrPersistence = errors.New("memory: persistence failure")

// ErrCorruptSnapshot is returned by Load when the stored state exists but
// cannot be parsed. It wraps ErrPersistence.
var ErrCorruptSnapshot = fmt.Errorf("%w: corrupt snapshot", ErrPersistence)

// LongTermStore is the durable, per-user list of conversation summaries.
// Every mutation is written through to storage before it returns.
type LongTermStore interface {
	// Load reads persisted state. It is called once at start. Missing state
	// yields an empty store; unreadable state yields ErrCorruptSnapshot.
	Load(ctx context.Context) error

	// Append adds summary to the end of the user's list and persists it.
	Append(ctx context.Context, userID, summary string) error

	// Get returns the user's most recent limit summaries, oldest first. A
	// limit of zero or less returns all of them. Unknown users get an empty
	// slice.
	Get(ctx context.Context, userID string, limit int) ([]string, error)

	// Clear removes every summary of the user and persists the removal.
	Clear(ctx context.Context, userID string) error

	// Close releases resources. Mutations after Close fail.
	Close() error
}

// persistErr wraps err so it matches ErrPersistence.
func persistErr(backend, action string, err error) error {
	return fmt.Errorf("%w: %s: %s: %w", ErrPersistence, backend, action, err)
}

// tail returns a copy of the last limit items of list.
func tail(list []string, limit int) []string {
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]string, limit)
	copy(out, list[len(list)-limit:])
	return out
}

// CorruptPolicy decides what LoadStore does with a corrupt snapshot.
type CorruptPolicy int

const (
	// FailOnCorrupt returns ErrCorruptSnapshot to the caller.
	FailOnCorrupt CorruptPolicy = iota
	// StartEmptyOnCorrupt moves the corrupt state aside, logs an error and
	// continues with an empty store. Stores that cannot move their state
	// aside still fail.
	StartEmptyOnCorrupt
)

// LoadStore calls store.Load and applies policy to a corrupt snapshot.
func LoadStore(ctx context.Context, store LongTermStore, policy CorruptPolicy, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	err := store.Load(ctx)
	if err == nil || !errors.Is(err, ErrCorruptSnapshot) || policy != StartEmptyOnCorrupt {
		return err
	}

	q, ok := store.(Quarantiner)
	if !ok {
		return err
	}
	dest, qerr := q.Quarantine()
	if qerr != nil {
		return errors.Join(err, qerr)
	}
	logger.Error("memory: corrupt snapshot moved aside, starting with empty long-term memory",
		"moved_to", dest,
		"err", err,
	)
	return nil
}
