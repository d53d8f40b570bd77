package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrEmptyUserID is returned for operations without a user id.
var ErrEmptyUserID = errors.New("memory: empty user id")

// CoordinatorConfig wires a Coordinator.
type CoordinatorConfig struct {
	// Capacity is the short-term bound N; a flush fires once a user holds N
	// turns. Zero uses DefaultCapacity.
	Capacity   int
	LongTerm   LongTermStore
	Summariser Summariser
	Logger     *slog.Logger
	Recorder   Recorder
}

// Coordinator owns all memory state of the process. Calls for different
// users run concurrently; calls for the same user are serialised, except for
// the summariser round trip, which runs without the user's lock.
type Coordinator struct {
	stm        *ShortTermStore
	ltm        LongTermStore
	summariser Summariser
	trigger    *trigger
	locks      *userLocks
	logger     *slog.Logger
	recorder   Recorder

	closeMu  sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewCoordinator validates cfg and returns a Coordinator with an empty
// short-term tier. The long-term store should already be loaded.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.LongTerm == nil {
		return nil, errors.New("memory: coordinator needs a long-term store")
	}
	if cfg.Summariser == nil {
		return nil, errors.New("memory: coordinator needs a summariser")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}

	c := &Coordinator{
		ltm:        cfg.LongTerm,
		summariser: cfg.Summariser,
		trigger:    newTrigger(cfg.Capacity),
		locks:      newUserLocks(),
		logger:     cfg.Logger,
		recorder:   cfg.Recorder,
	}
	c.stm = NewShortTermStore(ShortTermConfig{
		Capacity: cfg.Capacity,
		OnEvict:  c.evicted,
	})
	return c, nil
}

// evicted only happens while a flush is failing or still running: a
// successful flush empties the buffer before it can overflow. Turns the
// running flush already holds are reported only if that flush fails.
func (c *Coordinator) evicted(userID string, seq uint64, t Turn) {
	if c.trigger.covers(userID, seq) {
		return
	}
	c.logger.Warn("memory: short-term buffer full, evicted unsummarised turn",
		"user_id", userID,
		"role", string(t.Role),
		"content_len", len(t.Content),
	)
	c.recorder.TurnsEvicted(1)
}

// BuildContext returns what the next completion for the user needs: every
// long-term summary, oldest first, and the short-term buffer. A new user
// gets two empty slices.
func (c *Coordinator) BuildContext(ctx context.Context, userID string) ([]string, []Turn, error) {
	if userID == "" {
		return nil, nil, ErrEmptyUserID
	}
	unlock := c.locks.lock(userID)
	defer unlock()

	summaries, err := c.ltm.Get(ctx, userID, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("memory: build context: %w", err)
	}
	return summaries, c.stm.Snapshot(userID), nil
}

// RecordExchange appends the user turn and the assistant turn, in that
// order, then evaluates the summarisation trigger. When the trigger fires it
// returns only after the flush has been committed or has failed.
//
// The exchange is recorded even when an error is returned; the error
// reports a failed flush, which the next qualifying exchange retries.
func (c *Coordinator) RecordExchange(ctx context.Context, userID string, userTurn, assistantTurn Turn) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	unlock := c.locks.lock(userID)
	c.stm.Append(userID, userTurn)
	c.stm.Append(userID, assistantTurn)
	ticket, fire := c.trigger.evaluate(userID, c.stm.Size(userID), func() ([]Turn, uint64) {
		return c.stm.SnapshotThrough(userID)
	})
	if fire && !c.track() {
		c.trigger.settle(userID)
		fire = false
	}
	unlock()

	if !fire {
		return nil
	}
	return c.runFlushes(ctx, ticket)
}

// runFlushes runs ticket's flush and any flush it re-arms. Each ticket has
// been registered with track.
func (c *Coordinator) runFlushes(ctx context.Context, ticket flushTicket) error {
	for {
		next, again, err := c.flush(ctx, ticket)
		c.inflight.Done()
		if err != nil || !again {
			return err
		}
		ticket = next
	}
}

// track registers a flush with Close. It fails once Close has started.
func (c *Coordinator) track() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return false
	}
	c.inflight.Add(1)
	return true
}

// flush summarises the ticket's turns outside the user's lock and commits
// the result under it. Exchanges recorded meanwhile may have refilled the
// buffer; after a commit the trigger is evaluated again and a follow-up
// ticket is returned when it fires.
func (c *Coordinator) flush(ctx context.Context, ticket flushTicket) (flushTicket, bool, error) {
	start := time.Now()
	userID := ticket.userID
	c.logger.Debug("memory: flush started", "user_id", userID, "turns", len(ticket.turns))

	summary, sumErr := c.summariser.Summarise(ctx, ticket.turns)

	unlock := c.locks.lock(userID)
	defer unlock()

	if sumErr != nil {
		c.recorder.FlushCompleted(FlushSummariseFailed, time.Since(start))
		c.logger.Warn("memory: flush failed, keeping short-term buffer",
			"user_id", userID,
			"turns", len(ticket.turns),
			"err", sumErr,
		)
		c.settleFailed(userID)
		return flushTicket{}, false, fmt.Errorf("memory: flush: %w", sumErr)
	}

	if !c.trigger.current(ticket) {
		c.trigger.settle(userID)
		c.recorder.FlushCompleted(FlushDiscarded, time.Since(start))
		c.logger.Info("memory: memory reset during flush, summary discarded", "user_id", userID)
		return flushTicket{}, false, nil
	}

	// The summary exists now; a caller giving up must not lose it halfway.
	if err := c.ltm.Append(context.WithoutCancel(ctx), userID, summary); err != nil {
		c.recorder.FlushCompleted(FlushPersistFailed, time.Since(start))
		c.logger.Error("memory: persist summary failed, keeping short-term buffer",
			"user_id", userID,
			"err", err,
		)
		c.settleFailed(userID)
		return flushTicket{}, false, fmt.Errorf("memory: flush: %w", err)
	}

	dropped := c.stm.ClearThrough(userID, ticket.through)
	c.trigger.settle(userID)
	c.recorder.FlushCompleted(FlushOK, time.Since(start))
	c.logger.Info("memory: short-term buffer flushed to long-term memory",
		"user_id", userID,
		"turns", len(ticket.turns),
		"cleared", dropped,
		"kept", c.stm.Size(userID),
		"summary_len", len(summary),
		"elapsed", time.Since(start).String(),
	)

	next, again := c.trigger.evaluate(userID, c.stm.Size(userID), func() ([]Turn, uint64) {
		return c.stm.SnapshotThrough(userID)
	})
	if again && !c.track() {
		c.trigger.settle(userID)
		again = false
	}
	return next, again, nil
}

// settleFailed ends a failed flush and reports the turns it held that have
// since been evicted from the buffer.
func (c *Coordinator) settleFailed(userID string) {
	if lost := c.trigger.settle(userID); lost > 0 {
		c.logger.Warn("memory: flush failed, evicted turns lost",
			"user_id", userID,
			"turns", lost,
		)
		c.recorder.TurnsEvicted(lost)
	}
}

// ResetShortTerm forgets the user's recent turns. A flush already running
// for the user is discarded.
func (c *Coordinator) ResetShortTerm(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	unlock := c.locks.lock(userID)
	defer unlock()

	c.trigger.invalidate(userID)
	c.stm.Clear(userID)
	c.logger.Info("memory: short-term memory reset", "user_id", userID)
	return nil
}

// ResetLongTerm forgets every summary of the user. A flush already running
// for the user is discarded. The short-term buffer is left alone.
func (c *Coordinator) ResetLongTerm(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	unlock := c.locks.lock(userID)
	defer unlock()

	c.trigger.invalidate(userID)
	if err := c.ltm.Clear(ctx, userID); err != nil {
		return fmt.Errorf("memory: reset long-term: %w", err)
	}
	c.logger.Info("memory: long-term memory reset", "user_id", userID)
	return nil
}

// RecentSummaries returns the user's last limit summaries, oldest first.
func (c *Coordinator) RecentSummaries(ctx context.Context, userID string, limit int) ([]string, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	out, err := c.ltm.Get(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: recent summaries: %w", err)
	}
	return out, nil
}

// State reports the user's position in the flush cycle.
func (c *Coordinator) State(userID string) FlushState { return c.trigger.state(userID) }

// ShortTermSize returns the number of buffered turns for the user.
func (c *Coordinator) ShortTermSize(userID string) int { return c.stm.Size(userID) }

// ActiveUsers returns the number of users with short-term memory.
func (c *Coordinator) ActiveUsers() int { return c.stm.Users() }

// Capacity returns the short-term bound.
func (c *Coordinator) Capacity() int { return c.stm.Capacity() }

// LongTerm returns the long-term store the coordinator writes through.
func (c *Coordinator) LongTerm() LongTermStore { return c.ltm }

// Close waits for running flushes, or for ctx, then closes the long-term
// store.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("memory: waiting for flushes: %w", ctx.Err())
	}
	if err := c.ltm.Close(); err != nil {
		return errors.Join(waitErr, fmt.Errorf("memory: close long-term store: %w", err))
	}
	return waitErr
}
