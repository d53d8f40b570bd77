package memory

import (
	"sync"
	"time"
)

// FlushState is where a user sits in the summarisation cycle.
type FlushState int

const (
	// Accumulating: turns are being collected; no flush is running.
	Accumulating FlushState = iota
	// FlushPending: the buffer reached capacity and a summary is being
	// produced and committed.
	FlushPending
)

func (s FlushState) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case FlushPending:
		return "flush_pending"
	default:
		return "unknown"
	}
}

// Flush outcomes reported to a Recorder.
const (
	FlushOK              = "ok"
	FlushSummariseFailed = "summarise_failed"
	FlushPersistFailed   = "persist_failed"
	FlushDiscarded       = "discarded"
)

// Recorder receives memory events for metrics.
type Recorder interface {
	FlushCompleted(outcome string, elapsed time.Duration)
	TurnsEvicted(n int)
}

type noopRecorder struct{}

func (noopRecorder) FlushCompleted(string, time.Duration) {}
func (noopRecorder) TurnsEvicted(int)                     {}

// flushTicket is what one flush summarises: the buffer as it was when the
// trigger fired and the sequence number of its newest turn.
type flushTicket struct {
	userID  string
	turns   []Turn
	through uint64
	gen     uint64
}

// trigger tracks the per-user flush state. A user has an entry only while a
// flush is pending. All methods are called with the user's lock held.
type trigger struct {
	capacity int

	mu      sync.Mutex
	pending map[string]*pendingFlush
}

type pendingFlush struct {
	// gen is bumped by resets; a flush whose ticket is stale must not commit.
	gen uint64
	// through is the newest sequence number the flush covers.
	through uint64
	// covered counts turns evicted from the buffer that only the flush still
	// holds. They are lost if it fails.
	covered int
}

func newTrigger(capacity int) *trigger {
	return &trigger{capacity: capacity, pending: make(map[string]*pendingFlush)}
}

// evaluate fires when size has reached capacity and no flush is running.
// On fire the user moves to FlushPending and snapshot supplies the ticket.
// snapshot runs without t.mu: the short-term store calls covers while
// holding its own lock.
func (t *trigger) evaluate(userID string, size int, snapshot func() ([]Turn, uint64)) (flushTicket, bool) {
	if size < t.capacity || t.state(userID) == FlushPending {
		return flushTicket{}, false
	}
	turns, through := snapshot()

	t.mu.Lock()
	defer t.mu.Unlock()
	p := &pendingFlush{through: through}
	t.pending[userID] = p
	return flushTicket{userID: userID, turns: turns, through: through, gen: p.gen}, true
}

// current reports whether ticket may still be committed.
func (t *trigger) current(ticket flushTicket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[ticket.userID]
	return ok && p.gen == ticket.gen
}

// invalidate makes a running flush for the user discard its result.
func (t *trigger) invalidate(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[userID]; ok {
		p.gen++
	}
}

// covers reports whether the running flush for the user holds the turn with
// sequence number seq, and counts it as held only by the flush.
func (t *trigger) covers(userID string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[userID]
	if !ok || seq > p.through {
		return false
	}
	p.covered++
	return true
}

// settle returns the user to Accumulating. It returns how many of the
// flush's turns had already left the buffer.
func (t *trigger) settle(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var covered int
	if p, ok := t.pending[userID]; ok {
		covered = p.covered
	}
	delete(t.pending, userID)
	return covered
}

func (t *trigger) state(userID string) FlushState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[userID]; ok {
		return FlushPending
	}
	return Accumulating
}
