package memory

import "sync"

// DefaultCapacity is the number of turns kept per user before a flush.
const DefaultCapacity = 10

// ShortTermConfig configures a ShortTermStore.
type ShortTermConfig struct {
	// Capacity bounds every user's buffer. Zero or negative uses
	// DefaultCapacity.
	Capacity int

	// OnEvict, when set, is called for every turn pushed out of a full
	// buffer, with the sequence number Append gave it. It runs with the
	// store's lock held and must not call back into the store.
	OnEvict func(userID string, seq uint64, evicted Turn)
}

// ShortTermStore holds the most recent turns of every user in fixed-size
// rings. Appending to a full ring evicts its oldest turn. It is safe for
// concurrent use.
type ShortTermStore struct {
	mu       sync.Mutex
	capacity int
	onEvict  func(string, uint64, Turn)
	seq      uint64
	rings    map[string]*ring
}

// NewShortTermStore creates an empty store.
func NewShortTermStore(cfg ShortTermConfig) *ShortTermStore {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &ShortTermStore{
		capacity: cfg.Capacity,
		onEvict:  cfg.OnEvict,
		rings:    make(map[string]*ring),
	}
}

// Capacity returns the per-user bound.
func (s *ShortTermStore) Capacity() int { return s.capacity }

// Append adds turn to the end of the user's buffer, evicting the oldest turn
// when the buffer is full. It returns the sequence number assigned to turn.
// Sequence numbers increase across all users.
func (s *ShortTermStore) Append(userID string, turn Turn) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[userID]
	if !ok {
		r = newRing(s.capacity)
		s.rings[userID] = r
	}
	s.seq++
	if evicted, ok := r.push(seqTurn{seq: s.seq, turn: turn}); ok && s.onEvict != nil {
		s.onEvict(userID, evicted.seq, evicted.turn)
	}
	return s.seq
}

// Snapshot returns a copy of the user's buffer, oldest first. Unknown users
// get an empty, non-nil slice.
func (s *ShortTermStore) Snapshot(userID string) []Turn {
	turns, _ := s.SnapshotThrough(userID)
	return turns
}

// SnapshotThrough is Snapshot plus the sequence number of the newest turn
// returned (zero when empty). Pass it to ClearThrough to drop exactly those
// turns later.
func (s *ShortTermStore) SnapshotThrough(userID string) ([]Turn, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[userID]
	if !ok {
		return []Turn{}, 0
	}
	entries := r.entries()
	turns := make([]Turn, len(entries))
	for i, e := range entries {
		turns[i] = e.turn
	}
	var last uint64
	if len(entries) > 0 {
		last = entries[len(entries)-1].seq
	}
	return turns, last
}

// Size returns the number of turns buffered for the user.
func (s *ShortTermStore) Size(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rings[userID]; ok {
		return r.len
	}
	return 0
}

// Clear drops the user's buffer. Clearing an empty or unknown user is a no-op.
func (s *ShortTermStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, userID)
}

// ClearThrough drops the user's turns whose sequence number is at most seq,
// keeping anything appended after a snapshot was taken. It returns the
// number of turns dropped.
func (s *ShortTermStore) ClearThrough(userID string, seq uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[userID]
	if !ok {
		return 0
	}
	dropped := 0
	for r.len > 0 && r.peek().seq <= seq {
		r.pop()
		dropped++
	}
	if r.len == 0 {
		delete(s.rings, userID)
	}
	return dropped
}

// Users returns the number of users with at least one buffered turn.
func (s *ShortTermStore) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rings)
}

type seqTurn struct {
	seq  uint64
	turn Turn
}

// ring is a fixed-capacity FIFO. It is not safe for concurrent use.
type ring struct {
	buf  []seqTurn
	head int
	len  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]seqTurn, capacity)}
}

// push appends e, returning the evicted entry when the ring was full.
func (r *ring) push(e seqTurn) (seqTurn, bool) {
	if r.len == len(r.buf) {
		evicted := r.buf[r.head]
		r.buf[r.head] = e
		r.head = (r.head + 1) % len(r.buf)
		return evicted, true
	}
	r.buf[(r.head+r.len)%len(r.buf)] = e
	r.len++
	return seqTurn{}, false
}

func (r *ring) peek() seqTurn { return r.buf[r.head] }

func (r *ring) pop() {
	r.buf[r.head] = seqTurn{}
	r.head = (r.head + 1) % len(r.buf)
	r.len--
}

func (r *ring) entries() []seqTurn {
	out := make([]seqTurn, r.len)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
