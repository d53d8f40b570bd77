package memory

import (
	"fmt"
	"testing"
)

func turns(n int) []Turn {
	out := make([]Turn, n)
	for i := range out {
		out[i] = UserTurn(fmt.Sprintf("t%d", i+1))
	}
	return out
}

func TestShortTerm_NeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	s := NewShortTermStore(ShortTermConfig{Capacity: capacity})

	for i, turn := range turns(25) {
		s.Append("@u:x", turn)
		if got := s.Size("@u:x"); got > capacity {
			t.Fatalf("after %d appends size = %d, want <= %d", i+1, got, capacity)
		}
	}
}

func TestShortTerm_EvictsOldestFirst(t *testing.T) {
	const n = 10
	var evicted []Turn
	var evictedSeq uint64
	s := NewShortTermStore(ShortTermConfig{
		Capacity: n,
		OnEvict: func(_ string, seq uint64, t Turn) {
			evicted = append(evicted, t)
			evictedSeq = seq
		},
	})

	in := turns(n + 1)
	var firstSeq uint64
	for i, turn := range in {
		seq := s.Append("@u:x", turn)
		if i == 0 {
			firstSeq = seq
		}
	}

	got := s.Snapshot("@u:x")
	if len(got) != n {
		t.Fatalf("snapshot len = %d, want %d", len(got), n)
	}
	for i, turn := range got {
		if turn != in[i+1] {
			t.Errorf("snapshot[%d] = %q, want %q", i, turn.Content, in[i+1].Content)
		}
	}
	if len(evicted) != 1 || evicted[0] != in[0] {
		t.Errorf("evicted = %+v, want [t1]", evicted)
	}
	if evictedSeq != firstSeq {
		t.Errorf("evicted seq = %d, want %d", evictedSeq, firstSeq)
	}
}

func TestShortTerm_UnknownUserIsEmpty(t *testing.T) {
	s := NewShortTermStore(ShortTermConfig{})

	got := s.Snapshot("@nobody:x")
	if got == nil || len(got) != 0 {
		t.Errorf("Snapshot = %#v, want empty non-nil slice", got)
	}
	if s.Size("@nobody:x") != 0 {
		t.Error("Size of unknown user should be 0")
	}
	if s.Users() != 0 {
		t.Error("reading must not create users")
	}
}

func TestShortTerm_SnapshotIsACopy(t *testing.T) {
	s := NewShortTermStore(ShortTermConfig{Capacity: 3})
	s.Append("@u:x", UserTurn("a"))

	snap := s.Snapshot("@u:x")
	snap[0].Content = "mutated"

	if got := s.Snapshot("@u:x")[0].Content; got != "a" {
		t.Errorf("store changed through snapshot: %q", got)
	}
}

func TestShortTerm_ClearIsIdempotent(t *testing.T) {
	s := NewShortTermStore(ShortTermConfig{Capacity: 3})
	s.Append("@u:x", UserTurn("a"))
	s.Append("@v:x", UserTurn("b"))

	s.Clear("@u:x")
	once := s.Snapshot("@u:x")
	s.Clear("@u:x")
	twice := s.Snapshot("@u:x")

	if len(once) != 0 || len(twice) != 0 {
		t.Errorf("after clears: %v / %v", once, twice)
	}
	if s.Size("@v:x") != 1 {
		t.Error("clearing one user touched another")
	}
}

func TestShortTerm_ClearThroughKeepsLaterTurns(t *testing.T) {
	s := NewShortTermStore(ShortTermConfig{Capacity: 6})
	s.Append("@u:x", UserTurn("a"))
	s.Append("@u:x", AssistantTurn("b"))
	_, through := s.SnapshotThrough("@u:x")
	s.Append("@u:x", UserTurn("c"))

	if dropped := s.ClearThrough("@u:x", through); dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	got := s.Snapshot("@u:x")
	if len(got) != 1 || got[0].Content != "c" {
		t.Errorf("remaining = %+v, want [c]", got)
	}

	s.ClearThrough("@u:x", through+100)
	if s.Users() != 0 {
		t.Error("emptied user should be dropped")
	}
}

func TestShortTerm_WrapAround(t *testing.T) {
	s := NewShortTermStore(ShortTermConfig{Capacity: 3})
	for _, turn := range turns(7) {
		s.Append("@u:x", turn)
	}
	_, through := s.SnapshotThrough("@u:x")
	s.ClearThrough("@u:x", through-1)
	s.Append("@u:x", UserTurn("t8"))
	s.Append("@u:x", UserTurn("t9"))

	var got []string
	for _, turn := range s.Snapshot("@u:x") {
		got = append(got, turn.Content)
	}
	want := []string{"t7", "t8", "t9"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("snapshot = %v, want %v", got, want)
	}
}
