package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bdobrica/leva/internal/leva/memory"
	"github.com/bdobrica/leva/internal/leva/store"
)

func openSQLite(t *testing.T, path string) (*store.Store, *memory.SQLiteStore) {
	t.Helper()
	st, err := store.New(path)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ltm := memory.NewSQLiteStore(st.DB(), nil)
	if err := ltm.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st, ltm
}

func TestSQLiteStore_AppendGetClear(t *testing.T) {
	ctx := context.Background()
	_, ltm := openSQLite(t, filepath.Join(t.TempDir(), "leva.db"))

	for _, s := range []string{"a", "b", "c", "d", "e", "f"} {
		if err := ltm.Append(ctx, "@u:x", s); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	ltm.Append(ctx, "@v:x", "other")

	got, err := ltm.Get(ctx, "@u:x", 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := []string{"b", "c", "d", "e", "f"}; !slices.Equal(got, want) {
		t.Errorf("Get(5) = %v, want %v", got, want)
	}
	all, _ := ltm.Get(ctx, "@u:x", 0)
	if len(all) != 6 {
		t.Errorf("Get(0) = %v, want all six", all)
	}

	for i := 0; i < 2; i++ {
		if err := ltm.Clear(ctx, "@u:x"); err != nil {
			t.Fatalf("Clear: %v", err)
		}
	}
	if got, _ := ltm.Get(ctx, "@u:x", 0); len(got) != 0 {
		t.Errorf("after Clear = %v", got)
	}
	if got, _ := ltm.Get(ctx, "@v:x", 0); !slices.Equal(got, []string{"other"}) {
		t.Errorf("other user = %v", got)
	}
}

func TestSQLiteStore_RoundTripAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "leva.db")

	st, ltm := openSQLite(t, path)
	ltm.Append(ctx, "@u:x", "likes tea")
	ltm.Append(ctx, "@u:x", "works nights")
	ltm.Close()
	st.Close()

	_, reopened := openSQLite(t, path)
	got, err := reopened.Get(ctx, "@u:x", 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := []string{"likes tea", "works nights"}; !slices.Equal(got, want) {
		t.Errorf("after restart = %v, want %v", got, want)
	}
}

func TestSQLiteStore_ClosedRejectsWrites(t *testing.T) {
	_, ltm := openSQLite(t, filepath.Join(t.TempDir(), "leva.db"))
	ltm.Close()
	err := ltm.Append(context.Background(), "@u:x", "x")
	if !errors.Is(err, memory.ErrPersistence) {
		t.Fatalf("Append after Close = %v, want ErrPersistence", err)
	}
}
