package offsets

import (
	"testing"

	pebblestore "github.com/rzbill/natlog/internal/storage/pebble"
)

func newTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"pebble": NewPebbleStore(newTestDB(t)),
		"memory": NewMemoryStore(),
	}
}

func TestCommitAndFetch(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok := s.Fetch("g", 0); ok {
				t.Fatalf("expected no offset before first commit")
			}
			if err := s.Commit("g", 0, 9); err != nil {
				t.Fatalf("commit: %v", err)
			}
			off, ok := s.Fetch("g", 0)
			if !ok || off != 10 {
				t.Fatalf("got (%d,%v), want (10,true)", off, ok)
			}
		})
	}
}

func TestCommitIsMonotonic(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Commit("g", 1, 20); err != nil {
				t.Fatalf("commit: %v", err)
			}
			// a stale commit must not move the cursor backwards
			if err := s.Commit("g", 1, 5); err != nil {
				t.Fatalf("stale commit: %v", err)
			}
			off, _ := s.Fetch("g", 1)
			if off != 21 {
				t.Fatalf("cursor regressed: %d", off)
			}
		})
	}
}

func TestGroupsAndPartitionsIsolated(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Commit("g1", 0, 3)
			_ = s.Commit("g1", 1, 7)
			_ = s.Commit("g2", 0, 100)

			if off, _ := s.Fetch("g1", 0); off != 4 {
				t.Fatalf("g1/0: %d", off)
			}
			if off, _ := s.Fetch("g2", 0); off != 101 {
				t.Fatalf("g2/0: %d", off)
			}
			snap, err := s.Snapshot("g1")
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if len(snap) != 2 || snap[0] != 4 || snap[1] != 8 {
				t.Fatalf("snapshot: %v", snap)
			}
		})
	}
}

func TestPebbleStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := NewPebbleStore(db)
	if err := s.Commit("g", 2, 41); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_ = db.Close()

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	off, ok := NewPebbleStore(db2).Fetch("g", 2)
	if !ok || off != 42 {
		t.Fatalf("after reopen: (%d,%v)", off, ok)
	}
}

func TestGroupsListing(t *testing.T) {
	s := NewPebbleStore(newTestDB(t))
	_ = s.Commit("beta", 0, 1)
	_ = s.Commit("alpha", 0, 1)
	_ = s.Commit("alpha", 3, 9)

	groups, err := s.Groups()
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 2 || groups[0] != "alpha" || groups[1] != "beta" {
		t.Fatalf("groups: %v", groups)
	}
}
