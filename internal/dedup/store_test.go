package dedup

import (
	"testing"
	"time"

	pebblestore "github.com/rzbill/natlog/internal/storage/pebble"
	"github.com/rzbill/natlog/pkg/id"
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

func TestAdmitThenConfirm(t *testing.T) {
	g := id.NewGenerator()
	for name, s := range map[string]Store{
		"memory": NewMemoryStore(MemoryOptions{}),
		"pebble": NewPebbleStore(newTestDB(t), "g", 0),
	} {
		t.Run(name, func(t *testing.T) {
			rec := g.Next()
			fresh, err := s.Admit(rec)
			if err != nil || !fresh {
				t.Fatalf("first admit: (%v,%v)", fresh, err)
			}
			// admitted but unconfirmed: still fresh on redelivery
			fresh, err = s.Admit(rec)
			if err != nil || !fresh {
				t.Fatalf("unconfirmed admit: (%v,%v)", fresh, err)
			}
			if err := s.Confirm(rec); err != nil {
				t.Fatalf("confirm: %v", err)
			}
			fresh, err = s.Admit(rec)
			if err != nil || fresh {
				t.Fatalf("confirmed id admitted again: (%v,%v)", fresh, err)
			}
		})
	}
}

func TestMemoryEvictsOldestFirst(t *testing.T) {
	g := id.NewGenerator()
	s := NewMemoryStore(MemoryOptions{MaxEntries: 3})

	ids := make([]id.ID, 4)
	for i := range ids {
		ids[i] = g.Next()
		if err := s.Confirm(ids[i]); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("len: %d", s.Len())
	}
	// the oldest confirmation was evicted, the rest survive
	if fresh, _ := s.Admit(ids[0]); !fresh {
		t.Fatalf("evicted id should be fresh")
	}
	for _, rec := range ids[1:] {
		if fresh, _ := s.Admit(rec); fresh {
			t.Fatalf("retained id admitted")
		}
	}
}

func TestMemoryReconfirmMovesToBack(t *testing.T) {
	g := id.NewGenerator()
	s := NewMemoryStore(MemoryOptions{MaxEntries: 2})

	a, b, c := g.Next(), g.Next(), g.Next()
	_ = s.Confirm(a)
	_ = s.Confirm(b)
	_ = s.Confirm(a) // a becomes most recent
	_ = s.Confirm(c) // evicts b

	if fresh, _ := s.Admit(b); !fresh {
		t.Fatalf("b should have been evicted")
	}
	if fresh, _ := s.Admit(a); fresh {
		t.Fatalf("a should be retained")
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	g := id.NewGenerator()
	s := NewMemoryStore(MemoryOptions{TTL: time.Minute})
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	rec := g.Next()
	_ = s.Confirm(rec)
	if fresh, _ := s.Admit(rec); fresh {
		t.Fatalf("fresh before expiry")
	}
	now = now.Add(2 * time.Minute)
	if fresh, _ := s.Admit(rec); !fresh {
		t.Fatalf("expired id should be fresh")
	}
}

func TestPebbleGroupsIsolated(t *testing.T) {
	db := newTestDB(t)
	g := id.NewGenerator()
	rec := g.Next()

	s1 := NewPebbleStore(db, "g1", 0)
	s2 := NewPebbleStore(db, "g2", 0)
	if err := s1.Confirm(rec); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if fresh, _ := s1.Admit(rec); fresh {
		t.Fatalf("g1 should see the confirm")
	}
	if fresh, _ := s2.Admit(rec); !fresh {
		t.Fatalf("g2 must not share g1's dedup state")
	}
}

func TestPebbleSweepRemovesExpired(t *testing.T) {
	db := newTestDB(t)
	g := id.NewGenerator()
	s := NewPebbleStore(db, "g", time.Minute)
	now := time.Unix(5000, 0)
	s.now = func() time.Time { return now }

	old, recent := g.Next(), g.Next()
	_ = s.Confirm(old)
	now = now.Add(2 * time.Minute)
	_ = s.Confirm(recent)

	removed, err := s.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if fresh, _ := s.Admit(old); !fresh {
		t.Fatalf("swept id should be fresh")
	}
	if fresh, _ := s.Admit(recent); fresh {
		t.Fatalf("recent id must survive sweep")
	}
}
