package deadletter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rzbill/natlog/internal/commitlog"
	pebblestore "github.com/rzbill/natlog/internal/storage/pebble"
	"github.com/rzbill/natlog/pkg/id"
)

func testRecord(g *id.Generator) commitlog.Record {
	return commitlog.Record{
		ID:          g.Next(),
		Key:         []byte("k"),
		Value:       []byte("v"),
		CreatedAtMs: 1717171717000,
		Partition:   2,
		Offset:      40,
	}
}

func TestRouterRetriesThenDeadLetters(t *testing.T) {
	g := id.NewGenerator()
	sink := NewMemorySink()
	r := NewRouter("g", Policy{MaxRetries: 3, Backoff: 10 * time.Millisecond}, sink, nil)
	rec := testRecord(g)
	cause := errors.New("handler exploded")

	for attempt := 1; attempt <= 3; attempt++ {
		d, delay, err := r.Failed(context.Background(), rec, attempt, cause)
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if d != DecisionRetry {
			t.Fatalf("attempt %d: expected retry", attempt)
		}
		if delay <= 0 {
			t.Fatalf("attempt %d: no backoff", attempt)
		}
	}

	d, _, err := r.Failed(context.Background(), rec, 4, cause)
	if err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if d != DecisionDeadLetter {
		t.Fatalf("expected dead letter after retries exhausted")
	}

	parked := sink.Entries("g")
	if len(parked) != 1 {
		t.Fatalf("parked %d entries, want 1", len(parked))
	}
	e := parked[0]
	if e.ID != rec.ID.String() || e.Partition != 2 || e.Offset != 40 {
		t.Fatalf("entry identity: %+v", e)
	}
	if e.Attempts != 4 || e.LastError != "handler exploded" {
		t.Fatalf("entry history: %+v", e)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := Policy{MaxRetries: 10, Backoff: 100 * time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 500 * time.Millisecond}
	if d := p.delay(1); d != 100*time.Millisecond {
		t.Fatalf("first delay: %v", d)
	}
	if d := p.delay(2); d != 200*time.Millisecond {
		t.Fatalf("second delay: %v", d)
	}
	if d := p.delay(5); d != 500*time.Millisecond {
		t.Fatalf("capped delay: %v", d)
	}
}

func TestZeroRetriesDeadLettersImmediately(t *testing.T) {
	g := id.NewGenerator()
	sink := NewMemorySink()
	r := NewRouter("g", Policy{MaxRetries: 0}, sink, nil)

	d, _, err := r.Failed(context.Background(), testRecord(g), 1, errors.New("boom"))
	if err != nil {
		t.Fatalf("failed: %v", err)
	}
	if d != DecisionDeadLetter {
		t.Fatalf("expected immediate dead letter")
	}
	if len(sink.Entries("g")) != 1 {
		t.Fatalf("entry not parked")
	}
}

func TestPebbleSinkStoreListRemove(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	g := id.NewGenerator()
	sink := NewPebbleSink(db)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		rec := testRecord(g)
		rec.Offset = uint64(i)
		ids = append(ids, rec.ID.String())
		err := sink.Store(ctx, "g", Entry{ID: rec.ID.String(), Partition: rec.Partition, Offset: rec.Offset, Attempts: 4})
		if err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	entries, err := sink.List("g", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("listed %d, want 3", len(entries))
	}
	// generator ids are time-ordered, so listing is oldest first
	for i, e := range entries {
		if e.ID != ids[i] {
			t.Fatalf("entry %d out of order", i)
		}
	}

	if entries, _ := sink.List("other", 0); len(entries) != 0 {
		t.Fatalf("groups must be isolated")
	}

	if err := sink.Remove("g", ids[0]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	entries, _ = sink.List("g", 0)
	if len(entries) != 2 || entries[0].ID != ids[1] {
		t.Fatalf("after remove: %+v", entries)
	}
}
