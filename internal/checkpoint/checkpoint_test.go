package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir(), "g", nil)
	in := Snapshot{
		SnapshotMs: 1717171717000,
		Offsets:    map[uint32]uint64{0: 10, 3: 42},
		State:      json.RawMessage(`{"cursor":"abc"}`),
	}
	if err := s.Write(in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Group != "g" || out.SnapshotMs != in.SnapshotMs {
		t.Fatalf("header mismatch: %+v", out)
	}
	if len(out.Offsets) != 2 || out.Offsets[0] != 10 || out.Offsets[3] != 42 {
		t.Fatalf("offsets: %v", out.Offsets)
	}
	if string(out.State) != `{"cursor":"abc"}` {
		t.Fatalf("state blob: %s", out.State)
	}
}

func TestLoadWithoutSnapshot(t *testing.T) {
	s := NewStore(t.TempDir(), "g", nil)
	if _, err := s.Load(); !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("want ErrNoCheckpoint, got %v", err)
	}
}

func TestSecondWriteKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "g", nil)
	if err := s.Write(Snapshot{SnapshotMs: 1, Offsets: map[uint32]uint64{0: 5}}); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := s.Write(Snapshot{SnapshotMs: 2, Offsets: map[uint32]uint64{0: 9}}); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	out, err := s.Load()
	if err != nil || out.SnapshotMs != 2 {
		t.Fatalf("load current: %+v %v", out, err)
	}
	prev, err := readSnapshot(filepath.Join(dir, "g.json.prev"))
	if err != nil || prev.SnapshotMs != 1 {
		t.Fatalf("previous snapshot: %+v %v", prev, err)
	}
}

func TestLoadFallsBackToPrevious(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "g", nil)
	_ = s.Write(Snapshot{SnapshotMs: 1, Offsets: map[uint32]uint64{0: 5}})
	_ = s.Write(Snapshot{SnapshotMs: 2, Offsets: map[uint32]uint64{0: 9}})

	// corrupt the current snapshot; load must recover from .prev
	if err := os.WriteFile(filepath.Join(dir, "g.json"), []byte("{garbage"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	out, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.SnapshotMs != 1 || out.Offsets[0] != 5 {
		t.Fatalf("fallback snapshot: %+v", out)
	}
}

func TestGroupsDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	_ = NewStore(dir, "g1", nil).Write(Snapshot{SnapshotMs: 1})
	_ = NewStore(dir, "g2", nil).Write(Snapshot{SnapshotMs: 2})

	out, err := NewStore(dir, "g1", nil).Load()
	if err != nil || out.SnapshotMs != 1 || out.Group != "g1" {
		t.Fatalf("g1 snapshot: %+v %v", out, err)
	}
}

func TestManagerWritesPeriodicallyAndOnShutdown(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "g", nil)

	var mu sync.Mutex
	calls := 0
	source := func() Snapshot {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return Snapshot{Offsets: map[uint32]uint64{0: uint64(calls)}}
	}

	m := NewManager(s, 10*time.Millisecond, source, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("manager did not stop")
	}

	mu.Lock()
	total := calls
	mu.Unlock()
	if total < 2 {
		t.Fatalf("expected periodic writes plus final, got %d", total)
	}
	out, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Offsets[0] != uint64(total) {
		t.Fatalf("final snapshot not newest: %v vs %d calls", out.Offsets, total)
	}
	if out.SnapshotMs == 0 {
		t.Fatalf("snapshot timestamp not stamped")
	}
}
