package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/natlog/internal/commitlog"
	cfgpkg "github.com/rzbill/natlog/internal/config"
	logpkg "github.com/rzbill/natlog/pkg/log"
)

func testConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Log.Partitions = 2
	cfg.Log.Sync = "never"
	cfg.State.Fsync = "never"
	return cfg
}

func openTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := Open(Options{Config: testConfig(t), Logger: logpkg.NewTestLogger()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openTestRuntime(t)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestAppendAndProcessThroughRuntime(t *testing.T) {
	rt := openTestRuntime(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, _, err := rt.Log().Append(ctx, []byte("k"), []byte{byte(i)}, 0); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var mu sync.Mutex
	var handled []commitlog.Record
	done := make(chan struct{})
	exec, err := rt.NewExecutor("g", func(_ context.Context, rec commitlog.Record) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, rec)
		if len(handled) == 4 {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- exec.Run(runCtx) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("records not processed")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}

	// commits landed in the durable offset store
	snap, err := rt.OffsetStore().Snapshot("g")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var total uint64
	for _, off := range snap {
		total += off
	}
	if total != 4 {
		t.Fatalf("committed offsets: %v", snap)
	}
}

func TestDedupStoreSelection(t *testing.T) {
	rt := openTestRuntime(t)
	if _, ok := rt.DedupStore("g").(interface{ Sweep() (int, error) }); !ok {
		t.Fatalf("durable config should yield the pebble-backed store")
	}

	cfg := testConfig(t)
	cfg.Dedup.Durable = false
	rt2, err := Open(Options{Config: cfg, Logger: logpkg.NewTestLogger()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt2.Close()
	if _, ok := rt2.DedupStore("g").(interface{ Sweep() (int, error) }); ok {
		t.Fatalf("memory config should not yield the pebble-backed store")
	}
}
