package checkpoint

import (
	"context"
	"time"

	logpkg "github.com/rzbill/natlog/pkg/log"
)

// DefaultInterval is the snapshot cadence unless configured otherwise.
const DefaultInterval = 5 * time.Second

// Source produces the current snapshot on demand. It is called from the
// manager's goroutine only.
type Source func() Snapshot

// Manager writes snapshots on a fixed cadence and once more on shutdown. A
// failed write is logged and retried on the next tick; snapshots are an
// optimization over the offset store, so a missed one costs startup time, not
// correctness.
type Manager struct {
	store    *Store
	interval time.Duration
	source   Source
	logger   logpkg.Logger
}

func NewManager(store *Store, interval time.Duration, source Source, logger logpkg.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logpkg.NewTestLogger()
	}
	return &Manager{
		store:    store,
		interval: interval,
		source:   source,
		logger:   logger.WithComponent("checkpoint"),
	}
}

// Run blocks until ctx is cancelled, writing a snapshot every interval and a
// final one before returning.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := m.Flush(); err != nil {
				m.logger.Warn("checkpoint write failed, will retry", logpkg.Err(err))
			}
		case <-ctx.Done():
			if err := m.Flush(); err != nil {
				m.logger.Error("final checkpoint write failed", logpkg.Err(err))
			}
			return
		}
	}
}

// Flush writes one snapshot now.
func (m *Manager) Flush() error {
	snap := m.source()
	if snap.SnapshotMs == 0 {
		snap.SnapshotMs = time.Now().UnixMilli()
	}
	return m.store.Write(snap)
}
