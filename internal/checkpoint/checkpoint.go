package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	logpkg "github.com/rzbill/natlog/pkg/log"
)

// Snapshot is one group's recoverable position: per-partition resume offsets
// plus an optional opaque state blob the handler wants restored alongside
// them.
type Snapshot struct {
	Group      string            `json:"group"`
	SnapshotMs int64             `json:"snapshot_ms"`
	Offsets    map[uint32]uint64 `json:"offsets"`
	State      json.RawMessage   `json:"state,omitempty"`
}

// ErrNoCheckpoint reports that neither the current nor the previous snapshot
// file could be loaded.
var ErrNoCheckpoint = errors.New("checkpoint: no snapshot on disk")

const prevSuffix = ".prev"

// Store reads and writes one group's snapshot files under a directory.
// Writes go through a temp file and an atomic rename; the previous snapshot
// is kept as a .prev fallback and replaced on the next successful write.
type Store struct {
	dir    string
	group  string
	logger logpkg.Logger
}

// NewStore builds a snapshot store for one group.
func NewStore(dir, group string, logger logpkg.Logger) *Store {
	if logger == nil {
		logger = logpkg.NewTestLogger()
	}
	return &Store{dir: dir, group: group, logger: logger.WithComponent("checkpoint")}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, s.group+".json")
}

// Write persists the snapshot. The current file, if any, is demoted to .prev
// before the new one is renamed into place, so a crash at any point leaves at
// least one readable snapshot.
func (s *Store) Write(snap Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	snap.Group = s.group
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	path := s.path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+prevSuffix); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	// fsync the directory so both renames survive power loss
	if d, err := os.Open(s.dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Load returns the newest readable snapshot, falling back to .prev when the
// current file is missing or unparseable. ErrNoCheckpoint means the caller
// should fall back to the offset store, then to offset zero.
func (s *Store) Load() (Snapshot, error) {
	path := s.path()
	snap, err := readSnapshot(path)
	if err == nil {
		return snap, nil
	}
	if !os.IsNotExist(err) {
		s.logger.Warn("checkpoint unreadable, trying previous",
			logpkg.Str("path", path), logpkg.Err(err))
	}
	snap, prevErr := readSnapshot(path + prevSuffix)
	if prevErr == nil {
		return snap, nil
	}
	return Snapshot{}, fmt.Errorf("%w: %v", ErrNoCheckpoint, err)
}

func readSnapshot(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
