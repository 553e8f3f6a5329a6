package commitlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/rzbill/natlog/internal/telemetry"
	"github.com/rzbill/natlog/pkg/id"
)

// SyncMode defines when appended records are fsynced to disk.
type SyncMode int

const (
	// SyncAlways fsyncs after every append.
	SyncAlways SyncMode = iota
	// SyncInterval coalesces fsyncs within SyncInterval windows.
	SyncInterval
	// SyncNever leaves syncing to the OS. Crash durability of the newest
	// records is not guaranteed in this mode.
	SyncNever
)

// ParseSyncMode maps a config string to a SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch s {
	case "", "always":
		return SyncAlways, nil
	case "interval":
		return SyncInterval, nil
	case "never":
		return SyncNever, nil
	default:
		return SyncAlways, errors.New("commitlog: invalid sync mode; use always|interval|never")
	}
}

// DefaultSegmentMaxBytes bounds segment files unless configured otherwise.
const DefaultSegmentMaxBytes = 64 << 20

// Options configures a Log instance.
type Options struct {
	// Dir is the root directory for this log instance.
	Dir string
	// Partitions fixes the shard count. Must match an existing instance's
	// count when reopening.
	Partitions int
	// SegmentMaxBytes triggers rotation when the active segment grows past it.
	SegmentMaxBytes int64
	// Sync controls append durability.
	Sync SyncMode
	// SyncInterval applies when Sync == SyncInterval.
	SyncInterval time.Duration
	// Telemetry receives append events. Defaults to a no-op sink.
	Telemetry telemetry.Sink
}

type logMeta struct {
	Partitions int `json:"partitions"`
}

// Log is a partitioned, crash-recoverable append-only commit log.
type Log struct {
	dir   string
	parts []*partition
	sink  telemetry.Sink
	ids   *id.Generator
}

// PartitionFor returns the stable shard for a key: xxhash64(key) mod n.
func PartitionFor(key []byte, n int) uint32 {
	return uint32(xxhash.Sum64(key) % uint64(n))
}

// Open opens or creates a log instance, recovering each partition's tail.
func Open(opts Options) (*Log, error) {
	if opts.Dir == "" {
		return nil, errors.New("commitlog: Options.Dir is required")
	}
	if opts.Partitions <= 0 {
		return nil, errors.New("commitlog: Options.Partitions must be positive")
	}
	if opts.SegmentMaxBytes <= 0 {
		opts.SegmentMaxBytes = DefaultSegmentMaxBytes
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Noop{}
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}
	if err := checkMeta(opts.Dir, opts.Partitions); err != nil {
		return nil, err
	}

	l := &Log{
		dir:   opts.Dir,
		parts: make([]*partition, opts.Partitions),
		sink:  opts.Telemetry,
		ids:   id.NewGenerator(),
	}
	for p := 0; p < opts.Partitions; p++ {
		pt, err := openPartition(opts.Dir, uint32(p), opts)
		if err != nil {
			for _, prev := range l.parts[:p] {
				_ = prev.close()
			}
			return nil, fmt.Errorf("commitlog: open partition %d: %w", p, err)
		}
		l.parts[p] = pt
	}
	return l, nil
}

// checkMeta persists the partition count on first open and rejects a
// mismatching reopen; changing N requires an explicit migration.
func checkMeta(dir string, partitions int) error {
	path := filepath.Join(dir, "meta.json")
	b, err := os.ReadFile(path)
	if err == nil {
		var meta logMeta
		if err := json.Unmarshal(b, &meta); err != nil {
			return fmt.Errorf("commitlog: corrupt meta.json: %w", err)
		}
		if meta.Partitions != partitions {
			return fmt.Errorf("commitlog: partition count mismatch: instance has %d, requested %d", meta.Partitions, partitions)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	b, err = json.Marshal(logMeta{Partitions: partitions})
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// NumPartitions returns the fixed shard count.
func (l *Log) NumPartitions() int { return len(l.parts) }

// Append routes the record by key hash and appends it, generating a fresh
// record ID. It returns the assigned (partition, offset).
func (l *Log) Append(ctx context.Context, key, value []byte, createdAtMs int64) (uint32, uint64, error) {
	return l.AppendWithID(ctx, l.ids.Next(), key, value, createdAtMs)
}

// AppendWithID appends a record carrying a producer-supplied identity.
func (l *Log) AppendWithID(ctx context.Context, recID id.ID, key, value []byte, createdAtMs int64) (uint32, uint64, error) {
	p := PartitionFor(key, len(l.parts))
	off, err := l.parts[p].append(ctx, Record{
		ID:          recID,
		Key:         key,
		Value:       value,
		CreatedAtMs: createdAtMs,
	})
	if err != nil {
		return 0, 0, err
	}
	l.sink.RecordAppended(p, 1)
	return p, off, nil
}

// Read returns up to max records from the partition starting at offset.
func (l *Log) Read(partition uint32, offset uint64, max int) ([]Record, error) {
	pt, err := l.partition(partition)
	if err != nil {
		return nil, err
	}
	return pt.read(offset, max)
}

// TailOffset returns the next offset the partition will assign.
func (l *Log) TailOffset(partition uint32) (uint64, error) {
	pt, err := l.partition(partition)
	if err != nil {
		return 0, err
	}
	return pt.tailOffset(), nil
}

// WaitForAppend blocks until the partition receives an append or timeout
// elapses. Returns true when woken by an append.
func (l *Log) WaitForAppend(partition uint32, timeout time.Duration) bool {
	pt, err := l.partition(partition)
	if err != nil {
		return false
	}
	return pt.waitForAppend(timeout)
}

// NewReader returns a sequential reader positioned at offset.
func (l *Log) NewReader(partition uint32, offset uint64) (*Reader, error) {
	pt, err := l.partition(partition)
	if err != nil {
		return nil, err
	}
	return &Reader{pt: pt, next: offset}, nil
}

// Close syncs and closes every partition.
func (l *Log) Close() error {
	var firstErr error
	for _, pt := range l.parts {
		if err := pt.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Log) partition(p uint32) (*partition, error) {
	if int(p) >= len(l.parts) {
		return nil, fmt.Errorf("commitlog: partition %d out of range (have %d)", p, len(l.parts))
	}
	return l.parts[p], nil
}
