package commitlog

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// partition owns the segment files for one shard. Appends are serialized by
// the mutex; reads snapshot the segment list and scan files independently.
type partition struct {
	id  uint32
	dir string

	mu       sync.Mutex
	sealed   []uint64 // base offsets of sealed segments, ascending
	active   *segment
	failed   error // sticky append I/O failure
	notifyCh chan struct{}

	maxSegmentBytes int64
	syncMode        SyncMode
	syncInterval    time.Duration
	lastSync        time.Time
}

func partitionDir(root string, p uint32) string {
	return filepath.Join(root, fmt.Sprintf("partition-%d", p))
}

// openPartition opens or creates the partition directory, recovering the
// active segment's tail.
func openPartition(root string, p uint32, opts Options) (*partition, error) {
	dir := partitionDir(root, p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	bases, err := listSegmentBases(dir)
	if err != nil {
		return nil, err
	}

	pt := &partition{
		id:              p,
		dir:             dir,
		notifyCh:        make(chan struct{}),
		maxSegmentBytes: opts.SegmentMaxBytes,
		syncMode:        opts.Sync,
		syncInterval:    opts.SyncInterval,
	}

	if len(bases) == 0 {
		active, err := createSegment(dir, 0)
		if err != nil {
			return nil, err
		}
		pt.active = active
		return pt, nil
	}

	// Only the last segment can hold an unsynced tail; earlier segments were
	// sealed with an explicit sync.
	last := bases[len(bases)-1]
	active, err := openSegment(dir, last)
	if err != nil {
		return nil, err
	}
	pt.sealed = bases[:len(bases)-1]
	pt.active = active
	return pt, nil
}

// append assigns the next offset, frames the record, and writes it. An I/O
// failure here is fatal for the partition: it is remembered and returned for
// every subsequent append.
func (pt *partition) append(ctx context.Context, rec Record) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.failed != nil {
		return 0, pt.failed
	}

	rec.Partition = pt.id
	rec.Offset = pt.active.next
	frame := encodeFrame(encodePayload(rec))

	if err := pt.active.append(frame); err != nil {
		pt.failed = &IOError{Partition: pt.id, Op: "append", Err: err}
		return 0, pt.failed
	}
	if err := pt.maybeSync(); err != nil {
		pt.failed = &IOError{Partition: pt.id, Op: "sync", Err: err}
		return 0, pt.failed
	}
	if pt.maxSegmentBytes > 0 && pt.active.size >= pt.maxSegmentBytes {
		if err := pt.rotate(); err != nil {
			pt.failed = &IOError{Partition: pt.id, Op: "rotate", Err: err}
			return 0, pt.failed
		}
	}

	// wake tail followers
	close(pt.notifyCh)
	pt.notifyCh = make(chan struct{})

	return rec.Offset, nil
}

func (pt *partition) maybeSync() error {
	switch pt.syncMode {
	case SyncAlways:
		return pt.active.sync()
	case SyncInterval:
		iv := pt.syncInterval
		if iv <= 0 {
			iv = 5 * time.Millisecond
		}
		if time.Since(pt.lastSync) >= iv {
			pt.lastSync = time.Now()
			return pt.active.sync()
		}
	}
	return nil
}

// rotate seals the active segment and opens a new one continuing the offset
// sequence. Caller holds the lock.
func (pt *partition) rotate() error {
	next := pt.active.next
	if err := pt.active.seal(); err != nil {
		return err
	}
	pt.sealed = append(pt.sealed, pt.active.base)
	active, err := createSegment(pt.dir, next)
	if err != nil {
		return err
	}
	pt.active = active
	return nil
}

// tailOffset returns the next offset that will be assigned.
func (pt *partition) tailOffset() uint64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.active.next
}

// waitForAppend blocks until a new append occurs or timeout elapses. It
// returns true if woken by an append, false on timeout.
func (pt *partition) waitForAppend(timeout time.Duration) bool {
	pt.mu.Lock()
	ch := pt.notifyCh
	pt.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// segmentsForRead snapshots the bases to scan for a read starting at offset:
// the newest segment whose base is <= offset, plus everything after it.
func (pt *partition) segmentsForRead(offset uint64) ([]uint64, uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	all := make([]uint64, 0, len(pt.sealed)+1)
	all = append(all, pt.sealed...)
	all = append(all, pt.active.base)

	start := 0
	for i, base := range all {
		if base <= offset {
			start = i
		}
	}
	return all[start:], pt.active.next
}

// read returns up to max records starting at offset, in offset order. Reads
// past the tail return what exists. Transient read errors are retried once.
func (pt *partition) read(offset uint64, max int) ([]Record, error) {
	recs, err := pt.readOnce(offset, max)
	if err != nil && err != ErrCorrupt && err != ErrNotFound {
		recs, err = pt.readOnce(offset, max)
	}
	return recs, err
}

func (pt *partition) readOnce(offset uint64, max int) ([]Record, error) {
	bases, tail := pt.segmentsForRead(offset)
	if offset >= tail {
		return nil, nil
	}

	out := make([]Record, 0, max)
	for _, base := range bases {
		if max > 0 && len(out) >= max {
			break
		}
		done, err := pt.scanSegment(base, offset, max, &out)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	if len(out) == 0 {
		// offset lies below the tail but no record matched: the caller asked
		// for an offset this partition never wrote (e.g. trimmed or bad input)
		return nil, ErrNotFound
	}
	return out, nil
}

// scanSegment walks one segment file, appending records with
// rec.Offset >= offset until max is reached. Returns done=true when max was
// hit. An incomplete tail frame ends the scan cleanly; a CRC mismatch on a
// complete frame is surfaced as ErrCorrupt.
func (pt *partition) scanSegment(base, offset uint64, max int, out *[]Record) (bool, error) {
	f, err := os.Open(filepath.Join(pt.dir, segmentName(base)))
	if err != nil {
		return false, &IOError{Partition: pt.id, Op: "open segment", Err: err}
	}
	defer f.Close()

	var header [frameHeaderSize]byte
	for {
		if max > 0 && len(*out) >= max {
			return true, nil
		}
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return false, nil
			}
			return false, &IOError{Partition: pt.id, Op: "read", Err: err}
		}
		length := binary.BigEndian.Uint32(header[:4])
		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return false, nil
			}
			return false, &IOError{Partition: pt.id, Op: "read", Err: err}
		}
		if !verifyFrame(header[:], payload) {
			return false, ErrCorrupt
		}
		rec, err := decodePayload(payload, pt.id)
		if err != nil {
			return false, err
		}
		if rec.Offset < offset {
			continue
		}
		*out = append(*out, rec)
	}
}

// close syncs and closes the active segment.
func (pt *partition) close() error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.active == nil {
		return nil
	}
	if pt.failed == nil {
		if err := pt.active.sync(); err != nil {
			return err
		}
	}
	return pt.active.close()
}
