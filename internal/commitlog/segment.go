package commitlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentSuffix = ".log"

// segmentName formats a base offset as a fixed-width file name so that
// lexical order matches offset order.
func segmentName(base uint64) string {
	return fmt.Sprintf("%020d%s", base, segmentSuffix)
}

// parseSegmentName extracts the base offset from a segment file name.
func parseSegmentName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(name, segmentSuffix)
	if len(raw) != 20 {
		return 0, false
	}
	base, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return base, true
}

// listSegmentBases returns the base offsets of all segment files in dir,
// ascending.
func listSegmentBases(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	bases := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if base, ok := parseSegmentName(e.Name()); ok {
			bases = append(bases, base)
		}
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	return bases, nil
}

// segment is the active, writable tail file of a partition.
type segment struct {
	path string
	base uint64 // first offset in this segment
	next uint64 // next offset to assign
	size int64
	f    *os.File
}

// createSegment creates a fresh segment starting at base.
func createSegment(dir string, base uint64) (*segment, error) {
	path := filepath.Join(dir, segmentName(base))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &segment{path: path, base: base, next: base, f: f}, nil
}

// openSegment opens an existing segment for appending, scanning it from the
// start to find the last verified record boundary. Any incomplete or corrupt
// tail is truncated; this is the crash-recovery path.
func openSegment(dir string, base uint64) (*segment, error) {
	path := filepath.Join(dir, segmentName(base))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	goodEnd, count, err := scanVerified(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() > goodEnd {
		if err := f.Truncate(goodEnd); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, err
		}
	}
	if _, err := f.Seek(goodEnd, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	return &segment{path: path, base: base, next: base + count, size: goodEnd, f: f}, nil
}

// scanVerified walks frames from the file start and returns the byte offset
// just past the last record whose length and CRC check out, along with the
// record count. It never returns ErrCorrupt: a bad tail simply ends the scan.
func scanVerified(f *os.File) (int64, uint64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}

	var (
		pos    int64
		count  uint64
		header [frameHeaderSize]byte
	)
	for {
		n, err := io.ReadFull(f, header[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return pos, count, nil
		}
		if err != nil {
			return 0, 0, err
		}
		length := binary.BigEndian.Uint32(header[:4])
		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return pos, count, nil
			}
			return 0, 0, err
		}
		if !verifyFrame(header[:], payload) {
			return pos, count, nil
		}
		pos += int64(n) + int64(length)
		count++
	}
}

// append writes an already-framed record. The caller holds the partition lock.
func (s *segment) append(frame []byte) error {
	if _, err := s.f.Write(frame); err != nil {
		return err
	}
	s.size += int64(len(frame))
	s.next++
	return nil
}

func (s *segment) sync() error { return s.f.Sync() }

// seal syncs and closes the segment prior to rotation.
func (s *segment) seal() error {
	if err := s.f.Sync(); err != nil {
		return err
	}
	return s.f.Close()
}

func (s *segment) close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
