package offsets

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/natlog/internal/storage/pebble"
)

// Store persists the committed consume position of each (group, partition).
// A committed offset means every record strictly below it has had its effect
// applied; the next delivery for that partition starts at the stored value.
type Store interface {
	// Commit records that the group has fully processed offset, making offset+1
	// the resume point. Commits are monotonic per (group, partition): a commit
	// at or below the stored position is ignored.
	Commit(group string, partition uint32, offset uint64) error

	// Fetch returns the resume offset for the group and partition. ok is false
	// when the group has never committed for that partition; the caller starts
	// at offset 0.
	Fetch(group string, partition uint32) (offset uint64, ok bool)

	// Snapshot returns every committed resume offset for the group, keyed by
	// partition.
	Snapshot(group string) (map[uint32]uint64, error)
}

// PebbleStore is the durable Store backed by the shared state database.
type PebbleStore struct {
	db *pebblestore.DB
}

// NewPebbleStore wraps the shared state database.
func NewPebbleStore(db *pebblestore.DB) *PebbleStore {
	return &PebbleStore{db: db}
}

// Commit stores offset+1 as the resume point, ignoring regressions.
func (s *PebbleStore) Commit(group string, partition uint32, offset uint64) error {
	key := keyOffset(group, partition)
	next := offset + 1
	cur, err := s.db.Get(key)
	if err == nil && len(cur) >= 8 {
		if next <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	} else if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], next)
	return s.db.Set(key, b[:])
}

// Fetch loads the resume offset for a group/partition.
func (s *PebbleStore) Fetch(group string, partition uint32) (uint64, bool) {
	cur, err := s.db.Get(keyOffset(group, partition))
	if err != nil || len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}

// Snapshot scans the group's key range and returns all resume offsets.
func (s *PebbleStore) Snapshot(group string) (map[uint32]uint64, error) {
	lo := keyGroupPrefix(group)
	hi := append(append([]byte(nil), lo...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	out := make(map[uint32]uint64)
	for it.First(); it.Valid(); it.Next() {
		p, ok := partitionFromKey(it.Key(), group)
		if !ok {
			continue
		}
		v := it.Value()
		if len(v) < 8 {
			continue
		}
		out[p] = binary.BigEndian.Uint64(v[:8])
	}
	return out, it.Error()
}

// Groups lists every group with at least one committed offset.
func (s *PebbleStore) Groups() ([]string, error) {
	hi := append(append([]byte(nil), prefix...), 0xFF)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	seen := make(map[string]struct{})
	for it.First(); it.Valid(); it.Next() {
		k := it.Key()
		rest := k[len(prefix):]
		if len(rest) < 5 {
			continue
		}
		seen[string(rest[:len(rest)-5])] = struct{}{}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups, nil
}

// MemoryStore is an in-process Store for tests and ephemeral pipelines.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[uint32]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[uint32]uint64)}
}

func (s *MemoryStore) Commit(group string, partition uint32, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.data[group]
	if !ok {
		g = make(map[uint32]uint64)
		s.data[group] = g
	}
	next := offset + 1
	if next > g[partition] {
		g[partition] = next
	}
	return nil
}

func (s *MemoryStore) Fetch(group string, partition uint32) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, ok := s.data[group][partition]
	return off, ok
}

func (s *MemoryStore) Snapshot(group string) (map[uint32]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint32]uint64, len(s.data[group]))
	for p, off := range s.data[group] {
		out[p] = off
	}
	return out, nil
}
