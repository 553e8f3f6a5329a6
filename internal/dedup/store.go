package dedup

import (
	"container/list"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/natlog/internal/storage/pebble"
	"github.com/rzbill/natlog/pkg/id"
)

// Store tracks which record ids have had their effect applied. Admit asks
// whether an id is fresh; Confirm marks it processed. Only confirmed ids are
// duplicates: an id admitted but never confirmed (handler failed, process
// crashed) is admitted again on redelivery.
type Store interface {
	Admit(recID id.ID) (bool, error)
	Confirm(recID id.ID) error
}

// DefaultMaxEntries bounds the memory store unless configured otherwise.
const DefaultMaxEntries = 1 << 20

// MemoryStore is a bounded in-process Store. It is not crash-durable: after a
// restart every id is fresh again, which downgrades delivery to at-least-once
// for the window since the last confirm.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[id.ID]*list.Element
	order      *list.List // confirm order, oldest at front
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type memEntry struct {
	id          id.ID
	confirmedAt time.Time
}

// MemoryOptions bounds the memory store.
type MemoryOptions struct {
	// MaxEntries caps the confirmed set; the oldest confirmation is evicted
	// first. Zero means DefaultMaxEntries.
	MaxEntries int
	// TTL expires confirmations by age. Zero disables age-based expiry.
	TTL time.Duration
}

func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[id.ID]*list.Element),
		order:      list.New(),
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		now:        time.Now,
	}
}

func (s *MemoryStore) Admit(recID id.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[recID]
	if !ok {
		return true, nil
	}
	if s.ttl > 0 && s.now().Sub(el.Value.(*memEntry).confirmedAt) > s.ttl {
		s.order.Remove(el)
		delete(s.entries, recID)
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) Confirm(recID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[recID]; ok {
		el.Value.(*memEntry).confirmedAt = s.now()
		s.order.MoveToBack(el)
		return nil
	}
	s.entries[recID] = s.order.PushBack(&memEntry{id: recID, confirmedAt: s.now()})
	for len(s.entries) > s.maxEntries {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*memEntry).id)
	}
	return nil
}

// Len reports the confirmed-set size.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// PebbleStore is the durable Store variant. Confirmations survive restarts,
// which is what closes the exactly-once-effect gap the memory store leaves
// open. Keys are scoped by group so pipelines do not share dedup state.
type PebbleStore struct {
	db    *pebblestore.DB
	group string
	ttl   time.Duration
	now   func() time.Time
}

// NewPebbleStore scopes a durable dedup store to a group. TTL of zero keeps
// confirmations forever; pair a nonzero TTL with periodic Sweep calls.
func NewPebbleStore(db *pebblestore.DB, group string, ttl time.Duration) *PebbleStore {
	return &PebbleStore{db: db, group: group, ttl: ttl, now: time.Now}
}

func (s *PebbleStore) key(recID id.ID) []byte {
	k := make([]byte, 0, 6+len(s.group)+1+16)
	k = append(k, "dedup/"...)
	k = append(k, s.group...)
	k = append(k, '/')
	k = append(k, recID[:]...)
	return k
}

func (s *PebbleStore) Admit(recID id.ID) (bool, error) {
	v, err := s.db.Get(s.key(recID))
	if errors.Is(err, pebble.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if s.ttl > 0 && len(v) >= 8 {
		confirmedMs := int64(binary.BigEndian.Uint64(v[:8]))
		if s.now().UnixMilli()-confirmedMs > s.ttl.Milliseconds() {
			return true, nil
		}
	}
	return false, nil
}

func (s *PebbleStore) Confirm(recID id.ID) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(s.now().UnixMilli()))
	return s.db.Set(s.key(recID), b[:])
}

// Sweep deletes confirmations older than the TTL and returns how many were
// removed. A no-op when TTL is disabled.
func (s *PebbleStore) Sweep() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	lo := s.key(id.ID{})
	lo = lo[:len(lo)-16]
	hi := append(append([]byte(nil), lo...), 0xFF)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}

	cutoff := s.now().UnixMilli() - s.ttl.Milliseconds()
	var expired [][]byte
	for it.First(); it.Valid(); it.Next() {
		v := it.Value()
		if len(v) < 8 {
			continue
		}
		if int64(binary.BigEndian.Uint64(v[:8])) <= cutoff {
			expired = append(expired, append([]byte(nil), it.Key()...))
		}
	}
	if err := it.Error(); err != nil {
		it.Close()
		return 0, err
	}
	if err := it.Close(); err != nil {
		return 0, err
	}

	for _, k := range expired {
		if err := s.db.Delete(k); err != nil {
			return 0, err
		}
	}
	// reclaim the tombstoned range so long-running sweeps keep the store flat
	if len(expired) > 0 {
		if err := s.db.CompactRange(lo, hi); err != nil {
			return len(expired), err
		}
	}
	return len(expired), nil
}
