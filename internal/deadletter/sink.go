package deadletter

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/natlog/internal/storage/pebble"
	"github.com/rzbill/natlog/pkg/id"
)

// Entry is a parked record plus its failure history.
type Entry struct {
	ID               string `json:"id"`
	Partition        uint32 `json:"partition"`
	Offset           uint64 `json:"offset"`
	Key              []byte `json:"key,omitempty"`
	Value            []byte `json:"value,omitempty"`
	CreatedAtMs      int64  `json:"created_at_ms"`
	Attempts         int    `json:"attempts"`
	LastError        string `json:"last_error,omitempty"`
	DeadLetteredAtMs int64  `json:"dead_lettered_at_ms"`
}

// Sink stores dead-lettered entries.
type Sink interface {
	Store(ctx context.Context, group string, e Entry) error
}

// PebbleSink persists entries in the shared state database under
// dlq/{group}/{id}. The raw 16-byte id keeps entries sorted by creation time.
type PebbleSink struct {
	db *pebblestore.DB
}

func NewPebbleSink(db *pebblestore.DB) *PebbleSink {
	return &PebbleSink{db: db}
}

func dlqKey(group string, rawID id.ID) []byte {
	k := make([]byte, 0, 4+len(group)+1+16)
	k = append(k, "dlq/"...)
	k = append(k, group...)
	k = append(k, '/')
	k = append(k, rawID[:]...)
	return k
}

func (s *PebbleSink) Store(ctx context.Context, group string, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rawID, err := id.FromHex(e.ID)
	if err != nil {
		return err
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Set(dlqKey(group, rawID), val)
}

// List returns up to max parked entries for a group, oldest first. max <= 0
// means no limit.
func (s *PebbleSink) List(group string, max int) ([]Entry, error) {
	lo := dlqKey(group, id.ID{})
	lo = lo[:len(lo)-16]
	hi := append(append([]byte(nil), lo...), 0xFF)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Entry
	for it.First(); it.Valid(); it.Next() {
		if max > 0 && len(out) >= max {
			break
		}
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, it.Error()
}

// Remove deletes one parked entry, for operator replay tooling.
func (s *PebbleSink) Remove(group string, entryID string) error {
	rawID, err := id.FromHex(entryID)
	if err != nil {
		return err
	}
	return s.db.Delete(dlqKey(group, rawID))
}

// MemorySink collects entries in memory, for tests and ephemeral pipelines.
type MemorySink struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{entries: make(map[string][]Entry)}
}

func (s *MemorySink) Store(_ context.Context, group string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[group] = append(s.entries[group], e)
	return nil
}

// Entries returns a copy of the group's parked entries in arrival order.
func (s *MemorySink) Entries(group string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries[group]...)
}
