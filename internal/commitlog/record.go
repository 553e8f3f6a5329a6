package commitlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/rzbill/natlog/pkg/id"
)

// Frame: length(4B BE) | crc32c(4B BE) | payload. Length and CRC cover the
// payload only.
//
// Payload: id(16) | created_at_ms(8 BE) | offset(8 BE) | uvarint keyLen | key | value.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const (
	frameHeaderSize  = 8
	payloadFixedSize = 16 + 8 + 8
)

// ErrCorrupt reports a record whose frame failed length or CRC verification.
var ErrCorrupt = errors.New("commitlog: corrupt record")

// ErrNotFound reports a read at an offset the partition does not contain.
var ErrNotFound = errors.New("commitlog: offset not found")

// Record is the immutable unit of data appended to a partition. Records are
// value types: decoded byte slices are copies, never views into log buffers.
type Record struct {
	ID          id.ID
	Key         []byte
	Value       []byte
	CreatedAtMs int64
	Partition   uint32
	Offset      uint64
}

// IOError wraps a partition-scoped I/O failure so operators can tell disk
// problems apart from handler-level failures.
type IOError struct {
	Partition uint32
	Op        string
	Err       error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("commitlog: partition %d: %s: %v", e.Partition, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// encodePayload serializes the record body covered by the frame CRC.
func encodePayload(r Record) []byte {
	var klen [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(klen[:], uint64(len(r.Key)))

	out := make([]byte, 0, payloadFixedSize+n+len(r.Key)+len(r.Value))
	out = append(out, r.ID[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(r.CreatedAtMs))
	out = binary.BigEndian.AppendUint64(out, r.Offset)
	out = append(out, klen[:n]...)
	out = append(out, r.Key...)
	out = append(out, r.Value...)
	return out
}

// decodePayload parses a verified payload. Key and value are copied out.
func decodePayload(b []byte, partition uint32) (Record, error) {
	if len(b) < payloadFixedSize+1 {
		return Record{}, ErrCorrupt
	}
	var rec Record
	copy(rec.ID[:], b[:16])
	rec.CreatedAtMs = int64(binary.BigEndian.Uint64(b[16:24]))
	rec.Offset = binary.BigEndian.Uint64(b[24:32])
	rec.Partition = partition

	rest := b[payloadFixedSize:]
	klen, n := binary.Uvarint(rest)
	if n <= 0 || int(klen) > len(rest)-n {
		return Record{}, ErrCorrupt
	}
	rec.Key = append([]byte(nil), rest[n:n+int(klen)]...)
	rec.Value = append([]byte(nil), rest[n+int(klen):]...)
	return rec, nil
}

// encodeFrame wraps a payload with its length and CRC header.
func encodeFrame(payload []byte) []byte {
	out := make([]byte, frameHeaderSize, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(out[4:8], crc32.Checksum(payload, castagnoli))
	return append(out, payload...)
}

// verifyFrame checks a payload against the CRC from its frame header.
func verifyFrame(header []byte, payload []byte) bool {
	want := binary.BigEndian.Uint32(header[4:8])
	return crc32.Checksum(payload, castagnoli) == want
}
