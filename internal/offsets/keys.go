package offsets

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - offsets/{group}/{part_be4}

var (
	sep    = byte('/')
	prefix = []byte("offsets/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// keyOffset builds the durable committed-offset key for a group and partition.
func keyOffset(group string, partition uint32) []byte {
	k := make([]byte, 0, len(prefix)+len(group)+8)
	k = append(k, prefix...)
	k = append(k, group...)
	k = append(k, sep)
	k = appendBE4(k, partition)
	return k
}

// keyGroupPrefix returns a range prefix covering all partitions of a group.
func keyGroupPrefix(group string) []byte {
	k := make([]byte, 0, len(prefix)+len(group)+1)
	k = append(k, prefix...)
	k = append(k, group...)
	k = append(k, sep)
	return k
}

// partitionFromKey recovers the partition from a full offset key.
func partitionFromKey(key []byte, group string) (uint32, bool) {
	want := len(prefix) + len(group) + 1 + 4
	if len(key) != want {
		return 0, false
	}
	return binary.BigEndian.Uint32(key[want-4:]), true
}
