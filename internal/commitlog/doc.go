// Package commitlog implements natlog's partitioned, append-only commit log.
//
// # Overview
//
// A log instance owns a directory with one subdirectory per partition, each
// holding size-bounded segment files named by the first offset they contain:
//
//	<dir>/meta.json                      (partition count, fixed per instance)
//	<dir>/partition-0/00000000000000000000.log
//	<dir>/partition-0/00000000000000004096.log
//	...
//
// Records are framed as length(4B BE) | crc32c(4B BE) | payload, where length
// and CRC cover the payload only. The payload encodes
// id(16) | created_at_ms(8 BE) | offset(8 BE) | uvarint keyLen | key | value.
//
// Offsets within a partition are dense and strictly increasing from 0 and
// continue monotonically across segment rotations. A record's
// (partition, offset) pair is a permanent address.
//
// # Crash recovery
//
// Opening a partition scans its active segment frame by frame. A frame whose
// declared length exceeds the remaining file bytes, or whose CRC does not
// match, marks the start of a corrupt tail: the file is truncated to the last
// verified boundary and appends resume there. A crash mid-write can only lose
// the last not-yet-synced record, never earlier data.
//
// # API surface (internal)
//
//	l, _ := commitlog.Open(commitlog.Options{Dir: dir, Partitions: 4})
//	p, off, _ := l.Append(ctx, []byte("user-1"), payload, time.Now().UnixMilli())
//	recs, _ := l.Read(p, 0, 100)
//	tail, _ := l.TailOffset(p)
//
//	// Blocking wait/notify for tail followers
//	woke := l.WaitForAppend(p, 200*time.Millisecond)
//	_ = woke
//
// Appends are single-writer per partition. Reads are independent sequential
// scans over the segment files and never interfere with the writer.
package commitlog
