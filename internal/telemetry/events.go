package telemetry

// Sink receives discrete processing events. Implementations must be safe for
// concurrent use; calls happen on the hot path and should not block.
type Sink interface {
	// RecordAppended fires after records are durably appended to a partition.
	RecordAppended(partition uint32, count int)
	// RecordCommitted fires after a group commits an offset.
	RecordCommitted(group string, partition uint32, offset uint64)
	// RecordDeadLettered fires when a record is routed to the dead-letter sink.
	RecordDeadLettered(group string, partition uint32)
	// DuplicateSkipped fires when dedup admission rejects an already-applied record.
	DuplicateSkipped(group string, partition uint32)
	// HandlerRetried fires on each handler retry attempt.
	HandlerRetried(group string, partition uint32)
}

// Noop discards all events.
type Noop struct{}

func (Noop) RecordAppended(uint32, int)             {}
func (Noop) RecordCommitted(string, uint32, uint64) {}
func (Noop) RecordDeadLettered(string, uint32)      {}
func (Noop) DuplicateSkipped(string, uint32)        {}
func (Noop) HandlerRetried(string, uint32)          {}
