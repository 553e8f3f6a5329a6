package commitlog

// Reader is a sequential, offset-addressed cursor over one partition. It is
// restartable from any valid offset and never interferes with the writer:
// it only scans bytes below the partition's verified tail.
type Reader struct {
	pt   *partition
	next uint64
}

// Next returns up to max records from the current position and advances past
// them. An empty result means the reader caught up with the tail.
func (r *Reader) Next(max int) ([]Record, error) {
	recs, err := r.pt.read(r.next, max)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		r.next = recs[len(recs)-1].Offset + 1
	}
	return recs, nil
}

// Offset returns the next offset the reader will deliver.
func (r *Reader) Offset() uint64 { return r.next }

// Seek repositions the reader.
func (r *Reader) Seek(offset uint64) { r.next = offset }

// Tail returns the partition's current tail offset.
func (r *Reader) Tail() uint64 { return r.pt.tailOffset() }
