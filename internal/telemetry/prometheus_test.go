package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromSinkCounters(t *testing.T) {
	s := NewPromSink()
	s.RecordAppended(0, 3)
	s.RecordAppended(0, 2)
	s.RecordCommitted("g1", 0, 4)
	s.RecordDeadLettered("g1", 1)
	s.DuplicateSkipped("g1", 0)
	s.HandlerRetried("g1", 0)

	if got := testutil.ToFloat64(s.appended.WithLabelValues("0")); got != 5 {
		t.Fatalf("appended: got %v want 5", got)
	}
	if got := testutil.ToFloat64(s.committed.WithLabelValues("g1", "0")); got != 1 {
		t.Fatalf("committed: got %v want 1", got)
	}
	if got := testutil.ToFloat64(s.deadLettered.WithLabelValues("g1", "1")); got != 1 {
		t.Fatalf("dead lettered: got %v want 1", got)
	}
}

func TestNoopSinkIsSilent(t *testing.T) {
	var s Sink = Noop{}
	s.RecordAppended(0, 1)
	s.RecordCommitted("g", 0, 0)
	s.RecordDeadLettered("g", 0)
	s.DuplicateSkipped("g", 0)
	s.HandlerRetried("g", 0)
}
