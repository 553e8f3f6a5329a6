package deadletter

import (
	"context"
	"time"

	"github.com/rzbill/natlog/internal/commitlog"
	"github.com/rzbill/natlog/internal/telemetry"
)

// Decision is the router's verdict for a failed delivery.
type Decision int

const (
	// DecisionRetry schedules another attempt after the returned backoff.
	DecisionRetry Decision = iota
	// DecisionDeadLetter parks the record in the sink; the caller commits the
	// offset and moves on.
	DecisionDeadLetter
)

// Policy bounds retries and shapes the backoff curve.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt. A record
	// failing attempt MaxRetries+1 is dead-lettered.
	MaxRetries int
	// Backoff is the delay before the first retry.
	Backoff time.Duration
	// BackoffMultiplier grows the delay per retry. Values below 1 mean no
	// growth.
	BackoffMultiplier float64
	// MaxBackoff caps the delay. Zero means uncapped.
	MaxBackoff time.Duration
}

// DefaultPolicy retries three times with doubling backoff from 100ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		Backoff:           100 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        5 * time.Second,
	}
}

// delay computes the backoff before retry number n (1-based).
func (p Policy) delay(n int) time.Duration {
	d := p.Backoff
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	for i := 1; i < n; i++ {
		if p.BackoffMultiplier > 1 {
			d = time.Duration(float64(d) * p.BackoffMultiplier)
		}
		if p.MaxBackoff > 0 && d > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Router decides, per failed delivery, between another retry and parking the
// record. Dead-lettering never blocks the partition: the executor commits the
// offset right after the sink write so later records keep flowing.
type Router struct {
	policy Policy
	sink   Sink
	group  string
	sinkTm telemetry.Sink
	now    func() time.Time
}

// NewRouter builds a router for one consumer group.
func NewRouter(group string, policy Policy, sink Sink, tm telemetry.Sink) *Router {
	if sink == nil {
		sink = NewMemorySink()
	}
	if tm == nil {
		tm = telemetry.Noop{}
	}
	return &Router{policy: policy, sink: sink, group: group, sinkTm: tm, now: time.Now}
}

// Failed routes one failed delivery. attempt counts deliveries so far,
// starting at 1 for the first. On DecisionRetry the returned duration is how
// long to wait before redelivering.
func (r *Router) Failed(ctx context.Context, rec commitlog.Record, attempt int, cause error) (Decision, time.Duration, error) {
	if attempt <= r.policy.MaxRetries {
		r.sinkTm.HandlerRetried(r.group, rec.Partition)
		return DecisionRetry, r.policy.delay(attempt), nil
	}

	e := Entry{
		ID:               rec.ID.String(),
		Partition:        rec.Partition,
		Offset:           rec.Offset,
		Key:              rec.Key,
		Value:            rec.Value,
		CreatedAtMs:      rec.CreatedAtMs,
		Attempts:         attempt,
		DeadLetteredAtMs: r.now().UnixMilli(),
	}
	if cause != nil {
		e.LastError = cause.Error()
	}
	if err := r.sink.Store(ctx, r.group, e); err != nil {
		return DecisionDeadLetter, 0, err
	}
	r.sinkTm.RecordDeadLettered(r.group, rec.Partition)
	return DecisionDeadLetter, 0, nil
}
