package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/natlog/internal/checkpoint"
	"github.com/rzbill/natlog/internal/commitlog"
	"github.com/rzbill/natlog/internal/deadletter"
	"github.com/rzbill/natlog/internal/dedup"
	"github.com/rzbill/natlog/internal/offsets"
	"github.com/rzbill/natlog/internal/telemetry"
	logpkg "github.com/rzbill/natlog/pkg/log"
)

// Handler applies one record's effect. A non-nil error triggers the retry
// policy; exceeding the handler timeout counts as an error.
type Handler func(ctx context.Context, rec commitlog.Record) error

// ErrHandlerTimeout reports a handler attempt that outran its deadline.
var ErrHandlerTimeout = errors.New("executor: handler timed out")

const (
	DefaultBatchSize      = 64
	DefaultHandlerTimeout = 30 * time.Second
	DefaultPollInterval   = 250 * time.Millisecond
)

// Options wires an Executor to its log, stores, and handler.
type Options struct {
	// Group names this consumer; offsets, dedup state, dead letters, and
	// checkpoints are all scoped by it.
	Group string
	// Handler is required.
	Handler Handler
	// HandlerTimeout bounds a single attempt. Zero means DefaultHandlerTimeout.
	HandlerTimeout time.Duration
	// MaxConcurrent caps how many partitions may run a batch at once. Zero
	// means the partition count (no cross-partition throttling).
	MaxConcurrent int
	// BatchSize is the read size per partition turn.
	BatchSize int
	// PollInterval bounds how long an idle partition blocks waiting for an
	// append before rechecking ctx.
	PollInterval time.Duration
	// Retry shapes backoff and the dead-letter threshold.
	Retry deadletter.Policy

	// Offsets is required.
	Offsets offsets.Store
	// Dedup defaults to a bounded memory store.
	Dedup dedup.Store
	// DeadLetters defaults to a memory sink.
	DeadLetters deadletter.Sink
	// Checkpoints, when set, is loaded for resume positions and written
	// periodically while running.
	Checkpoints *checkpoint.Store
	// CheckpointInterval applies when Checkpoints is set.
	CheckpointInterval time.Duration
	// CheckpointState, when set, supplies the opaque state blob stored inside
	// each snapshot.
	CheckpointState func() []byte

	Telemetry telemetry.Sink
	Logger    logpkg.Logger
}

// Executor drives every partition of a log as its own ordered pipeline.
// Records within a partition are processed strictly in offset order, one at a
// time; partitions progress independently, bounded by MaxConcurrent.
type Executor struct {
	log     *commitlog.Log
	opts    Options
	router  *deadletter.Router
	sink    telemetry.Sink
	logger  logpkg.Logger
	ckptMgr *checkpoint.Manager

	mu       sync.Mutex
	resume   map[uint32]uint64 // next offset per partition, updated on commit
	running  bool
	lastErrs map[uint32]error
}

// New validates options and builds an Executor. Run must be called to start
// processing.
func New(log *commitlog.Log, opts Options) (*Executor, error) {
	if log == nil {
		return nil, errors.New("executor: log is required")
	}
	if opts.Group == "" {
		return nil, errors.New("executor: Options.Group is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("executor: Options.Handler is required")
	}
	if opts.Offsets == nil {
		return nil, errors.New("executor: Options.Offsets is required")
	}
	if opts.Dedup == nil {
		opts.Dedup = dedup.NewMemoryStore(dedup.MemoryOptions{})
	}
	if opts.DeadLetters == nil {
		opts.DeadLetters = deadletter.NewMemorySink()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewTestLogger()
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = DefaultHandlerTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxConcurrent <= 0 || opts.MaxConcurrent > log.NumPartitions() {
		opts.MaxConcurrent = log.NumPartitions()
	}

	e := &Executor{
		log:      log,
		opts:     opts,
		router:   deadletter.NewRouter(opts.Group, opts.Retry, opts.DeadLetters, opts.Telemetry),
		sink:     opts.Telemetry,
		logger:   opts.Logger.WithComponent("executor").With(logpkg.Str("group", opts.Group)),
		resume:   make(map[uint32]uint64),
		lastErrs: make(map[uint32]error),
	}
	if opts.Checkpoints != nil {
		e.ckptMgr = checkpoint.NewManager(opts.Checkpoints, opts.CheckpointInterval, e.snapshot, opts.Logger)
	}
	return e, nil
}

// Run processes records until ctx is cancelled, then drains in-flight work
// and flushes a final checkpoint. It returns the first partition-fatal error,
// or nil on clean shutdown.
func (e *Executor) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("executor: already running")
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	starts, err := e.resumeOffsets()
	if err != nil {
		return err
	}
	e.logger.Info("starting", logpkg.Int("partitions", e.log.NumPartitions()),
		logpkg.Int("max_concurrent", e.opts.MaxConcurrent))

	var ckptWg sync.WaitGroup
	if e.ckptMgr != nil {
		ckptWg.Add(1)
		go func() {
			defer ckptWg.Done()
			e.ckptMgr.Run(ctx)
		}()
	}

	slots := make(chan struct{}, e.opts.MaxConcurrent)
	var wg sync.WaitGroup
	for p := 0; p < e.log.NumPartitions(); p++ {
		wg.Add(1)
		go func(p uint32) {
			defer wg.Done()
			e.runPartition(ctx, p, starts[p], slots)
		}(uint32(p))
	}
	wg.Wait()
	ckptWg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for p, perr := range e.lastErrs {
		if perr != nil {
			return fmt.Errorf("executor: partition %d stopped: %w", p, perr)
		}
	}
	return nil
}

// resumeOffsets resolves each partition's start position: checkpoint first,
// then the offset store, then zero.
func (e *Executor) resumeOffsets() (map[uint32]uint64, error) {
	starts := make(map[uint32]uint64, e.log.NumPartitions())

	var snap checkpoint.Snapshot
	haveSnap := false
	if e.opts.Checkpoints != nil {
		s, err := e.opts.Checkpoints.Load()
		if err == nil {
			snap, haveSnap = s, true
		} else if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
			return nil, err
		}
	}

	for p := 0; p < e.log.NumPartitions(); p++ {
		part := uint32(p)
		if haveSnap {
			if off, ok := snap.Offsets[part]; ok {
				starts[part] = off
				continue
			}
		}
		if off, ok := e.opts.Offsets.Fetch(e.opts.Group, part); ok {
			starts[part] = off
			continue
		}
		starts[part] = 0
	}

	e.mu.Lock()
	for p, off := range starts {
		e.resume[p] = off
	}
	e.mu.Unlock()
	return starts, nil
}

// runPartition is the per-partition loop: take a slot, process one batch in
// offset order, release the slot, wait for more data when caught up.
func (e *Executor) runPartition(ctx context.Context, p uint32, start uint64, slots chan struct{}) {
	reader, err := e.log.NewReader(p, start)
	if err != nil {
		e.partitionStopped(p, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			e.partitionStopped(p, nil)
			return
		case slots <- struct{}{}:
		}

		recs, err := reader.Next(e.opts.BatchSize)
		if err != nil {
			<-slots
			e.partitionStopped(p, err)
			return
		}
		for _, rec := range recs {
			// a shutdown signal stops delivery at the record boundary; the
			// rest of the batch is redelivered on the next start
			if ctx.Err() != nil {
				<-slots
				e.partitionStopped(p, nil)
				return
			}
			if err := e.process(ctx, rec, slots); err != nil {
				<-slots
				e.partitionStopped(p, err)
				return
			}
		}
		<-slots

		if len(recs) == 0 {
			if !e.log.WaitForAppend(p, e.opts.PollInterval) {
				select {
				case <-ctx.Done():
					e.partitionStopped(p, nil)
					return
				default:
				}
			}
		}
	}
}

// process applies one record's effect exactly once: admit, attempt with
// retries, confirm, commit. A ctx cancellation mid-retry returns nil so the
// record is redelivered on the next start; anything else returned here stops
// the partition. The worker slot is given back for the duration of each retry
// backoff so a backing-off partition never starves the others.
func (e *Executor) process(ctx context.Context, rec commitlog.Record, slots chan struct{}) error {
	fresh, err := e.opts.Dedup.Admit(rec.ID)
	if err != nil {
		return fmt.Errorf("dedup admit: %w", err)
	}
	if !fresh {
		e.sink.DuplicateSkipped(e.opts.Group, rec.Partition)
		return e.commit(rec)
	}

	for attempt := 1; ; attempt++ {
		err := e.attempt(ctx, rec)
		if err == nil {
			if err := e.opts.Dedup.Confirm(rec.ID); err != nil {
				return fmt.Errorf("dedup confirm: %w", err)
			}
			return e.commit(rec)
		}
		if ctx.Err() != nil {
			// shutting down mid-record: leave it uncommitted for redelivery
			return nil
		}

		decision, delay, routeErr := e.router.Failed(ctx, rec, attempt, err)
		if routeErr != nil {
			return fmt.Errorf("dead-letter store: %w", routeErr)
		}
		if decision == deadletter.DecisionDeadLetter {
			e.logger.Warn("record dead-lettered",
				logpkg.Uint32("partition", rec.Partition),
				logpkg.Uint64("offset", rec.Offset),
				logpkg.Int("attempts", attempt),
				logpkg.Err(err))
			return e.commit(rec)
		}
		e.logger.Debug("handler failed, retrying",
			logpkg.Uint32("partition", rec.Partition),
			logpkg.Uint64("offset", rec.Offset),
			logpkg.Int("attempt", attempt),
			logpkg.Err(err))
		<-slots
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		// slot counts are conserved, so this send can always complete
		slots <- struct{}{}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// attempt runs the handler once under the configured timeout.
func (e *Executor) attempt(ctx context.Context, rec commitlog.Record) error {
	hctx, cancel := context.WithTimeout(ctx, e.opts.HandlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.opts.Handler(hctx, rec)
	}()
	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrHandlerTimeout
	}
}

// commit advances the durable offset and the in-memory resume map.
func (e *Executor) commit(rec commitlog.Record) error {
	if err := e.opts.Offsets.Commit(e.opts.Group, rec.Partition, rec.Offset); err != nil {
		return fmt.Errorf("offset commit: %w", err)
	}
	e.mu.Lock()
	if next := rec.Offset + 1; next > e.resume[rec.Partition] {
		e.resume[rec.Partition] = next
	}
	e.mu.Unlock()
	e.sink.RecordCommitted(e.opts.Group, rec.Partition, rec.Offset)
	return nil
}

func (e *Executor) partitionStopped(p uint32, err error) {
	if err != nil {
		e.logger.Error("partition stopped", logpkg.Uint32("partition", p), logpkg.Err(err))
	}
	e.mu.Lock()
	e.lastErrs[p] = err
	e.mu.Unlock()
}

// snapshot builds the checkpoint payload from current resume positions.
func (e *Executor) snapshot() checkpoint.Snapshot {
	e.mu.Lock()
	offs := make(map[uint32]uint64, len(e.resume))
	for p, off := range e.resume {
		offs[p] = off
	}
	e.mu.Unlock()

	snap := checkpoint.Snapshot{
		Group:      e.opts.Group,
		SnapshotMs: time.Now().UnixMilli(),
		Offsets:    offs,
	}
	if e.opts.CheckpointState != nil {
		snap.State = e.opts.CheckpointState()
	}
	return snap
}

// ResumeOffsets returns a copy of the current per-partition resume positions.
func (e *Executor) ResumeOffsets() map[uint32]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[uint32]uint64, len(e.resume))
	for p, off := range e.resume {
		out[p] = off
	}
	return out
}
