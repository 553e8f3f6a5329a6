package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rzbill/natlog/internal/checkpoint"
	"github.com/rzbill/natlog/internal/commitlog"
	cfgpkg "github.com/rzbill/natlog/internal/config"
	"github.com/rzbill/natlog/internal/deadletter"
	"github.com/rzbill/natlog/internal/dedup"
	"github.com/rzbill/natlog/internal/executor"
	"github.com/rzbill/natlog/internal/offsets"
	pebblestore "github.com/rzbill/natlog/internal/storage/pebble"
	"github.com/rzbill/natlog/internal/telemetry"
	logpkg "github.com/rzbill/natlog/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
}

// Runtime wires the commit log, state storage, and telemetry for a
// single-node instance. It is the composition root every entry point (CLI,
// embedded use, tests) goes through.
type Runtime struct {
	config cfgpkg.Config
	logger logpkg.Logger
	log    *commitlog.Log
	db     *pebblestore.DB
	sink   telemetry.Sink
	prom   *telemetry.PromSink
}

// Open initializes storage under the configured data directory and returns a
// Runtime. Layout: <dir>/log for segments, <dir>/state for the embedded
// database, <dir>/checkpoints for snapshots.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}

	var sink telemetry.Sink = telemetry.Noop{}
	var prom *telemetry.PromSink
	if cfg.Metrics.Enabled {
		prom = telemetry.NewPromSink()
		sink = prom
		if cfg.Metrics.Addr != "" {
			prom.Expose(cfg.Metrics.Addr)
		}
	}

	syncMode, err := commitlog.ParseSyncMode(cfg.Log.Sync)
	if err != nil {
		return nil, err
	}
	log, err := commitlog.Open(commitlog.Options{
		Dir:             filepath.Join(cfg.DataDir, "log"),
		Partitions:      cfg.Log.Partitions,
		SegmentMaxBytes: cfg.Log.SegmentMaxBytes,
		Sync:            syncMode,
		SyncInterval:    time.Duration(cfg.Log.SyncIntervalMs) * time.Millisecond,
		Telemetry:       sink,
	})
	if err != nil {
		return nil, err
	}

	fsync, err := pebblestore.ParseFsyncMode(cfg.State.Fsync)
	if err != nil {
		_ = log.Close()
		return nil, err
	}
	pebbleOpts := pebblestore.Options{
		DataDir:       filepath.Join(cfg.DataDir, "state"),
		Fsync:         fsync,
		FsyncInterval: time.Duration(cfg.State.FsyncIntervalMs) * time.Millisecond,
		Logger:        logger.WithComponent("pebble"),
	}
	if prom != nil {
		pebbleOpts.Metrics = telemetry.NewStorageMetrics(prom)
	}
	db, err := pebblestore.Open(pebbleOpts)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	return &Runtime{
		config: cfg,
		logger: logger,
		log:    log,
		db:     db,
		sink:   sink,
		prom:   prom,
	}, nil
}

// Close releases the log and state database.
func (r *Runtime) Close() error {
	var firstErr error
	if r.log != nil {
		if err := r.log.Close(); err != nil {
			firstErr = err
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckHealth verifies both storage layers respond.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.log == nil || r.db == nil {
		return errors.New("runtime not open")
	}
	if _, err := r.log.TailOffset(0); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Log exposes the commit log.
func (r *Runtime) Log() *commitlog.Log { return r.log }

// DB exposes the state database for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// OffsetStore returns the durable offset store.
func (r *Runtime) OffsetStore() *offsets.PebbleStore {
	return offsets.NewPebbleStore(r.db)
}

// DedupStore builds the configured dedup store for a group.
func (r *Runtime) DedupStore(group string) dedup.Store {
	if r.config.Dedup.Durable {
		return dedup.NewPebbleStore(r.db, group, time.Duration(r.config.Dedup.TTLMs)*time.Millisecond)
	}
	return dedup.NewMemoryStore(dedup.MemoryOptions{
		MaxEntries: r.config.Dedup.MaxEntries,
		TTL:        time.Duration(r.config.Dedup.TTLMs) * time.Millisecond,
	})
}

// DeadLetterSink returns the durable dead-letter sink.
func (r *Runtime) DeadLetterSink() *deadletter.PebbleSink {
	return deadletter.NewPebbleSink(r.db)
}

// CheckpointStore returns the snapshot store for a group.
func (r *Runtime) CheckpointStore(group string) *checkpoint.Store {
	return checkpoint.NewStore(filepath.Join(r.config.DataDir, "checkpoints"), group, r.logger)
}

// NewExecutor assembles an executor for a group from configured stores.
func (r *Runtime) NewExecutor(group string, handler executor.Handler) (*executor.Executor, error) {
	ec := r.config.Executor
	return executor.New(r.log, executor.Options{
		Group:          group,
		Handler:        handler,
		HandlerTimeout: time.Duration(ec.HandlerTimeoutMs) * time.Millisecond,
		MaxConcurrent:  ec.MaxConcurrent,
		BatchSize:      ec.BatchSize,
		PollInterval:   time.Duration(ec.PollIntervalMs) * time.Millisecond,
		Retry: deadletter.Policy{
			MaxRetries:        ec.MaxRetries,
			Backoff:           time.Duration(ec.BackoffMs) * time.Millisecond,
			BackoffMultiplier: ec.BackoffMultiplier,
			MaxBackoff:        time.Duration(ec.MaxBackoffMs) * time.Millisecond,
		},
		Offsets:            r.OffsetStore(),
		Dedup:              r.DedupStore(group),
		DeadLetters:        r.DeadLetterSink(),
		Checkpoints:        r.CheckpointStore(group),
		CheckpointInterval: time.Duration(r.config.Checkpoint.IntervalMs) * time.Millisecond,
		Telemetry:          r.sink,
		Logger:             r.logger,
	})
}
