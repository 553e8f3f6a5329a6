package config

import (
	"os"
	"strconv"
)

// FromEnv overlays NATLOG_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("NATLOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NATLOG_LOG_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Log.Partitions = n
		}
	}
	if v := os.Getenv("NATLOG_LOG_SEGMENT_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Log.SegmentMaxBytes = n
		}
	}
	if v := os.Getenv("NATLOG_LOG_SYNC"); v != "" {
		cfg.Log.Sync = v
	}
	if v := os.Getenv("NATLOG_LOG_SYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Log.SyncIntervalMs = n
		}
	}
	if v := os.Getenv("NATLOG_STATE_FSYNC"); v != "" {
		cfg.State.Fsync = v
	}
	if v := os.Getenv("NATLOG_EXECUTOR_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.MaxConcurrent = n
		}
	}
	if v := os.Getenv("NATLOG_EXECUTOR_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.BatchSize = n
		}
	}
	if v := os.Getenv("NATLOG_EXECUTOR_HANDLER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.HandlerTimeoutMs = n
		}
	}
	if v := os.Getenv("NATLOG_EXECUTOR_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.MaxRetries = n
		}
	}
	if v := os.Getenv("NATLOG_EXECUTOR_BACKOFF_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.BackoffMs = n
		}
	}
	if v := os.Getenv("NATLOG_DEDUP_DURABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Dedup.Durable = b
		}
	}
	if v := os.Getenv("NATLOG_DEDUP_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.MaxEntries = n
		}
	}
	if v := os.Getenv("NATLOG_DEDUP_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Dedup.TTLMs = n
		}
	}
	if v := os.Getenv("NATLOG_CHECKPOINT_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Checkpoint.IntervalMs = n
		}
	}
	if v := os.Getenv("NATLOG_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("NATLOG_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}
