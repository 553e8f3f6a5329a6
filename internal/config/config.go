package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir    string           `json:"dataDir"`
	Log        LogConfig        `json:"log"`
	State      StateConfig      `json:"state"`
	Executor   ExecutorConfig   `json:"executor"`
	Dedup      DedupConfig      `json:"dedup"`
	Checkpoint CheckpointConfig `json:"checkpoint"`
	Metrics    MetricsConfig    `json:"metrics"`
}

// LogConfig shapes the partitioned commit log.
type LogConfig struct {
	Partitions      int    `json:"partitions"`
	SegmentMaxBytes int64  `json:"segmentMaxBytes"`
	Sync            string `json:"sync"` // always|interval|never
	SyncIntervalMs  int    `json:"syncIntervalMs"`
}

// StateConfig shapes the embedded state database holding offsets, dedup
// confirmations, and dead letters.
type StateConfig struct {
	Fsync           string `json:"fsync"` // always|interval|never
	FsyncIntervalMs int    `json:"fsyncIntervalMs"`
}

// ExecutorConfig bounds processing concurrency and the retry budget.
type ExecutorConfig struct {
	MaxConcurrent     int     `json:"maxConcurrent"`
	BatchSize         int     `json:"batchSize"`
	HandlerTimeoutMs  int     `json:"handlerTimeoutMs"`
	PollIntervalMs    int     `json:"pollIntervalMs"`
	MaxRetries        int     `json:"maxRetries"`
	BackoffMs         int     `json:"backoffMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	MaxBackoffMs      int     `json:"maxBackoffMs"`
}

// DedupConfig selects and bounds the dedup store.
type DedupConfig struct {
	Durable    bool  `json:"durable"`
	MaxEntries int   `json:"maxEntries"`
	TTLMs      int64 `json:"ttlMs"`
}

// CheckpointConfig controls snapshot cadence.
type CheckpointConfig struct {
	IntervalMs int `json:"intervalMs"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Log: LogConfig{
			Partitions:      16,
			SegmentMaxBytes: 64 << 20,
			Sync:            "always",
		},
		State: StateConfig{
			Fsync: "always",
		},
		Executor: ExecutorConfig{
			BatchSize:         64,
			HandlerTimeoutMs:  30_000,
			PollIntervalMs:    250,
			MaxRetries:        3,
			BackoffMs:         100,
			BackoffMultiplier: 2,
			MaxBackoffMs:      5_000,
		},
		Dedup: DedupConfig{
			Durable:    true,
			MaxEntries: 1 << 20,
		},
		Checkpoint: CheckpointConfig{
			IntervalMs: 5_000,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
