package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Log.Partitions != 16 {
		t.Fatalf("partitions default")
	}
	if cfg.Log.Sync != "always" {
		t.Fatalf("sync default")
	}
	if cfg.Executor.MaxRetries != 3 {
		t.Fatalf("max retries default")
	}
	if !cfg.Dedup.Durable {
		t.Fatalf("dedup durable default should be true")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "natlog.json")
	data := []byte(`{"dataDir":"/srv/natlog","log":{"partitions":32,"sync":"interval"},"executor":{"maxRetries":5},"metrics":{"enabled":true,"addr":":9090"}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/natlog" {
		t.Fatalf("expected /srv/natlog")
	}
	if cfg.Log.Partitions != 32 || cfg.Log.Sync != "interval" {
		t.Fatalf("log section: %+v", cfg.Log)
	}
	if cfg.Executor.MaxRetries != 5 {
		t.Fatalf("expected 5 retries")
	}
	// untouched sections keep defaults
	if cfg.Executor.BatchSize != 64 {
		t.Fatalf("batch size default lost: %d", cfg.Executor.BatchSize)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9090" {
		t.Fatalf("metrics section: %+v", cfg.Metrics)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.json"); err == nil {
		t.Fatalf("expected error for missing file")
	}
	cfg, err := Load("")
	if err != nil || cfg.Log.Partitions != 16 {
		t.Fatalf("empty path should return defaults")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("NATLOG_DATA_DIR", "/tmp/nl")
	os.Setenv("NATLOG_LOG_PARTITIONS", "24")
	os.Setenv("NATLOG_LOG_SYNC", "never")
	os.Setenv("NATLOG_DEDUP_DURABLE", "false")
	os.Setenv("NATLOG_EXECUTOR_MAX_RETRIES", "7")
	t.Cleanup(func() {
		os.Unsetenv("NATLOG_DATA_DIR")
		os.Unsetenv("NATLOG_LOG_PARTITIONS")
		os.Unsetenv("NATLOG_LOG_SYNC")
		os.Unsetenv("NATLOG_DEDUP_DURABLE")
		os.Unsetenv("NATLOG_EXECUTOR_MAX_RETRIES")
	})
	FromEnv(&cfg)
	if cfg.DataDir != "/tmp/nl" {
		t.Fatalf("env override data dir")
	}
	if cfg.Log.Partitions != 24 || cfg.Log.Sync != "never" {
		t.Fatalf("env override log: %+v", cfg.Log)
	}
	if cfg.Dedup.Durable {
		t.Fatalf("env override dedup durable")
	}
	if cfg.Executor.MaxRetries != 7 {
		t.Fatalf("env override retries")
	}
}

func TestFromEnvIgnoresMalformed(t *testing.T) {
	cfg := Default()
	os.Setenv("NATLOG_LOG_PARTITIONS", "not-a-number")
	t.Cleanup(func() { os.Unsetenv("NATLOG_LOG_PARTITIONS") })
	FromEnv(&cfg)
	if cfg.Log.Partitions != 16 {
		t.Fatalf("malformed env should be ignored")
	}
}
