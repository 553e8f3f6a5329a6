package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromSink implements Sink with Prometheus counters.
type PromSink struct {
	registry *prometheus.Registry

	appended     *prometheus.CounterVec
	committed    *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	retries      *prometheus.CounterVec
}

// NewPromSink builds a PromSink with its own registry.
func NewPromSink() *PromSink {
	reg := prometheus.NewRegistry()
	s := &PromSink{
		registry: reg,
		appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natlog_records_appended_total",
			Help: "Records appended per partition.",
		}, []string{"partition"}),
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natlog_records_committed_total",
			Help: "Offset commits per group and partition.",
		}, []string{"group", "partition"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natlog_records_dead_lettered_total",
			Help: "Records routed to the dead-letter sink.",
		}, []string{"group", "partition"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natlog_duplicates_skipped_total",
			Help: "Records skipped by dedup admission.",
		}, []string{"group", "partition"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natlog_handler_retries_total",
			Help: "Handler retry attempts.",
		}, []string{"group", "partition"}),
	}
	reg.MustRegister(s.appended, s.committed, s.deadLettered, s.duplicates, s.retries)
	return s
}

func partLabel(p uint32) string { return strconv.FormatUint(uint64(p), 10) }

func (s *PromSink) RecordAppended(partition uint32, count int) {
	s.appended.WithLabelValues(partLabel(partition)).Add(float64(count))
}

func (s *PromSink) RecordCommitted(group string, partition uint32, offset uint64) {
	s.committed.WithLabelValues(group, partLabel(partition)).Inc()
}

func (s *PromSink) RecordDeadLettered(group string, partition uint32) {
	s.deadLettered.WithLabelValues(group, partLabel(partition)).Inc()
}

func (s *PromSink) DuplicateSkipped(group string, partition uint32) {
	s.duplicates.WithLabelValues(group, partLabel(partition)).Inc()
}

func (s *PromSink) HandlerRetried(group string, partition uint32) {
	s.retries.WithLabelValues(group, partLabel(partition)).Inc()
}

// Registry exposes the underlying registry (tests, custom exposure).
func (s *PromSink) Registry() *prometheus.Registry { return s.registry }

// Expose serves /metrics for this sink's registry on addr in a background
// goroutine. Best-effort: listen errors are ignored.
func (s *PromSink) Expose(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}

// StorageMetrics adapts Prometheus histograms to the pebblestore MetricsHook.
type StorageMetrics struct {
	writeSeconds  prometheus.Histogram
	readSeconds   prometheus.Histogram
	commitSeconds prometheus.Histogram
}

// NewStorageMetrics registers storage histograms on the sink's registry.
func NewStorageMetrics(s *PromSink) *StorageMetrics {
	m := &StorageMetrics{
		writeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "natlog_storage_write_seconds",
			Help: "Pebble write latency.",
		}),
		readSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "natlog_storage_read_seconds",
			Help: "Pebble read latency.",
		}),
		commitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "natlog_storage_batch_commit_seconds",
			Help: "Pebble batch commit latency.",
		}),
	}
	s.registry.MustRegister(m.writeSeconds, m.readSeconds, m.commitSeconds)
	return m
}

func (m *StorageMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.writeSeconds.Observe(elapsed.Seconds())
}

func (m *StorageMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.readSeconds.Observe(elapsed.Seconds())
}

func (m *StorageMetrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.commitSeconds.Observe(elapsed.Seconds())
}
