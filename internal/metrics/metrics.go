// Package metrics records queue, batch, transfer and listing counters in a
// private Prometheus registry. A nil *Recorder discards everything, so
// library callers that do not care about metrics pass nil.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transfer directions.
const (
	DirectionDownload = "download"
	DirectionUpload   = "upload"
)

// Recorder owns the metrics of one process.
type Recorder struct {
	registry *prometheus.Registry

	queueItems       *prometheus.CounterVec
	batchEntries     *prometheus.CounterVec
	transferBytes    *prometheus.CounterVec
	runDuration      prometheus.Histogram
	listingDirectory *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		queueItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsi_queue_items_total",
				Help: "Total number of queue items by outcome",
			},
			[]string{"outcome"},
		),
		batchEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsi_batch_entries_total",
				Help: "Total number of batch entries processed by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		transferBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsi_transfer_bytes_total",
				Help: "Total bytes transferred by direction",
			},
			[]string{"direction"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fsi_queue_run_duration_seconds",
				Help:    "Duration of queue runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),
		listingDirectory: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsi_listing_directories_total",
				Help: "Total number of directories read by backend",
			},
			[]string{"backend"},
		),
	}
	r.registry.MustRegister(r.queueItems, r.batchEntries, r.transferBytes, r.runDuration, r.listingDirectory)
	return r
}

// Registry returns the registry, for callers that serve or gather it.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// QueueItem counts one finished queue item.
func (r *Recorder) QueueItem(outcome string) {
	if r == nil {
		return
	}
	r.queueItems.WithLabelValues(outcome).Inc()
}

// BatchEntry counts one entry of a batch operation.
func (r *Recorder) BatchEntry(op, outcome string) {
	if r == nil {
		return
	}
	r.batchEntries.WithLabelValues(op, outcome).Inc()
}

// TransferBytes adds n transferred bytes.
func (r *Recorder) TransferBytes(direction string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.transferBytes.WithLabelValues(direction).Add(float64(n))
}

// RunDuration observes the duration of one queue run.
func (r *Recorder) RunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Observe(d.Seconds())
}

// DirectoryRead counts one directory level read by backend.
func (r *Recorder) DirectoryRead(backend string) {
	if r == nil {
		return
	}
	r.listingDirectory.WithLabelValues(backend).Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path,
// for the node exporter textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
