// Package observability exposes the converter's own operational metrics
// through a Prometheus registry.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicktill/munin2tinyobs/pkg/ingest"
	"github.com/nicktill/munin2tinyobs/pkg/munin"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/batch"
)

const namespace = "munin2tinyobs"

// Failure reasons reported on files_failed_total
const (
	ReasonIdentity  = "identity"
	ReasonMalformed = "malformed"
	ReasonStore     = "store"
	ReasonOther     = "other"
)

// Recorder implements ingest.Recorder on top of Prometheus collectors.
// Each Recorder owns its registry so tests and multiple servers in one
// process do not collide on the default one.
type Recorder struct {
	registry *prometheus.Registry

	filesImported  prometheus.Counter
	filesFailed    *prometheus.CounterVec
	pointsWritten  prometheus.Counter
	batchesWritten prometheus.Counter
	batchDuration  prometheus.Histogram
	importDuration prometheus.Histogram

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ ingest.Recorder = (*Recorder)(nil)

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		filesImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_imported_total",
			Help:      "RRD files fully converted and written.",
		}),
		filesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_failed_total",
			Help:      "RRD files that failed to convert, by reason.",
		}, []string{"reason"}),
		pointsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_written_total",
			Help:      "Time-series points accepted by the store.",
		}),
		batchesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_written_total",
			Help:      "Batches submitted to the store.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_write_seconds",
			Help:      "Latency of a single batch write.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_import_seconds",
			Help:      "Time to convert and write one RRD file.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.filesImported,
		r.filesFailed,
		r.pointsWritten,
		r.batchesWritten,
		r.batchDuration,
		r.importDuration,
		r.requestsTotal,
		r.requestDuration,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// WriteToTextfile dumps the registry for node_exporter's textfile collector.
func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

func (r *Recorder) FileImported(res *ingest.ImportResult) {
	r.filesImported.Inc()
	r.importDuration.Observe(res.Duration.Seconds())
}

func (r *Recorder) FileFailed(err error) {
	r.filesFailed.WithLabelValues(FailureReason(err)).Inc()
}

func (r *Recorder) BatchWritten(size int, took time.Duration) {
	r.batchesWritten.Inc()
	r.pointsWritten.Add(float64(size))
	r.batchDuration.Observe(took.Seconds())
}

// FailureReason classifies an import error into a bounded label value.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, munin.ErrInvalidFileIdentity):
		return ReasonIdentity
	case errors.Is(err, rrd.ErrMalformedArchive):
		return ReasonMalformed
	case errors.Is(err, batch.ErrStoreWriteFailure):
		return ReasonStore
	default:
		return ReasonOther
	}
}
