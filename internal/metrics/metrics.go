package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_ingest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_ingest_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	StoredUploads = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_ingest_stored_uploads",
			Help: "Number of uploads in the registry by motion type",
		},
		[]string{"motion_type"},
	)
)

// Pipeline metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_uploads_total",
			Help: "Total number of upload attempts by outcome",
		},
		[]string{"outcome"}, // "accepted", "rejected", "failed"
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_ingest_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"stage"},
	)

	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_validation_failures_total",
			Help: "Total number of rejected uploads by reason",
		},
		[]string{"reason"},
	)

	TranscodeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_transcode_jobs_total",
			Help: "Total number of transcoding steps by kind and status",
		},
		[]string{"kind", "status"},
	)

	ExternalProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_ingest_external_process_duration_seconds",
			Help:    "Wall time of external tool invocations (ffmpeg, ffprobe)",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"tool"},
	)

	NamingAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_ingest_naming_attempts",
			Help:    "Number of uniqueness checks needed to settle on a file name",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
		},
	)

	StoragePublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ingest_storage_publish_total",
			Help: "Total number of artifacts published to durable storage",
		},
		[]string{"backend", "status"},
	)
)

// Filesystem metrics
var (
	FilesystemReleaseRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_ingest_filesystem_release_retries_total",
			Help: "Total number of release-probe retries while waiting for an encoder to let go of a file",
		},
	)

	FilesystemReleaseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_ingest_filesystem_release_failures_total",
			Help: "Total number of release probes that gave up",
		},
	)

	FilesystemReleaseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_ingest_filesystem_release_duration_seconds",
			Help:    "Time spent waiting for a file handle to be released",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_memory_usage_ratio",
			Help: "Go heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_memory_paused",
			Help: "Whether transcoding is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_ingest_memory_gc_pauses_total",
			Help: "Total number of times transcoding was paused for memory pressure",
		},
	)

	TranscodesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_ingest_transcodes_in_flight",
			Help: "Number of uploads currently holding a transcode slot",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_ingest_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
