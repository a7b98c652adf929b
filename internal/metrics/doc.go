// Package metrics declares the Prometheus metrics exported by the media
// ingestion service.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request latency
//   - HTTPRequestsInFlight: Gauge of requests currently being served
//
// ## Pipeline Metrics
//
//   - UploadsTotal: Counter of upload attempts by outcome (accepted, rejected, failed)
//   - StageDuration: Histogram of time spent in each pipeline stage
//   - ValidationFailuresTotal: Counter of rejections by reason
//   - TranscodeJobsTotal: Counter of transcoding steps by kind and status
//   - ExternalProcessDuration: Histogram of ffmpeg/ffprobe wall time
//   - NamingAttempts: Histogram of uniqueness checks per settled name
//   - StoragePublishTotal: Counter of artifacts published per backend
//
// ## Registry and Filesystem Metrics
//
//   - DBQueryTotal / DBQueryDuration: upload registry queries
//   - StoredUploads: Gauge of registry rows by motion type, refreshed by [Collector]
//   - FilesystemReleaseRetries / FilesystemReleaseFailures / FilesystemReleaseDuration:
//     the bounded release probe run after each encoder invocation
//
// # Usage
//
// Metrics are registered with the default Prometheus registry using promauto.
// Mount promhttp.Handler() on the metrics endpoint:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// Example PromQL for the rejection rate:
//
//	sum(rate(media_ingest_uploads_total{outcome="rejected"}[5m])) /
//	sum(rate(media_ingest_uploads_total[5m]))
package metrics
