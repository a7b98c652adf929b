// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration comes from environment variables, optionally seeded from a
// .env file, via [LoadConfig]:
//
//   - MEDIA_DIR: Root of the stored collections (default: /media)
//   - TEMP_DIR: Where uploads are received before validation (default: /tmp/media-ingest)
//   - DATABASE_DIR: Path to the registry database directory (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics (default: true)
//   - POLICY_FILE: YAML upload policy (default: built-in policy)
//   - MAX_UPLOAD_BYTES: Largest accepted request body (default: 1 GiB)
//   - STORAGE_BACKEND: local or s3 (default: local)
//   - S3_BUCKET, S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY,
//     S3_PREFIX, S3_USE_PATH_STYLE: S3 backend settings
//   - FFMPEG_PATH, FFPROBE_PATH: External tools (default: from PATH)
//   - TRANSCODE_WORKERS: Concurrent transcodes (default: one per CPU, at most 8)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: Go heap limit, see package memory
//   - SHUTDOWN_TIMEOUT: Graceful shutdown bound (default: 30s)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// The media, temp and database directories are created when missing and
// must be writable.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// Each initialization step logs a banner section: [LogMemoryConfig],
// [LogDatabaseInit], [LogTranscoderInit], [LogStorageInit], [LogHTTPRoutes],
// [LogServerStarted], and on the way out [LogShutdownInitiated] and
// [LogShutdownComplete].
package startup
