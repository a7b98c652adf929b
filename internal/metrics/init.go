package metrics

// Label values pre-populated by InitializeMetrics.
var (
	UploadOutcomes   = []string{"accepted", "rejected", "failed"}
	PipelineStages   = []string{"receive", "extract", "validate", "plan", "transcode", "name", "persist", "publish"}
	ValidationReason = []string{"unsupported_type", "extension_mismatch", "file_type", "size", "dimensions", "aspect_ratio", "duration", "fps"}
	TranscodeKinds   = []string{"autorotate", "exif", "resize", "convert", "rotate", "bitrate", "poster", "faststart", "thumbnail"}
	ExternalTools    = []string{"ffmpeg", "ffprobe"}
	StorageBackends  = []string{"local", "s3"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, outcome := range UploadOutcomes {
		UploadsTotal.WithLabelValues(outcome)
	}

	for _, stage := range PipelineStages {
		StageDuration.WithLabelValues(stage)
	}

	for _, reason := range ValidationReason {
		ValidationFailuresTotal.WithLabelValues(reason)
	}

	for _, kind := range TranscodeKinds {
		TranscodeJobsTotal.WithLabelValues(kind, "success")
		TranscodeJobsTotal.WithLabelValues(kind, "error")
	}

	for _, tool := range ExternalTools {
		ExternalProcessDuration.WithLabelValues(tool)
	}

	for _, backend := range StorageBackends {
		StoragePublishTotal.WithLabelValues(backend, "success")
		StoragePublishTotal.WithLabelValues(backend, "error")
	}

	for _, mt := range []string{"image", "video"} {
		StoredUploads.WithLabelValues(mt)
	}
}
