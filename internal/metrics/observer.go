package metrics

import "media-ingest/internal/filesystem"

type releaseObserver struct{}

// NewFilesystemObserver feeds filesystem release probes into the
// media_ingest_filesystem_release_* series.
func NewFilesystemObserver() filesystem.Observer { return releaseObserver{} }

func (releaseObserver) ObserveReleaseRetry() { FilesystemReleaseRetries.Inc() }

func (releaseObserver) ObserveReleaseResult(seconds float64, err error) {
	FilesystemReleaseDuration.Observe(seconds)
	if err != nil {
		FilesystemReleaseFailures.Inc()
	}
}
