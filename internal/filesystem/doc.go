/*
Package filesystem provides small file lifecycle helpers used by the media
pipeline.

# Release Probe

External encoders can spawn helper processes that keep a file handle open for
a moment after the primary process exits. WaitForRelease probes the file by
renaming it aside and back, retrying with exponential backoff while the
rename fails with a "still in use" error:

	err := filesystem.WaitForRelease(ctx, path, filesystem.DefaultRetryConfig())
	if errors.Is(err, filesystem.ErrReleaseTimeout) {
	    // give up on this artifact
	}

Defaults: 20 retries, 10ms initial backoff doubling to a 500ms cap, and a 10s
overall timeout. Missing files and other errors fail without retrying.

# Existence-Tolerant Operations

RemoveIfExists and MoveIfExists ignore missing sources, which keeps cleanup
and rename code free of per-artifact existence checks.
*/
package filesystem
