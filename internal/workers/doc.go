/*
Package workers sizes and bounds the service's transcode concurrency.

Each upload runs ffmpeg or libvips, and both are CPU bound. Sizing is based on
runtime.GOMAXPROCS, which follows container CPU limits, rather than
runtime.NumCPU, which reports the host:

	// A pod limited to 2 cores on a 64-core node
	workers.ForCPU(8) // 2

An explicit count (TRANSCODE_WORKERS) overrides the computed one and is still
capped by the limit:

	slots := workers.NewSlots(workers.Resolve(cfg.TranscodeWorkers, workers.ForCPU(8)))

	if err := slots.Acquire(ctx); err != nil {
	    return err
	}
	defer slots.Release()

Acquire honours context cancellation, so a client that disconnects while
queued gives its place up.
*/
package workers
