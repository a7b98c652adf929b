// Package memory keeps transcoding inside the container's memory budget.
//
// [ConfigureLimit] sets GOMEMLIMIT from the container limit, leaving room
// for ffmpeg and libvips, which allocate outside the Go heap. An explicit
// GOMEMLIMIT environment variable always wins.
//
// A [Monitor] samples the heap and reports pressure. The ingest pipeline
// calls [Monitor.Wait] before claiming a transcode slot, so a burst of
// large uploads queues instead of getting the process OOM-killed:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if err := monitor.Wait(ctx); err != nil {
//	    return err
//	}
//
// Transcoding pauses once usage crosses CriticalWaterMark and resumes when it
// falls back under HighWaterMark.
package memory
