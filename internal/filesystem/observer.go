package filesystem

import "sync"

// Observer receives release-probe events from WaitForRelease. The metrics
// package supplies the Prometheus-backed implementation.
type Observer interface {
	ObserveReleaseRetry()
	ObserveReleaseResult(durationSeconds float64, err error)
}

var (
	observerMu sync.RWMutex
	installed  Observer
)

// SetObserver installs o for all later probes. A nil o turns recording off.
func SetObserver(o Observer) {
	observerMu.Lock()
	installed = o
	observerMu.Unlock()
}

func observer() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return installed
}
