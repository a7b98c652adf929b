package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"media-ingest/internal/logging"
)

// Stats is a snapshot of the upload registry.
type Stats struct {
	TotalUploads int
	TotalImages  int
	TotalVideos  int
}

// StatsSource reports registry statistics. The upload database implements it.
type StatsSource interface {
	GetStats() Stats
}

// Collector copies registry statistics into gauges on a fixed interval.
type Collector struct {
	source   StatsSource
	interval time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCollector(source StatsSource, interval time.Duration) *Collector {
	return &Collector{
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a first collection immediately and then one per interval.
// Calls after the first are no-ops.
func (c *Collector) Start() {
	if c.started.Swap(true) {
		return
	}
	go c.run()
}

// Stop ends collection and waits for a pass in progress. It may be called
// more than once, and before Start.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.started.Load() {
		<-c.done
	}
}

func (c *Collector) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.collect()
		select {
		case <-ticker.C:
		case <-c.stop:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.source == nil {
		return
	}
	s := c.source.GetStats()
	StoredUploads.WithLabelValues("image").Set(float64(s.TotalImages))
	StoredUploads.WithLabelValues("video").Set(float64(s.TotalVideos))
	logging.Debug("registry holds %d uploads (%d images, %d videos)", s.TotalUploads, s.TotalImages, s.TotalVideos)
}
