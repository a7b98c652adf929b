package workers

import (
	"context"
	"runtime"
)

// Count returns a worker count of multiplier per available CPU, at least 1
// and at most limit. A limit of 0 means no cap.
func Count(multiplier float64, limit int) int {
	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU returns one worker per CPU, capped at limit.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForMixed returns 1.5 workers per CPU, capped at limit.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Resolve returns override when it is positive and computed otherwise.
func Resolve(override, computed int) int {
	if override > 0 {
		return override
	}
	return computed
}

// Slots is a counting semaphore.
type Slots struct {
	ch chan struct{}
}

// NewSlots returns Slots admitting n holders at once. n below 1 is treated
// as 1.
func NewSlots(n int) *Slots {
	if n < 1 {
		n = 1
	}
	return &Slots{ch: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx ends.
func (s *Slots) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (s *Slots) Release() {
	<-s.ch
}

// Size returns the number of slots.
func (s *Slots) Size() int {
	return cap(s.ch)
}

// InUse returns the number of held slots.
func (s *Slots) InUse() int {
	return len(s.ch)
}
