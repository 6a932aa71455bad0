package fetch

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"vk-archive-loader/internal/model"
)

// Governor admits network operations per resource class. One Governor is
// shared by the whole run.
type Governor struct {
	small *gate
	big   *gate
}

type gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

type GateStats struct {
	Capacity int64 `json:"capacity"`
	InFlight int64 `json:"in_flight"`
	Peak     int64 `json:"peak"`
}

func NewGovernor(small, big int) (*Governor, error) {
	if small <= 0 || big <= 0 {
		return nil, fmt.Errorf("governor limits must be positive (small=%d big=%d)", small, big)
	}
	return &Governor{small: newGate(small), big: newGate(big)}, nil
}

func newGate(n int) *gate {
	return &gate{sem: semaphore.NewWeighted(int64(n)), capacity: int64(n)}
}

func (g *Governor) gateFor(class model.ResourceClass) *gate {
	if class == model.ClassBig {
		return g.big
	}
	return g.small
}

// Acquire blocks until a slot of class is free. The returned release func is
// safe to call more than once.
func (g *Governor) Acquire(ctx context.Context, class model.ResourceClass) (func(), error) {
	gt := g.gateFor(class)
	if err := gt.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %s slot: %w", class, err)
	}
	now := gt.inFlight.Add(1)
	for {
		peak := gt.peak.Load()
		if now <= peak || gt.peak.CompareAndSwap(peak, now) {
			break
		}
	}

	var once atomic.Bool
	return func() {
		if once.Swap(true) {
			return
		}
		gt.inFlight.Add(-1)
		gt.sem.Release(1)
	}, nil
}

func (g *Governor) Stats(class model.ResourceClass) GateStats {
	gt := g.gateFor(class)
	return GateStats{
		Capacity: gt.capacity,
		InFlight: gt.inFlight.Load(),
		Peak:     gt.peak.Load(),
	}
}
