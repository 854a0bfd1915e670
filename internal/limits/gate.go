// Package limits bounds concurrent upstream requests.
package limits

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a FIFO admission gate for upstream calls. A capacity of zero
// disables gating entirely. A slot is held for the whole upstream exchange,
// retries included.
type Gate struct {
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

// NewGate returns a gate admitting at most capacity concurrent holders,
// or an unlimited gate when capacity is zero or negative.
func NewGate(capacity int) *Gate {
	g := &Gate{}
	if capacity > 0 {
		g.sem = semaphore.NewWeighted(int64(capacity))
	}
	return g
}

// Acquire blocks until a slot is free or ctx is done. Waiters are served
// in arrival order.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	g.inFlight.Add(1)
	return nil
}

// Release frees the slot taken by a successful Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	if g.sem != nil {
		g.sem.Release(1)
	}
}

// InFlight reports the number of currently admitted requests.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}
