package limits

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateBoundsConcurrency(t *testing.T) {
	const capacity = 3
	g := NewGate(capacity)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			defer g.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > capacity {
		t.Errorf("peak concurrency %d exceeds capacity %d", p, capacity)
	}
	if g.InFlight() != 0 {
		t.Errorf("in-flight after drain: %d", g.InFlight())
	}
}

func TestGateZeroCapacityUnlimited(t *testing.T) {
	g := NewGate(0)
	for i := 0; i < 100; i++ {
		if err := g.Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if g.InFlight() != 100 {
		t.Errorf("in-flight: %d", g.InFlight())
	}
	for i := 0; i < 100; i++ {
		g.Release()
	}
	if g.InFlight() != 0 {
		t.Errorf("in-flight after release: %d", g.InFlight())
	}
}

func TestGateAcquireCanceled(t *testing.T) {
	g := NewGate(1)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); err == nil {
		t.Error("expected context error while gate is full")
	}
	if g.InFlight() != 1 {
		t.Errorf("in-flight: %d", g.InFlight())
	}
}

func TestGateFIFOOrder(t *testing.T) {
	g := NewGate(1)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	const waiters = 5
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	started := make(chan struct{})
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n == 0 {
				close(started)
			} else {
				<-started
				time.Sleep(time.Duration(n) * 5 * time.Millisecond)
			}
			if err := g.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			g.Release()
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	g.Release()
	wg.Wait()

	for i, n := range order {
		if i != n {
			t.Fatalf("admission order %v not FIFO", order)
		}
	}
}
