package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewGuard_DefaultsToExclusive(t *testing.T) {
	g := NewGuard(GuardConfig{})

	if g.config.Capacity != 1 {
		t.Errorf("Capacity = %d, want 1", g.config.Capacity)
	}
}

func TestGuard_WaitsWithoutTimeout(t *testing.T) {
	g := NewGuard(GuardConfig{})

	if _, err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		g.Release()
	}()

	wait, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if wait < 40*time.Millisecond {
		t.Errorf("wait = %v, expected the caller to block until release", wait)
	}
	g.Release()
}

func TestGuard_ContextCancelWhileWaiting(t *testing.T) {
	g := NewGuard(GuardConfig{})
	if _, err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
	if m := g.Metrics(); m.Waiting != 0 {
		t.Errorf("Waiting = %d after cancelled wait, want 0", m.Waiting)
	}
}

func TestGuard_Serializes(t *testing.T) {
	g := NewGuard(GuardConfig{})

	var inside atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer g.Release()
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if overlap.Load() {
		t.Error("two holders were inside the guard at once")
	}
	m := g.Metrics()
	if m.MaxActive != 1 {
		t.Errorf("MaxActive = %d, want 1", m.MaxActive)
	}
	if m.Acquired != 20 {
		t.Errorf("Acquired = %d, want 20", m.Acquired)
	}
	if m.Active != 0 {
		t.Errorf("Active = %d, want 0", m.Active)
	}
}

func TestGuard_ReleaseFreesSlot(t *testing.T) {
	g := NewGuard(GuardConfig{})
	if _, err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx); err != nil {
		t.Errorf("Acquire() after Release error = %v, guard was not released", err)
	}
	g.Release()
}

func TestGuard_ReleaseWithoutAcquire(t *testing.T) {
	g := NewGuard(GuardConfig{})
	g.Release()

	if m := g.Metrics(); m.Active != 0 {
		t.Errorf("Active = %d, want 0", m.Active)
	}
}

func TestGuard_Capacity(t *testing.T) {
	g := NewGuard(GuardConfig{Capacity: 2})

	for i := 0; i < 2; i++ {
		if _, err := g.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire(%d) error = %v", i, err)
		}
	}
	m := g.Metrics()
	if m.Active != 2 || m.Capacity != 2 {
		t.Errorf("Metrics = %+v, want Active=2 Capacity=2", m)
	}
}
