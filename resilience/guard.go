package resilience

import (
	"context"
	"sync"
	"time"
)

// GuardConfig configures the guard.
type GuardConfig struct {
	// Capacity is the number of holders allowed at once.
	// Default: 1 (exclusive access)
	Capacity int
}

// Guard grants scoped access to a shared resource. Unlike a bulkhead it
// never rejects: callers wait until a slot frees up or their context ends.
type Guard struct {
	config GuardConfig
	sem    chan struct{}

	mu        sync.Mutex
	active    int
	maxActive int
	waiting   int
	acquired  int64
	waited    time.Duration
}

// NewGuard creates a new guard.
func NewGuard(config GuardConfig) *Guard {
	if config.Capacity <= 0 {
		config.Capacity = 1
	}

	return &Guard{
		config: config,
		sem:    make(chan struct{}, config.Capacity),
	}
}

// Acquire blocks until a slot is available. There is no timeout; only
// cancellation of ctx stops the wait. It returns how long the caller waited.
func (g *Guard) Acquire(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	// Fast path: slot free
	select {
	case g.sem <- struct{}{}:
		g.enter(0)
		return 0, nil
	default:
	}

	g.mu.Lock()
	g.waiting++
	g.mu.Unlock()

	select {
	case g.sem <- struct{}{}:
		wait := time.Since(start)
		g.mu.Lock()
		g.waiting--
		g.mu.Unlock()
		g.enter(wait)
		return wait, nil
	case <-ctx.Done():
		g.mu.Lock()
		g.waiting--
		g.mu.Unlock()
		return time.Since(start), ctx.Err()
	}
}

func (g *Guard) enter(wait time.Duration) {
	g.mu.Lock()
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.acquired++
	g.waited += wait
	g.mu.Unlock()
}

// Release frees the slot taken by Acquire.
func (g *Guard) Release() {
	select {
	case <-g.sem:
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	default:
		// Release without Acquire
	}
}

// Metrics returns current guard statistics.
func (g *Guard) Metrics() GuardMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	return GuardMetrics{
		Active:    g.active,
		MaxActive: g.maxActive,
		Waiting:   g.waiting,
		Capacity:  g.config.Capacity,
		Acquired:  g.acquired,
		TotalWait: g.waited,
	}
}

// GuardMetrics contains guard statistics.
type GuardMetrics struct {
	Active    int
	MaxActive int
	Waiting   int
	Capacity  int
	Acquired  int64
	TotalWait time.Duration
}
