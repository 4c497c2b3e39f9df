package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/tokenart/resilience"
)

// Pinger is implemented by the metadata and artifact stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker reports unhealthy when p.Ping fails.
func NewPingChecker(name string, p Pinger) Checker {
	return NewCheckerFunc(name, func(ctx context.Context) Result {
		if err := p.Ping(ctx); err != nil {
			return Unhealthy(fmt.Sprintf("%s unreachable", name), err)
		}
		return Healthy("reachable")
	})
}

// NewRenderQueueChecker reports the render resource queue. It is degraded
// once maxWaiting or more renders are queued behind the one running; a
// queue never makes the service unhealthy because renders do not time out.
func NewRenderQueueChecker(metrics func() resilience.GuardMetrics, maxWaiting int) Checker {
	if maxWaiting <= 0 {
		maxWaiting = 16
	}
	return NewCheckerFunc("render_queue", func(context.Context) Result {
		m := metrics()
		details := map[string]any{
			"active":   m.Active,
			"waiting":  m.Waiting,
			"rendered": m.Acquired,
		}
		if m.Acquired > 0 {
			details["avg_wait"] = (m.TotalWait / time.Duration(m.Acquired)).String()
		}

		if m.Waiting >= maxWaiting {
			return Degraded(fmt.Sprintf("%d renders queued", m.Waiting)).WithDetails(details)
		}
		return Healthy("accepting renders").WithDetails(details)
	})
}
