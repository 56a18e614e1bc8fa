package circuitbreaker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartSweep launches the registry's background maintenance task: it prunes
// stale history across all dependencies and logs which circuits are not
// CLOSED. The sweep is an observer only - it never mutates phase or
// counters. It stops when ctx is cancelled or Close is called; starting
// twice is a no-op.
func (r *Registry) StartSweep(ctx context.Context) {
	r.sweepOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		r.sweepCancel = cancel
		r.sweepDone = make(chan struct{})
		go r.sweepLoop(ctx)
	})
}

// Close stops the background sweep, if it was started, and waits for it to
// drain
func (r *Registry) Close() {
	if r.sweepCancel != nil {
		r.sweepCancel()
		<-r.sweepDone
	}
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer close(r.sweepDone)

	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepPass(time.Now())
		}
	}
}

// sweepPass prunes every breaker's history and reports unhealthy circuits
func (r *Registry) sweepPass(now time.Time) {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	var unhealthy []string
	for _, cb := range breakers {
		cb.PruneHistory(now)
		if phase := cb.Phase(); phase != PhaseClosed {
			unhealthy = append(unhealthy, cb.Name()+"="+phase.String())
		}
	}

	if len(unhealthy) > 0 {
		r.logger.Warn("circuits not closed", zap.Strings("dependencies", unhealthy))
	}
}
