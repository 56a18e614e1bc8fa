package circuitbreaker

import "sync/atomic"

// CounterSet is the fixed set of monotonic per-dependency counters kept for
// external observability. The state machine never reads them.
type CounterSet struct {
	successfulCalls    atomic.Uint64
	failedCalls        atomic.Uint64
	slowCalls          atomic.Uint64
	cancelledCalls     atomic.Uint64
	openRejections     atomic.Uint64
	halfOpenRejections atomic.Uint64
	fallbackCalls      atomic.Uint64
	fallbackFailures   atomic.Uint64
	openTransitions    atomic.Uint64
}

// CounterSnapshot is a point-in-time copy of a CounterSet
type CounterSnapshot struct {
	SuccessfulCalls       uint64 `json:"successful_calls"`
	FailedCalls           uint64 `json:"failed_calls"`
	SlowCalls             uint64 `json:"slow_calls"`
	CancelledCalls        uint64 `json:"cancelled_calls"`
	CircuitOpenRejections uint64 `json:"circuit_open_rejections"`
	HalfOpenRejections    uint64 `json:"half_open_rejections"`
	FallbackCalls         uint64 `json:"fallback_calls"`
	FallbackFailures      uint64 `json:"fallback_failures"`
	OpenTransitions       uint64 `json:"open_transitions"`
}

// Snapshot copies the current counter values
func (c *CounterSet) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		SuccessfulCalls:       c.successfulCalls.Load(),
		FailedCalls:           c.failedCalls.Load(),
		SlowCalls:             c.slowCalls.Load(),
		CancelledCalls:        c.cancelledCalls.Load(),
		CircuitOpenRejections: c.openRejections.Load(),
		HalfOpenRejections:    c.halfOpenRejections.Load(),
		FallbackCalls:         c.fallbackCalls.Load(),
		FallbackFailures:      c.fallbackFailures.Load(),
		OpenTransitions:       c.openTransitions.Load(),
	}
}
