package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the circuit is open and the call was
	// rejected without invoking the primary
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrHalfOpenLimit is returned when the half-open probe budget for the
	// current phase instance is exhausted
	ErrHalfOpenLimit = errors.New("circuit breaker half-open call limit exceeded")
)

// CircuitBreaker guards a single dependency with a CLOSED/OPEN/HALF_OPEN
// state machine driven by windowed failure and latency statistics.
//
// All state belonging to one dependency is serialized through the breaker's
// mutex; the primary and fallback themselves run outside the lock.
type CircuitBreaker struct {
	name          string
	onStateChange func(name string, from Phase, to Phase)

	mu            sync.Mutex
	config        Config
	phase         Phase
	failureCount  int
	successCount  int
	probesGranted int
	lastFailureAt time.Time
	lastSuccessAt time.Time
	nextRetryAt   time.Time
	rec           recorder

	counters CounterSet
}

// New creates a CircuitBreaker for the named dependency. The config is
// merged over the library defaults.
func New(name string, config Config) *CircuitBreaker {
	return newBreaker(name, config.merge(), nil)
}

// newBreaker builds a breaker from an already-merged config
func newBreaker(name string, merged Config, onStateChange func(string, Phase, Phase)) *CircuitBreaker {
	return &CircuitBreaker{
		name:          name,
		config:        merged,
		onStateChange: onStateChange,
		phase:         PhaseClosed,
	}
}

// Name returns the guarded dependency's identifier
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Phase returns the current phase without re-evaluating transitions.
// Time-driven promotion to HALF_OPEN happens on the next Execute, keeping
// status reads side-effect-free.
func (cb *CircuitBreaker) Phase() Phase {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.phase
}

// Config returns the effective (merged) configuration
func (cb *CircuitBreaker) Config() Config {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.config
}

// Counters returns a snapshot of the observability counters
func (cb *CircuitBreaker) Counters() CounterSnapshot {
	return cb.counters.Snapshot()
}

// Execute runs primary through the breaker. The phase is re-evaluated
// first; depending on the result the call is admitted, rejected outright,
// or admitted as a half-open probe. The fallback, if non-nil, is invoked on
// rejection or primary failure and its outcome becomes the caller-visible
// result, while the primary failure stays in the statistics.
func (cb *CircuitBreaker) Execute(ctx context.Context, primary Operation, fallback Operation) CallResult {
	start := time.Now()

	phase, rejection := cb.admit(start)
	if rejection != nil {
		return cb.resolveRejection(ctx, start, phase, rejection, fallback)
	}

	callStart := time.Now()
	value, primaryErr := primary(ctx)
	callDuration := time.Since(callStart)

	if primaryErr == nil {
		cb.onSuccess(callDuration)
		return CallResult{
			Success: true,
			Value:   value,
			Phase:   phase,
			Label:   phase.String(),
			Elapsed: time.Since(start),
		}
	}

	if errors.Is(primaryErr, context.Canceled) {
		// The caller gave up, which says nothing about the dependency's
		// health. The outcome is excluded from failure statistics and a
		// consumed probe slot is returned.
		cb.onCancelled()
		return CallResult{
			Err:     primaryErr,
			Error:   primaryErr.Error(),
			Phase:   phase,
			Label:   phase.String(),
			Elapsed: time.Since(start),
		}
	}

	cb.onFailure(callDuration, primaryErr)

	if fallback != nil {
		return cb.runFallback(ctx, start, phase, fallback)
	}
	return CallResult{
		Err:     primaryErr,
		Error:   primaryErr.Error(),
		Phase:   phase,
		Label:   phase.String(),
		Elapsed: time.Since(start),
	}
}

// Reset forces the breaker back to CLOSED with zeroed counters and empty
// history. Idempotent.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	prev := cb.phase
	cb.phase = PhaseClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.probesGranted = 0
	cb.lastFailureAt = time.Time{}
	cb.lastSuccessAt = time.Time{}
	cb.nextRetryAt = time.Time{}
	cb.rec.Reset()

	if prev != PhaseClosed && cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, PhaseClosed)
	}
}

// PruneHistory drops outcomes that fell out of the monitoring window. Used
// by the registry's background sweep; phase and counters are never touched.
func (cb *CircuitBreaker) PruneHistory(now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rec.Prune(now, cb.config.MonitoringWindow)
}

// setConfig swaps the thresholds without resetting state. Last write wins.
func (cb *CircuitBreaker) setConfig(merged Config) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.config = merged
}

// admit re-evaluates the phase and decides whether this call may proceed.
// It returns the phase observed at decision time and, for rejected calls,
// the rejection error. Admission is constant time: no I/O happens here.
func (cb *CircuitBreaker) admit(now time.Time) (Phase, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.reevaluate(now)

	switch cb.phase {
	case PhaseOpen:
		cb.counters.openRejections.Add(1)
		return PhaseOpen, ErrCircuitOpen

	case PhaseHalfOpen:
		// Budget counts granted admissions, not completions, so a burst of
		// concurrent callers cannot all claim the last probe slot.
		if cb.probesGranted >= cb.config.HalfOpenMaxCalls {
			cb.counters.halfOpenRejections.Add(1)
			return PhaseHalfOpen, ErrHalfOpenLimit
		}
		cb.probesGranted++
		return PhaseHalfOpen, nil

	default:
		return PhaseClosed, nil
	}
}

// reevaluate applies the transitions checked at the start of every call:
// timeout-driven OPEN -> HALF_OPEN and threshold-driven CLOSED -> OPEN.
// Caller holds the lock.
func (cb *CircuitBreaker) reevaluate(now time.Time) {
	switch cb.phase {
	case PhaseOpen:
		if !now.Before(cb.nextRetryAt) {
			cb.setPhase(PhaseHalfOpen, now)
		}
	case PhaseClosed:
		if cb.shouldTrip(now) {
			cb.setPhase(PhaseOpen, now)
		}
	}
}

// shouldTrip reports whether the windowed statistics breach the failure
// threshold or the slow-call ratio. Either condition alone is sufficient.
// Both require at least FailureThreshold samples in the window so the
// circuit cannot trip on too few calls. Caller holds the lock.
func (cb *CircuitBreaker) shouldTrip(now time.Time) bool {
	stats := cb.rec.Stats(now, cb.config.MonitoringWindow, cb.config.SlowCallDuration)
	if stats.Count < cb.config.FailureThreshold {
		return false
	}
	if stats.Failures >= cb.config.FailureThreshold {
		return true
	}
	return stats.SlowRatio() >= cb.config.SlowCallThreshold/100
}

// onSuccess records a successful outcome and applies any resulting transition
func (cb *CircuitBreaker) onSuccess(duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.rec.Record(CallOutcome{Timestamp: now, Success: true, Duration: duration}, cb.config.MonitoringWindow)
	cb.successCount++
	cb.lastSuccessAt = now
	cb.counters.successfulCalls.Add(1)
	if duration > cb.config.SlowCallDuration {
		cb.counters.slowCalls.Add(1)
	}

	switch cb.phase {
	case PhaseHalfOpen:
		if cb.successCount >= cb.config.HalfOpenMaxCalls {
			cb.setPhase(PhaseClosed, now)
		}
	case PhaseClosed:
		// A successful but slow call can still push the slow ratio over
		// the threshold.
		if cb.shouldTrip(now) {
			cb.setPhase(PhaseOpen, now)
		}
	}
}

// onFailure records a failed outcome and applies any resulting transition
func (cb *CircuitBreaker) onFailure(duration time.Duration, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.rec.Record(CallOutcome{Timestamp: now, Success: false, Duration: duration, ErrorDetail: err.Error()}, cb.config.MonitoringWindow)
	cb.failureCount++
	cb.lastFailureAt = now
	cb.counters.failedCalls.Add(1)
	if duration > cb.config.SlowCallDuration {
		cb.counters.slowCalls.Add(1)
	}

	switch cb.phase {
	case PhaseHalfOpen:
		// One failed probe reopens immediately, whatever the remaining
		// probe budget.
		cb.setPhase(PhaseOpen, now)
	case PhaseClosed:
		if cb.shouldTrip(now) {
			cb.setPhase(PhaseOpen, now)
		}
	}
}

// onCancelled returns a consumed probe slot without recording an outcome
func (cb *CircuitBreaker) onCancelled() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counters.cancelledCalls.Add(1)
	if cb.phase == PhaseHalfOpen && cb.probesGranted > 0 {
		cb.probesGranted--
	}
}

// setPhase applies a transition and its side effects. Caller holds the
// lock; the state-change callback therefore must not call back into the
// breaker.
func (cb *CircuitBreaker) setPhase(phase Phase, now time.Time) {
	if cb.phase == phase {
		return
	}

	prev := cb.phase
	cb.phase = phase

	switch phase {
	case PhaseOpen:
		cb.nextRetryAt = now.Add(cb.config.RecoveryTimeout)
		cb.probesGranted = 0
		cb.counters.openTransitions.Add(1)

	case PhaseHalfOpen:
		cb.successCount = 0
		cb.probesGranted = 0

	case PhaseClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.probesGranted = 0
		cb.nextRetryAt = time.Time{}
		// Stale windowed failures would re-trip a circuit that just
		// proved recovery, so the window starts fresh.
		cb.rec.Reset()
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, phase)
	}
}

// resolveRejection resolves a call that was never admitted. The fallback,
// if any, runs outside the breaker lock.
func (cb *CircuitBreaker) resolveRejection(ctx context.Context, start time.Time, phase Phase, rejection error, fallback Operation) CallResult {
	if fallback != nil {
		result := cb.runFallback(ctx, start, phase, fallback)
		result.Rejected = true
		return result
	}

	label := phase.String()
	if errors.Is(rejection, ErrHalfOpenLimit) {
		label = labelHalfOpenLimited
	}
	return CallResult{
		Err:      rejection,
		Error:    rejection.Error(),
		Phase:    phase,
		Label:    label,
		Rejected: true,
		Elapsed:  time.Since(start),
	}
}

// runFallback resolves the call through the fallback. A fallback failure is
// labelled distinctly and never overrides the already-recorded primary
// outcome.
func (cb *CircuitBreaker) runFallback(ctx context.Context, start time.Time, phase Phase, fallback Operation) CallResult {
	cb.counters.fallbackCalls.Add(1)

	value, err := fallback(ctx)
	if err != nil {
		cb.counters.fallbackFailures.Add(1)
		return CallResult{
			Err:     err,
			Error:   err.Error(),
			Phase:   phase,
			Label:   phase.String() + labelSuffixFallbackFailed,
			Elapsed: time.Since(start),
		}
	}
	return CallResult{
		Success: true,
		Value:   value,
		Phase:   phase,
		Label:   phase.String() + labelSuffixFallback,
		Elapsed: time.Since(start),
	}
}
