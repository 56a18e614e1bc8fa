package circuitbreaker

import "time"

// CallOutcome is one recorded call against a dependency. Outcomes are
// appended in chronological order and never mutated.
type CallOutcome struct {
	Timestamp   time.Time     `json:"timestamp"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`
	ErrorDetail string        `json:"error_detail,omitempty"`
}

// WindowStats holds the aggregate counts over one monitoring window
type WindowStats struct {
	Count     int
	Failures  int
	SlowCalls int
}

// SlowRatio returns the fraction of windowed calls that were slow (0.0 to 1.0).
// An empty window yields 0, never NaN.
func (s WindowStats) SlowRatio() float64 {
	if s.Count == 0 {
		return 0.0
	}
	return float64(s.SlowCalls) / float64(s.Count)
}

// FailureRatio returns the fraction of windowed calls that failed (0.0 to 1.0)
func (s WindowStats) FailureRatio() float64 {
	if s.Count == 0 {
		return 0.0
	}
	return float64(s.Failures) / float64(s.Count)
}

// recorder keeps the time-windowed call history for a single dependency.
// It is not safe for concurrent use on its own; the owning breaker's mutex
// serializes all access.
type recorder struct {
	history []CallOutcome
}

// Record appends an outcome and prunes entries that fell out of the window
func (r *recorder) Record(outcome CallOutcome, window time.Duration) {
	r.history = append(r.history, outcome)
	r.Prune(time.Now(), window)
}

// Prune drops entries older than window. History is chronological, so this
// only ever trims a prefix. Pruning already-pruned history is a no-op.
func (r *recorder) Prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)

	drop := 0
	for _, outcome := range r.history {
		if outcome.Timestamp.After(cutoff) {
			break
		}
		drop++
	}

	if drop > 0 {
		r.history = append(r.history[:0], r.history[drop:]...)
	}
}

// Stats returns counts over entries no older than window. It never mutates
// the history, so repeated queries within one evaluation cycle are cheap
// and mutually consistent.
func (r *recorder) Stats(now time.Time, window, slowAfter time.Duration) WindowStats {
	cutoff := now.Add(-window)

	var stats WindowStats
	for _, outcome := range r.history {
		if !outcome.Timestamp.After(cutoff) {
			continue
		}
		stats.Count++
		if !outcome.Success {
			stats.Failures++
		}
		if outcome.Duration > slowAfter {
			stats.SlowCalls++
		}
	}
	return stats
}

// Tail returns a copy of the most recent n outcomes
func (r *recorder) Tail(n int) []CallOutcome {
	if n > len(r.history) {
		n = len(r.history)
	}
	tail := make([]CallOutcome, n)
	copy(tail, r.history[len(r.history)-n:])
	return tail
}

// Len returns the number of retained outcomes
func (r *recorder) Len() int {
	return len(r.history)
}

// Reset clears the history
func (r *recorder) Reset() {
	r.history = r.history[:0]
}
