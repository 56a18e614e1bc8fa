package circuitbreaker

import "time"

// statusTail is how many recent outcomes a StatusView carries
const statusTail = 10

// StatusView is a point-in-time snapshot of one dependency's breaker,
// suitable for serialization by an embedding status endpoint.
type StatusView struct {
	Name          string          `json:"name"`
	Phase         Phase           `json:"phase"`
	FailureCount  int             `json:"failure_count"`
	SuccessCount  int             `json:"success_count"`
	Config        Config          `json:"config"`
	LastFailureAt time.Time       `json:"last_failure_at,omitzero"`
	LastSuccessAt time.Time       `json:"last_success_at,omitzero"`
	NextRetryAt   time.Time       `json:"next_retry_at,omitzero"`
	RecentCalls   []CallOutcome   `json:"recent_calls"`
	Counters      CounterSnapshot `json:"counters"`
}

// Status returns a snapshot of the breaker. Read-only: no transition is
// evaluated and no history is pruned.
func (cb *CircuitBreaker) Status() StatusView {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return StatusView{
		Name:          cb.name,
		Phase:         cb.phase,
		FailureCount:  cb.failureCount,
		SuccessCount:  cb.successCount,
		Config:        cb.config,
		LastFailureAt: cb.lastFailureAt,
		LastSuccessAt: cb.lastSuccessAt,
		NextRetryAt:   cb.nextRetryAt,
		RecentCalls:   cb.rec.Tail(statusTail),
		Counters:      cb.counters.Snapshot(),
	}
}
