package circuitbreaker

import (
	"encoding/json"
	"fmt"
)

// Phase represents the circuit breaker phase for one dependency
type Phase int

const (
	// PhaseClosed - Circuit is closed, calls pass through
	PhaseClosed Phase = iota

	// PhaseHalfOpen - Circuit is probing whether the dependency recovered
	PhaseHalfOpen

	// PhaseOpen - Circuit is open, calls fail fast
	PhaseOpen
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseClosed:
		return "CLOSED"
	case PhaseHalfOpen:
		return "HALF_OPEN"
	case PhaseOpen:
		return "OPEN"
	default:
		return fmt.Sprintf("unknown phase: %d", int(p))
	}
}

// MarshalJSON serializes the phase as its string form
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}
