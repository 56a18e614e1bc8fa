package circuitbreaker

import (
	"context"
	"time"
)

// Operation is a guarded call: the primary work against a dependency, or
// its fallback. Operations may block for arbitrary durations; callers bound
// them through ctx if an upper limit is required.
type Operation func(ctx context.Context) (any, error)

// CallResult describes how one Execute invocation was resolved: whether it
// succeeded, under which phase the admission decision was made, and how long
// the whole attempt took (admission + call + fallback).
type CallResult struct {
	// Success is true when the primary, or a fallback standing in for it,
	// produced a value.
	Success bool `json:"success"`

	// Value is the payload produced by the primary or fallback.
	Value any `json:"value,omitempty"`

	// Err is the caller-visible error, nil on success. Primary errors are
	// propagated verbatim; rejections are ErrCircuitOpen or ErrHalfOpenLimit.
	Err error `json:"-"`

	// Error is the message form of Err, kept for serialization.
	Error string `json:"error,omitempty"`

	// Phase is the circuit phase as observed at admission time.
	Phase Phase `json:"phase"`

	// Label classifies the resolution: the phase name, optionally suffixed
	// with _FALLBACK or _FALLBACK_FAILED, or HALF_OPEN_LIMITED for a probe
	// budget rejection.
	Label string `json:"label"`

	// Rejected is true when the primary was never invoked.
	Rejected bool `json:"rejected,omitempty"`

	// Elapsed is the wall-clock time of the whole Execute invocation.
	Elapsed time.Duration `json:"elapsed"`
}

const (
	labelHalfOpenLimited      = "HALF_OPEN_LIMITED"
	labelSuffixFallback       = "_FALLBACK"
	labelSuffixFallbackFailed = "_FALLBACK_FAILED"
)
