package circuitbreaker

import "time"

// Config holds the thresholds for one guarded dependency.
// The zero value of any field means "use the default".
type Config struct {
	// FailureThreshold is the number of windowed failures that forces the
	// circuit open. It also sets the minimum number of windowed samples
	// required before either trip condition is evaluated.
	FailureThreshold int `json:"failure_threshold"`

	// RecoveryTimeout is how long the circuit stays open before a probe
	// call is allowed through.
	RecoveryTimeout time.Duration `json:"recovery_timeout"`

	// MonitoringWindow is the retention horizon for call history. All
	// statistics are computed over this trailing span.
	MonitoringWindow time.Duration `json:"monitoring_window"`

	// HalfOpenMaxCalls is the number of successful probe calls required to
	// close the circuit from half-open. It also bounds how many probes are
	// admitted per half-open phase.
	HalfOpenMaxCalls int `json:"half_open_max_calls"`

	// SlowCallThreshold is the percentage [0,100] of windowed calls slower
	// than SlowCallDuration that forces the circuit open.
	SlowCallThreshold float64 `json:"slow_call_threshold"`

	// SlowCallDuration is the latency above which a call counts as slow.
	SlowCallDuration time.Duration `json:"slow_call_duration"`
}

// DefaultConfig returns the default thresholds
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		RecoveryTimeout:   60 * time.Second,
		MonitoringWindow:  120 * time.Second,
		HalfOpenMaxCalls:  3,
		SlowCallThreshold: 50,
		SlowCallDuration:  5 * time.Second,
	}
}

// mergeOver overlays the set fields of c on top of base. Out-of-range
// values are clamped at merge time so a misconfigured threshold can never
// divide by zero at runtime.
func (c Config) mergeOver(base Config) Config {
	cfg := base

	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.RecoveryTimeout > 0 {
		cfg.RecoveryTimeout = c.RecoveryTimeout
	}
	if c.MonitoringWindow > 0 {
		cfg.MonitoringWindow = c.MonitoringWindow
	}
	if c.HalfOpenMaxCalls > 0 {
		cfg.HalfOpenMaxCalls = c.HalfOpenMaxCalls
	}
	if c.SlowCallThreshold > 0 {
		cfg.SlowCallThreshold = c.SlowCallThreshold
	}
	if c.SlowCallDuration > 0 {
		cfg.SlowCallDuration = c.SlowCallDuration
	}

	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.SlowCallThreshold > 100 {
		cfg.SlowCallThreshold = 100
	}

	return cfg
}

// merge overlays c on top of the library defaults
func (c Config) merge() Config {
	return c.mergeOver(DefaultConfig())
}
