package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry owns one circuit breaker per guarded dependency. Breakers are
// created lazily with the registry defaults on first reference and live for
// the registry's lifetime. The registry is safe for concurrent use; each
// breaker serializes its own state, so unrelated dependencies never contend
// on one lock.
type Registry struct {
	defaults      Config
	logger        *zap.Logger
	metrics       *Metrics
	onStateChange func(name string, from Phase, to Phase)
	sweepEvery    time.Duration

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	sweepOnce   sync.Once
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger used for phase transitions and the periodic
// sweep. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus metrics to the registry
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithOnStateChange registers a callback invoked on every phase transition,
// after logging and metrics. It runs while the transitioning breaker's lock
// is held and must not call back into the registry's hot path.
func WithOnStateChange(fn func(name string, from Phase, to Phase)) Option {
	return func(r *Registry) {
		r.onStateChange = fn
	}
}

// WithSweepInterval overrides how often the background sweep prunes history
// and reports unhealthy dependencies
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sweepEvery = d
		}
	}
}

// NewRegistry builds a registry. The given defaults, merged over the
// library defaults, apply to every lazily-created breaker.
func NewRegistry(defaults Config, opts ...Option) *Registry {
	r := &Registry{
		defaults:   defaults.merge(),
		logger:     zap.NewNop(),
		sweepEvery: 30 * time.Second,
		breakers:   make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs primary against the named dependency through its breaker,
// auto-registering the dependency with the registry defaults if unknown.
// This is the sole hot-path entry point.
func (r *Registry) Execute(ctx context.Context, dependency string, primary Operation, fallback Operation) CallResult {
	cb := r.breaker(dependency)

	if r.metrics != nil {
		r.metrics.RecordRequest(dependency)
	}

	result := cb.Execute(ctx, primary, fallback)

	if r.metrics != nil {
		switch {
		case result.Rejected:
			r.metrics.RecordRejection(dependency)
		case result.Success:
			r.metrics.RecordSuccess(dependency)
			r.metrics.RecordDuration(dependency, "success", result.Elapsed.Seconds())
		case errors.Is(result.Err, context.Canceled):
			// Excluded from failure metrics, matching the typed counters.
		default:
			r.metrics.RecordFailure(dependency)
			r.metrics.RecordDuration(dependency, "failure", result.Elapsed.Seconds())
		}
	}
	return result
}

// Register creates or reconfigures the breaker for dependency. The partial
// config is merged over the registry defaults. Re-registering swaps the
// config without resetting existing state; last write wins.
func (r *Registry) Register(dependency string, config Config) {
	r.breaker(dependency).setConfig(config.mergeOver(r.defaults))
}

// Reset forces the named breaker back to CLOSED with empty history. It
// reports false, with no side effect, when the dependency is unknown.
func (r *Registry) Reset(dependency string) bool {
	r.mu.RLock()
	cb, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	cb.Reset()
	return true
}

// Status returns a snapshot of the named breaker, or ok=false when the
// dependency was never registered
func (r *Registry) Status(dependency string) (StatusView, bool) {
	r.mu.RLock()
	cb, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if !ok {
		return StatusView{}, false
	}
	return cb.Status(), true
}

// AllStatuses snapshots every registered breaker
func (r *Registry) AllStatuses() map[string]StatusView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make(map[string]StatusView, len(r.breakers))
	for name, cb := range r.breakers {
		statuses[name] = cb.Status()
	}
	return statuses
}

// breaker returns the breaker for name, creating it on first reference.
// The double-checked locking keeps concurrent first references from
// creating two breakers for one dependency.
func (r *Registry) breaker(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb = newBreaker(name, r.defaults, r.stateChanged)
	r.breakers[name] = cb
	return cb
}

// stateChanged fans a phase transition out to the logger, metrics, and the
// user callback. Runs under the transitioning breaker's lock.
func (r *Registry) stateChanged(name string, from, to Phase) {
	r.logger.Info("circuit breaker phase change",
		zap.String("dependency", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))

	if r.metrics != nil {
		r.metrics.RecordPhaseChange(name, from, to)
	}
	if r.onStateChange != nil {
		r.onStateChange(name, from, to)
	}
}
