package circuitbreaker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Muhammadurasheed/genesis-breaker/internal/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func TestRegistry_LazyCreation(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{})

	if _, ok := r.Status("unknown"); ok {
		t.Error("Expected no status for an unreferenced dependency")
	}

	result := r.Execute(context.Background(), "service-a", succeed, nil)
	if !result.Success {
		t.Fatalf("Unexpected failure: %v", result.Error)
	}

	status, ok := r.Status("service-a")
	if !ok {
		t.Fatal("Expected breaker created on first execute")
	}
	if status.Phase != circuitbreaker.PhaseClosed {
		t.Errorf("Expected new breaker to start CLOSED, got %v", status.Phase)
	}
	if status.Config.FailureThreshold != 5 {
		t.Errorf("Expected default config applied, got %d", status.Config.FailureThreshold)
	}
}

func TestRegistry_RegisterMergesOverDefaults(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 7,
		RecoveryTimeout:  time.Second,
	})

	r.Register("service-a", circuitbreaker.Config{
		HalfOpenMaxCalls: 9,
	})

	status, ok := r.Status("service-a")
	if !ok {
		t.Fatal("Expected breaker created by Register")
	}
	if status.Config.FailureThreshold != 7 {
		t.Errorf("Expected registry default failure threshold 7, got %d", status.Config.FailureThreshold)
	}
	if status.Config.HalfOpenMaxCalls != 9 {
		t.Errorf("Expected overridden half-open max calls 9, got %d", status.Config.HalfOpenMaxCalls)
	}
	if status.Config.MonitoringWindow != 120*time.Second {
		t.Errorf("Expected library default window, got %v", status.Config.MonitoringWindow)
	}
}

func TestRegistry_ReRegisterKeepsState(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{})
	r.Register("service-a", circuitbreaker.Config{FailureThreshold: 1})

	r.Execute(context.Background(), "service-a", fail, nil)

	status, _ := r.Status("service-a")
	if status.Phase != circuitbreaker.PhaseOpen {
		t.Fatalf("Expected PhaseOpen, got %v", status.Phase)
	}

	// Last write wins for config, but state survives
	r.Register("service-a", circuitbreaker.Config{FailureThreshold: 10})

	status, _ = r.Status("service-a")
	if status.Config.FailureThreshold != 10 {
		t.Errorf("Expected updated threshold 10, got %d", status.Config.FailureThreshold)
	}
	if status.Phase != circuitbreaker.PhaseOpen {
		t.Errorf("Expected phase preserved across re-register, got %v", status.Phase)
	}
}

func TestRegistry_ResetUnknownDependency(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{})

	if r.Reset("never-seen") {
		t.Error("Expected Reset to report false for an unknown dependency")
	}
	if _, ok := r.Status("never-seen"); ok {
		t.Error("Expected Reset not to create the dependency as a side effect")
	}
}

func TestRegistry_ResetKnownDependency(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{FailureThreshold: 1})
	r.Execute(context.Background(), "service-a", fail, nil)

	if !r.Reset("service-a") {
		t.Fatal("Expected Reset to report true")
	}

	status, _ := r.Status("service-a")
	if status.Phase != circuitbreaker.PhaseClosed {
		t.Errorf("Expected PhaseClosed after reset, got %v", status.Phase)
	}
	if len(status.RecentCalls) != 0 {
		t.Errorf("Expected empty history after reset, got %d", len(status.RecentCalls))
	}
}

func TestRegistry_AllStatuses(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{FailureThreshold: 1})

	r.Execute(context.Background(), "healthy", succeed, nil)
	r.Execute(context.Background(), "broken", fail, nil)

	statuses := r.AllStatuses()
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
	if statuses["healthy"].Phase != circuitbreaker.PhaseClosed {
		t.Errorf("Expected healthy CLOSED, got %v", statuses["healthy"].Phase)
	}
	if statuses["broken"].Phase != circuitbreaker.PhaseOpen {
		t.Errorf("Expected broken OPEN, got %v", statuses["broken"].Phase)
	}
}

func TestRegistry_ConcurrentLazyCreation(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Execute(context.Background(), "shared", succeed, nil)
		}()
	}
	wg.Wait()

	statuses := r.AllStatuses()
	if len(statuses) != 1 {
		t.Fatalf("Expected a single breaker for the shared dependency, got %d", len(statuses))
	}
	if got := statuses["shared"].Counters.SuccessfulCalls; got != 50 {
		t.Errorf("Expected all 50 calls on one breaker, got %d", got)
	}
}

func TestRegistry_ConcurrentExecuteConsistency(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})

	r.Execute(context.Background(), "service-a", fail, nil)
	time.Sleep(40 * time.Millisecond)

	// A burst of callers races for the single probe slot; exactly one may
	// hold it at a time, the rest are rejected.
	var wg sync.WaitGroup
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Execute(context.Background(), "service-a", func(ctx context.Context) (any, error) {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil, errUpstream
			}, nil)
		}()
	}
	wg.Wait()

	if maxInFlight > 1 {
		t.Errorf("Expected at most 1 concurrent probe, observed %d", maxInFlight)
	}
}

func TestRegistry_MetricsRecorded(t *testing.T) {
	promReg := prometheus.NewRegistry()
	metrics := circuitbreaker.NewMetricsWith("test", promReg)

	r := circuitbreaker.NewRegistry(circuitbreaker.Config{FailureThreshold: 1},
		circuitbreaker.WithLogger(zap.NewNop()),
		circuitbreaker.WithMetrics(metrics),
	)

	r.Execute(context.Background(), "service-a", succeed, nil)
	r.Execute(context.Background(), "service-a", fail, nil)
	r.Execute(context.Background(), "service-a", succeed, nil) // rejected, circuit open

	// A cancelled primary counts as a request but never as a failure
	r.Execute(context.Background(), "service-b", func(ctx context.Context) (any, error) {
		return nil, context.Canceled
	}, nil)

	families, err := promReg.Gather()
	if err != nil {
		t.Fatalf("Unexpected gather error: %v", err)
	}

	counters := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if metric.GetCounter() != nil {
				counters[family.GetName()] += metric.GetCounter().GetValue()
			}
		}
	}

	if got := counters["test_circuit_breaker_requests_total"]; got != 4 {
		t.Errorf("Expected 4 requests recorded, got %v", got)
	}
	if got := counters["test_circuit_breaker_failures_total"]; got != 1 {
		t.Errorf("Expected 1 failure recorded, got %v", got)
	}
	if got := counters["test_circuit_breaker_rejections_total"]; got != 1 {
		t.Errorf("Expected 1 rejection recorded, got %v", got)
	}
	if got := counters["test_circuit_breaker_phase_changes_total"]; got != 1 {
		t.Errorf("Expected 1 phase change recorded, got %v", got)
	}
}

func TestRegistry_StateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	r := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}, circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.Phase) {
		mu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		mu.Unlock()
	}))

	r.Execute(context.Background(), "service-a", fail, nil) // CLOSED->OPEN
	time.Sleep(40 * time.Millisecond)
	r.Execute(context.Background(), "service-a", succeed, nil) // OPEN->HALF_OPEN->CLOSED

	mu.Lock()
	defer mu.Unlock()
	want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected %d transitions, got %v", len(want), transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestRegistry_SweepLifecycle(t *testing.T) {
	r := circuitbreaker.NewRegistry(circuitbreaker.Config{FailureThreshold: 1},
		circuitbreaker.WithSweepInterval(10*time.Millisecond),
	)
	r.Execute(context.Background(), "service-a", fail, nil)

	r.StartSweep(context.Background())
	r.StartSweep(context.Background()) // starting twice is a no-op

	time.Sleep(35 * time.Millisecond)
	r.Close()

	// Sweep observes only: the tripped circuit is still open
	status, _ := r.Status("service-a")
	if status.Phase != circuitbreaker.PhaseOpen {
		t.Errorf("Expected sweep not to mutate phase, got %v", status.Phase)
	}
}
