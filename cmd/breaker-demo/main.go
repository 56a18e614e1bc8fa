package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/Muhammadurasheed/genesis-breaker/internal/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	registry := circuitbreaker.NewRegistry(circuitbreaker.Config{},
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithMetrics(circuitbreaker.NewMetrics("demo")),
		circuitbreaker.WithSweepInterval(5*time.Second),
	)
	registry.StartSweep(context.Background())
	defer registry.Close()

	registry.Register("flaky-service", circuitbreaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  5 * time.Second,
		MonitoringWindow: 30 * time.Second,
		HalfOpenMaxCalls: 2,
	})

	// Metrics and status endpoints
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(registry.AllStatuses())
		})
		log.Println("metrics on :2112/metrics, status on :2112/status")
		log.Fatal(http.ListenAndServe(":2112", nil))
	}()

	log.Println("starting circuit breaker demo")
	log.Println("scenario: dependency health varies over time")
	log.Println("  - calls 1-10:  70% failure rate (trips the circuit)")
	log.Println("  - calls 11-20: 30% failure rate (recovery probing)")
	log.Println("  - calls 21+:   healthy")

	cached := "last known good response"

	for i := 1; i <= 40; i++ {
		result := registry.Execute(context.Background(), "flaky-service",
			func(ctx context.Context) (any, error) {
				return callFlakyService(i)
			},
			circuitbreaker.CacheFallback(func() (any, bool) {
				return cached, true
			}),
		)

		status, _ := registry.Status("flaky-service")

		switch {
		case result.Success && (result.Label == "CLOSED" || result.Label == "HALF_OPEN"):
			cached = fmt.Sprint(result.Value)
			log.Printf("[%02d] ok    label=%-20s phase=%s elapsed=%s", i, result.Label, status.Phase, result.Elapsed)
		case result.Success:
			log.Printf("[%02d] degraded label=%-17s phase=%s value=%q", i, result.Label, status.Phase, result.Value)
		default:
			log.Printf("[%02d] error label=%-20s phase=%s err=%s", i, result.Label, status.Phase, result.Error)
		}

		time.Sleep(500 * time.Millisecond)
	}

	status, _ := registry.Status("flaky-service")
	log.Printf("final phase=%s counters=%+v", status.Phase, status.Counters)
}

// callFlakyService simulates a dependency whose health varies over time
func callFlakyService(callNum int) (any, error) {
	failureRate := 0.0
	switch {
	case callNum <= 10:
		failureRate = 0.7
	case callNum <= 20:
		failureRate = 0.3
	}

	time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)

	if rand.Float64() < failureRate {
		return nil, errors.New("upstream returned 500")
	}
	return fmt.Sprintf("payload for call %d", callNum), nil
}
