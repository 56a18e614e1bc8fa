package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/Muhammadurasheed/genesis-breaker/internal/circuitbreaker"
	"github.com/Muhammadurasheed/genesis-breaker/internal/middleware"
)

func TestRoundTripper_TripsOnServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 2,
	})
	client := &http.Client{
		Transport: middleware.NewRoundTripper(nil, registry),
	}

	// 5xx responses reach the caller but count as failures
	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("Unexpected transport error: %v", err)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Even though the responses reached the caller, both 5xx outcomes
	// counted against the host's breaker
	serverURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	status, ok := registry.Status(serverURL.Host)
	if !ok {
		t.Fatal("Expected breaker registered for the server host")
	}
	if status.Counters.FailedCalls != 2 {
		t.Errorf("Expected 2 failures recorded, got %d", status.Counters.FailedCalls)
	}

	// The circuit is now open; the server must not be hit again
	before := calls.Load()
	if _, err := client.Get(server.URL); err == nil {
		t.Fatal("Expected rejection error while circuit is open")
	}
	if calls.Load() != before {
		t.Error("Expected no upstream call while circuit is open")
	}
}

func TestHTTPMiddleware_RejectsWhenOpen(t *testing.T) {
	registry := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 1,
	})

	var handled atomic.Int64
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handled.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	mw := middleware.NewHTTPMiddleware(middleware.HTTPMiddlewareConfig{
		Registry:   registry,
		Dependency: "downstream",
	})
	handler := mw.Wrap(failing)

	// First request fails through and trips the breaker
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502 passthrough, got %d", rec.Code)
	}

	// Second request is rejected with the default 503 response
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 while open, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on rejection")
	}
	if handled.Load() != 1 {
		t.Errorf("Expected handler skipped while open, handled %d times", handled.Load())
	}
}

func TestHTTPMiddleware_SuccessPassesThrough(t *testing.T) {
	registry := circuitbreaker.NewRegistry(circuitbreaker.Config{})

	mw := middleware.NewHTTPMiddleware(middleware.HTTPMiddlewareConfig{
		Registry:   registry,
		Dependency: "downstream",
	})
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	status, ok := registry.Status("downstream")
	if !ok {
		t.Fatal("Expected breaker registered for the dependency")
	}
	if status.Counters.SuccessfulCalls != 1 {
		t.Errorf("Expected 1 successful call recorded, got %d", status.Counters.SuccessfulCalls)
	}
}
