package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Muhammadurasheed/genesis-breaker/internal/circuitbreaker"
)

// HTTPMiddlewareConfig configures the HTTP middleware
type HTTPMiddlewareConfig struct {
	// Registry holding the per-dependency breakers
	Registry *circuitbreaker.Registry

	// Dependency names the downstream this handler fans out to
	Dependency string

	// OnCircuitOpen is called when the call is rejected, allowing custom
	// responses. Defaults to a 503 with a Retry-After header.
	OnCircuitOpen func(w http.ResponseWriter, r *http.Request)

	// IsSuccessful determines if a response status is considered
	// successful. Defaults to 2xx and 3xx.
	IsSuccessful func(status int) bool
}

// HTTPMiddleware wraps HTTP handlers with circuit breaker protection
type HTTPMiddleware struct {
	config HTTPMiddlewareConfig
}

// NewHTTPMiddleware creates a new HTTP middleware
func NewHTTPMiddleware(config HTTPMiddlewareConfig) *HTTPMiddleware {
	if config.OnCircuitOpen == nil {
		config.OnCircuitOpen = defaultCircuitOpenHandler
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultIsSuccessful
	}

	return &HTTPMiddleware{config: config}
}

// Wrap wraps an http.Handler with circuit breaker protection
func (m *HTTPMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := m.config.Registry.Execute(r.Context(), m.config.Dependency, func(ctx context.Context) (any, error) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if !m.config.IsSuccessful(wrapped.statusCode) {
				return nil, &httpError{statusCode: wrapped.statusCode}
			}
			return nil, nil
		}, nil)

		if result.Rejected {
			m.config.OnCircuitOpen(w, r)
		}
	})
}

// WrapFunc wraps an http.HandlerFunc with circuit breaker protection
func (m *HTTPMiddleware) WrapFunc(next http.HandlerFunc) http.Handler {
	return m.Wrap(next)
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// httpError represents an HTTP error response
type httpError struct {
	statusCode int
}

func (e *httpError) Error() string {
	return http.StatusText(e.statusCode)
}

// defaultCircuitOpenHandler returns a 503 Service Unavailable
func defaultCircuitOpenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "30")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"error":"service temporarily unavailable","retry_after":30}`))
}

// defaultIsSuccessful considers 2xx and 3xx status codes as successful
func defaultIsSuccessful(status int) bool {
	return status >= 200 && status < 400
}

// RoundTripper wraps http.RoundTripper with per-host circuit breakers for
// outgoing requests
type RoundTripper struct {
	base     http.RoundTripper
	registry *circuitbreaker.Registry
}

// NewRoundTripper creates a circuit-protected RoundTripper. Each request is
// guarded by the breaker registered for its target host.
func NewRoundTripper(base http.RoundTripper, registry *circuitbreaker.Registry) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RoundTripper{
		base:     base,
		registry: registry,
	}
}

// RoundTrip implements http.RoundTripper
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	result := rt.registry.Execute(req.Context(), req.URL.Host, func(ctx context.Context) (any, error) {
		var err error
		resp, err = rt.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		// 5xx counts against the dependency; the response still reaches
		// the caller.
		if resp.StatusCode >= 500 {
			return nil, &httpError{statusCode: resp.StatusCode}
		}
		return nil, nil
	}, nil)

	if result.Rejected {
		return nil, result.Err
	}

	// The synthetic 5xx classification exists only to count against the
	// dependency; net/http discards any response paired with a non-nil
	// error, so the caller gets the response alone.
	var statusErr *httpError
	if resp != nil && errors.As(result.Err, &statusErr) {
		return resp, nil
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return resp, nil
}
